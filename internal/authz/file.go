package authz

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/civora/approvals/internal/model"
)

// rolesFile is the on-disk TOML shape. Keys are entity types; "*"
// applies to all of them.
//
//	[reviewers]
//	challenge = ["rev-1", "rev-2"]
//	"*" = ["admin"]
//
//	[assigners]
//	challenge = ["coord-1"]
//
//	[evaluators]
//	challenge = ["exp-1", "exp-2"]
type rolesFile struct {
	Reviewers  map[string][]string `toml:"reviewers"`
	Assigners  map[string][]string `toml:"assigners"`
	Evaluators map[string][]string `toml:"evaluators"`
}

// LoadFile reads a static role table from the given TOML file.
func LoadFile(path string) (*StaticRoles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}
	var file rolesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("roles file %s: %w", path, err)
	}
	roles := &StaticRoles{
		Reviewers:  map[model.EntityType][]string{},
		Assigners:  map[model.EntityType][]string{},
		Evaluators: map[model.EntityType][]string{},
	}
	for et, ids := range file.Reviewers {
		roles.Reviewers[model.EntityType(et)] = ids
	}
	for et, ids := range file.Assigners {
		roles.Assigners[model.EntityType(et)] = ids
	}
	for et, ids := range file.Evaluators {
		roles.Evaluators[model.EntityType(et)] = ids
	}
	return roles, nil
}
