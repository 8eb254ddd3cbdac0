// Package registry holds the immutable gate definition catalog. Definitions
// are loaded from a TOML file once at startup and validated; any violation is
// fatal so the engine fails closed rather than run with a broken gate table.
package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/civora/approvals/internal/model"
)

// ErrNotFound is returned when no definition exists for a lookup key.
var ErrNotFound = errors.New("gate definition not found")

// Registry is a read-only catalog of gate definitions keyed by
// (entity type, gate name).
type Registry struct {
	defs map[model.EntityType]map[string]*model.GateDefinition
	// ordered gates per entity type, ascending by order.
	ordered map[model.EntityType][]*model.GateDefinition
}

// gatesFile is the on-disk TOML shape.
type gatesFile struct {
	Workflows []workflowSection `toml:"workflow"`
}

type workflowSection struct {
	EntityType string        `toml:"entity_type"`
	Gates      []gateSection `toml:"gate"`
}

type gateSection struct {
	Name             string                    `toml:"name"`
	Order            int                       `toml:"order"`
	SLADays          int                       `toml:"sla_days"`
	AllowedDecisions []string                  `toml:"allowed_decisions"`
	SelfCheck        []model.ChecklistItemSpec `toml:"self_check"`
	ReviewerCheck    []model.ChecklistItemSpec `toml:"reviewer_check"`
	Consensus        consensusSection          `toml:"consensus"`
	Next             map[string]string         `toml:"next"`
}

type consensusSection struct {
	Required      bool `toml:"required"`
	ThresholdPct  int  `toml:"threshold_pct"`
	MinEvaluators int  `toml:"min_evaluators"`
}

// LoadFile reads and validates a gate catalog from the given TOML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gates file: %w", err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("gates file %s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes and validates a gate catalog from TOML bytes.
func Parse(data []byte) (*Registry, error) {
	var file gatesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(file.Workflows) == 0 {
		return nil, errors.New("no workflows defined")
	}

	reg := &Registry{
		defs:    make(map[model.EntityType]map[string]*model.GateDefinition),
		ordered: make(map[model.EntityType][]*model.GateDefinition),
	}

	for _, wf := range file.Workflows {
		entityType := model.EntityType(wf.EntityType)
		if _, dup := reg.defs[entityType]; dup {
			return nil, fmt.Errorf("duplicate workflow for entity type %q", entityType)
		}
		if len(wf.Gates) == 0 {
			return nil, fmt.Errorf("entity type %q has no gates", entityType)
		}

		byName := make(map[string]*model.GateDefinition, len(wf.Gates))
		for _, g := range wf.Gates {
			def := toDefinition(entityType, g)
			if err := model.ValidateGateDefinition(def); err != nil {
				return nil, fmt.Errorf("gate %s/%s: %w", entityType, g.Name, err)
			}
			if _, dup := byName[def.GateName]; dup {
				return nil, fmt.Errorf("duplicate gate %s/%s", entityType, def.GateName)
			}
			byName[def.GateName] = def
		}

		// Transition targets must name a gate of the same entity type or a
		// terminal marker.
		for _, def := range byName {
			for d, next := range def.NextGateByDecision {
				if model.IsTerminalTransition(next) {
					continue
				}
				if _, ok := byName[next]; !ok {
					return nil, fmt.Errorf("gate %s/%s: decision %q points to unknown gate %q",
						entityType, def.GateName, d, next)
				}
			}
		}

		ordered := make([]*model.GateDefinition, 0, len(byName))
		for _, def := range byName {
			ordered = append(ordered, def)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
		for i := 1; i < len(ordered); i++ {
			if ordered[i].Order == ordered[i-1].Order {
				return nil, fmt.Errorf("entity type %q: gates %q and %q share order %d",
					entityType, ordered[i-1].GateName, ordered[i].GateName, ordered[i].Order)
			}
		}

		reg.defs[entityType] = byName
		reg.ordered[entityType] = ordered
	}

	return reg, nil
}

func toDefinition(entityType model.EntityType, g gateSection) *model.GateDefinition {
	decisions := make([]model.Decision, len(g.AllowedDecisions))
	for i, d := range g.AllowedDecisions {
		decisions[i] = model.Decision(d)
	}
	next := make(map[model.Decision]string, len(g.Next))
	for d, target := range g.Next {
		next[model.Decision(d)] = target
	}
	return &model.GateDefinition{
		EntityType:              entityType,
		GateName:                g.Name,
		Order:                   g.Order,
		SLADays:                 g.SLADays,
		SelfCheckItems:          g.SelfCheck,
		ReviewerChecklistItems:  g.ReviewerCheck,
		AllowedDecisions:        decisions,
		RequiresExpertConsensus: g.Consensus.Required,
		ConsensusThresholdPct:   g.Consensus.ThresholdPct,
		MinEvaluators:           g.Consensus.MinEvaluators,
		NextGateByDecision:      next,
	}
}

// Get returns the definition for (entityType, gateName), or ErrNotFound.
func (r *Registry) Get(entityType model.EntityType, gateName string) (*model.GateDefinition, error) {
	byName, ok := r.defs[entityType]
	if !ok {
		return nil, fmt.Errorf("entity type %q: %w", entityType, ErrNotFound)
	}
	def, ok := byName[gateName]
	if !ok {
		return nil, fmt.Errorf("gate %s/%s: %w", entityType, gateName, ErrNotFound)
	}
	return def, nil
}

// FirstGate returns the name of the entity type's entry gate (lowest order).
func (r *Registry) FirstGate(entityType model.EntityType) (string, error) {
	ordered, ok := r.ordered[entityType]
	if !ok {
		return "", fmt.Errorf("entity type %q: %w", entityType, ErrNotFound)
	}
	return ordered[0].GateName, nil
}

// Gates returns the entity type's gate definitions in ascending order.
// The returned slice must not be modified.
func (r *Registry) Gates(entityType model.EntityType) []*model.GateDefinition {
	return r.ordered[entityType]
}

// EntityTypes returns all entity types with a gate table, sorted.
func (r *Registry) EntityTypes() []model.EntityType {
	out := make([]model.EntityType, 0, len(r.defs))
	for et := range r.defs {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
