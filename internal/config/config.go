package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the daemon's runtime settings, loaded from environment
// variables with the APPROVALS_ prefix.
type Config struct {
	DatabaseURL string `env:"APPROVALS_DATABASE_URL"`
	GatesFile   string `env:"APPROVALS_GATES_FILE" envDefault:"gates.toml"`
	// RolesFile points at a static role table. Empty means every actor
	// may review and assign.
	RolesFile string `env:"APPROVALS_ROLES_FILE"`
	HTTPAddr  string `env:"APPROVALS_HTTP_ADDR" envDefault:":8080"`
	NATSURL   string `env:"APPROVALS_NATS_URL"`
	AuthToken string `env:"APPROVALS_AUTH_TOKEN"`

	// SweepInterval is how often the escalation sweeper scans open
	// requests. 0 disables the sweeper.
	SweepInterval time.Duration `env:"APPROVALS_SWEEP_INTERVAL" envDefault:"5m"`

	// Export settings. S3 export is enabled when a bucket is set.
	ExportInterval   time.Duration `env:"APPROVALS_EXPORT_INTERVAL" envDefault:"15m"`
	ExportS3Bucket   string        `env:"APPROVALS_EXPORT_S3_BUCKET"`
	ExportS3Endpoint string        `env:"APPROVALS_EXPORT_S3_ENDPOINT"`
	ExportS3Region   string        `env:"APPROVALS_EXPORT_S3_REGION" envDefault:"us-east-1"`
	ExportS3Key      string        `env:"APPROVALS_EXPORT_S3_KEY" envDefault:"approvals/snapshot.jsonl"`
}

// Load parses the environment into a Config and validates required fields.
func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("APPROVALS_DATABASE_URL is required")
	}
	return &c, nil
}
