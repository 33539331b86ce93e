// Package config loads process configuration from COSMICDS_* environment
// variables. Command-line flags override what is loaded here.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration.
type Config struct {
	APIURL      string        `env:"COSMICDS_API_URL"      envDefault:"http://localhost:8080"`
	Timeout     time.Duration `env:"COSMICDS_TIMEOUT"      envDefault:"10s"`
	SyncEnabled bool          `env:"COSMICDS_SYNC_ENABLED" envDefault:"true"`
	StudentID   int64         `env:"COSMICDS_STUDENT_ID"`
	TeamMember  int64         `env:"COSMICDS_TEAM_MEMBER"`
	Story       string        `env:"COSMICDS_STORY"        envDefault:"hubbles_law"`
	CatalogPath string        `env:"COSMICDS_CATALOG"`

	DBPath      string `env:"COSMICDS_DB_PATH"      envDefault:"cosmicds.db"`
	JournalPath string `env:"COSMICDS_JOURNAL_PATH"`
	ListenAddr  string `env:"COSMICDS_LISTEN_ADDR"  envDefault:":8080"`

	ServiceName  string `env:"COSMICDS_SERVICE_NAME"  envDefault:"cosmicds"`
	OTelEnabled  bool   `env:"COSMICDS_OTEL_ENABLED"`
	OTelEndpoint string `env:"COSMICDS_OTEL_ENDPOINT"`
}

// ParseEnv loads environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("COSMICDS_TIMEOUT must be positive, got %s", c.Timeout))
	}
	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("COSMICDS_API_URL must be an http(s) URL, got %q", c.APIURL))
	}
	if c.StudentID < 0 {
		errs = append(errs, fmt.Errorf("COSMICDS_STUDENT_ID must not be negative, got %d", c.StudentID))
	}
	if c.TeamMember < 0 {
		errs = append(errs, fmt.Errorf("COSMICDS_TEAM_MEMBER must not be negative, got %d", c.TeamMember))
	}
	if c.Story == "" {
		errs = append(errs, errors.New("COSMICDS_STORY must not be empty"))
	}
	return errors.Join(errs...)
}

// TeamMemberRef returns the team member id, or nil when unset.
func (c Config) TeamMemberRef() *int64 {
	if c.TeamMember == 0 {
		return nil
	}
	id := c.TeamMember
	return &id
}

// TracingEnabled reports whether spans should be exported.
func (c Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}
