package config

import (
	"fmt"
	"time"

	"github.com/vietddude/fetcher/internal/core/domain"
	redisclient "github.com/vietddude/fetcher/internal/infra/redis"
	"github.com/vietddude/fetcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Net      NetConfig          `yaml:"net"`
	Sources  []SourceConfig     `yaml:"sources"`
	Mirrors  []MirrorConfig     `yaml:"mirrors"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Worker   WorkerConfig       `yaml:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// NetConfig holds network behavior settings shared by all transports.
type NetConfig struct {
	// Retry is the number of additional attempts after the first for
	// spurious network errors. Unset means 2.
	Retry   *int          `yaml:"retry"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SourceConfig holds settings for a fetch source.
type SourceConfig struct {
	Name string            `yaml:"name"`
	Kind domain.SourceKind `yaml:"kind"` // http, git, mirror
	URL  string            `yaml:"url"`
}

// MirrorConfig holds settings for a gRPC registry mirror.
type MirrorConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
}

// WorkerConfig holds settings for the fetch worker.
type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRequeues  int           `yaml:"max_requeues"`
}

// NetCfg validates and returns the network section. A negative retry count is
// a configuration error and is reported before any fetch attempt runs.
func (c *AppConfig) NetCfg() (NetConfig, error) {
	if c.Net.Retry != nil && *c.Net.Retry < 0 {
		return NetConfig{}, fmt.Errorf("net.retry must be non-negative, got %d", *c.Net.Retry)
	}
	return c.Net, nil
}
