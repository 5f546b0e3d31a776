// Package config provides the configuration shared by the CLI, the HTTP API
// and the MCP server. It is decoupled from CLI concerns: flag and environment
// layering lives in internal/cli/config.
package config

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/leapstack-labs/dbtlineage/internal/registry"
)

// Config holds all configuration options.
type Config struct {
	Catalog      string       `koanf:"catalog" json:"catalog"`
	Manifest     string       `koanf:"manifest" json:"manifest"`
	Adapter      string       `koanf:"adapter" json:"adapter"` // overrides manifest metadata.adapter_type
	OutputFormat string       `koanf:"output" json:"output"`
	LogLevel     slog.Level   `koanf:"log_level" json:"log_level"`
	Verbose      bool         `koanf:"verbose" json:"verbose"`
	Load         LoadConfig   `koanf:"load" json:"load"`
	Server       ServerConfig `koanf:"server" json:"server"`

	// ProjectRoot is the directory relative artifact paths are resolved
	// against. It is set by the loader, never read from a config source.
	ProjectRoot string `koanf:"project_root" json:"project_root,omitempty"`
}

// LoadConfig controls the registry load phase.
type LoadConfig struct {
	Concurrency int `koanf:"concurrency" json:"concurrency"`
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Host           string        `koanf:"host" json:"host"`
	Port           int           `koanf:"port" json:"port"`
	Watch          bool          `koanf:"watch" json:"watch"`
	RequestTimeout time.Duration `koanf:"request_timeout" json:"request_timeout"`
	CORSOrigins    []string      `koanf:"cors_origins" json:"cors_origins"`
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EffectiveLogLevel returns the configured level, or debug when verbose.
func (c *Config) EffectiveLogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return c.LogLevel
}

// RegistryOptions returns the registry options for the configured artifacts.
func (c *Config) RegistryOptions(logger *slog.Logger) registry.Options {
	return registry.Options{
		CatalogPath:  c.Catalog,
		ManifestPath: c.Manifest,
		Adapter:      c.Adapter,
		Concurrency:  c.Load.Concurrency,
		Logger:       logger,
	}
}
