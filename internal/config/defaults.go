package config

import (
	"log/slog"
	"time"

	"github.com/leapstack-labs/dbtlineage/internal/registry"
)

// Default configuration values.
const (
	DefaultCatalog        = "target/catalog.json"
	DefaultManifest       = "target/manifest.json"
	DefaultOutput         = "auto" // TTY=text, non-TTY=markdown
	DefaultLogLevel       = "info"
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8000
	DefaultRequestTimeout = 30 * time.Second
	DefaultConcurrency    = registry.DefaultConcurrency
)

// OutputModes lists the accepted values of the output key.
var OutputModes = []string{"auto", "text", "markdown", "json", "yaml"}

// Defaults returns the default values keyed the way config files spell them.
func Defaults() map[string]any {
	return map[string]any{
		"catalog":                DefaultCatalog,
		"manifest":               DefaultManifest,
		"adapter":                "",
		"output":                 DefaultOutput,
		"log_level":              DefaultLogLevel,
		"verbose":                false,
		"load.concurrency":       DefaultConcurrency,
		"server.host":            DefaultHost,
		"server.port":            DefaultPort,
		"server.watch":           false,
		"server.request_timeout": DefaultRequestTimeout.String(),
		"server.cors_origins":    []string{"*"},
	}
}

// NewDefault returns a Config with default values.
func NewDefault() *Config {
	c := &Config{}
	ApplyDefaults(c)
	return c
}

// ApplyDefaults fills unset fields with default values.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.Catalog == "" {
		c.Catalog = DefaultCatalog
	}
	if c.Manifest == "" {
		c.Manifest = DefaultManifest
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutput
	}
	if c.Load.Concurrency == 0 {
		c.Load.Concurrency = DefaultConcurrency
	}
	ApplyServerDefaults(&c.Server)
}

// ApplyServerDefaults fills unset server fields with default values.
func ApplyServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.CORSOrigins == nil {
		s.CORSOrigins = []string{"*"}
	}
}

// ParseLevel parses a slog level name. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := l.UnmarshalText([]byte(s))
	return l, err
}
