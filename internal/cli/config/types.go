// Package config loads CLI configuration.
//
// The configuration types live in internal/config so the HTTP API and the
// MCP server can share them; they are re-exported here via type aliases for
// convenience.
package config

import sharedcfg "github.com/leapstack-labs/dbtlineage/internal/config"

// Config is an alias for the shared configuration.
type Config = sharedcfg.Config

// ServerConfig is an alias for the shared server configuration.
type ServerConfig = sharedcfg.ServerConfig

// EnvPrefix is the prefix of environment variables read by the loader.
const EnvPrefix = "DBTLINEAGE_"

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultCatalog  = sharedcfg.DefaultCatalog
	DefaultManifest = sharedcfg.DefaultManifest
	DefaultOutput   = sharedcfg.DefaultOutput
)
