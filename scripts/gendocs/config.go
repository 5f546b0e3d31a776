package main

import (
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/leapstack-labs/dbtlineage/internal/cli/config"
	intconfig "github.com/leapstack-labs/dbtlineage/internal/config"
)

// keyDocs describes each configuration key.
var keyDocs = map[string]string{
	"catalog":                "Path to catalog.json, relative to the project root",
	"manifest":               "Path to manifest.json, relative to the project root",
	"adapter":                "SQL dialect; empty uses the manifest's adapter_type",
	"output":                 "Output format: " + strings.Join(intconfig.OutputModes, ", "),
	"log_level":              "Log level: debug, info, warn, error",
	"verbose":                "Shorthand for log_level: debug",
	"load.concurrency":       "Models parsed in parallel",
	"server.host":            "HTTP API listen host",
	"server.port":            "HTTP API listen port",
	"server.watch":           "Reload when the artifacts change",
	"server.request_timeout": "Per-request timeout",
	"server.cors_origins":    "Allowed CORS origins",
}

// envName is the inverse of the loader's environment key mapping.
func envName(key string) string {
	return config.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func generateConfigDocs(outDir string) error {
	log.Printf("Generating configuration reference to %s", outDir)

	p := newPage("Configuration", "dbtlineage configuration reference")
	p.Header(1, "Configuration")
	p.Paragraph("dbtlineage reads `dbtlineage.yaml` from the project root. " +
		"Values are layered: defaults, the config file, `.env` and environment variables, then command-line flags.")

	defaults := intconfig.Defaults()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		def := fmt.Sprint(defaults[k])
		if def == "" {
			def = "-"
		}
		rows = append(rows, []string{inlineCode(k), inlineCode(envName(k)), inlineCode(def), keyDocs[k]})
	}
	p.Table([]string{"Key", "Environment", "Default", "Description"}, rows)
	p.Println()

	p.Header(2, "Example")
	p.Code("yaml", `catalog: target/catalog.json
manifest: target/manifest.json
adapter: duckdb
load:
  concurrency: 8
server:
  port: 8000
  watch: true`)

	if err := p.write(outDir, "configuration.md"); err != nil {
		return err
	}
	log.Printf("  Generated configuration.md")
	return nil
}
