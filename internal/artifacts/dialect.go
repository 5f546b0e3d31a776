package artifacts

import "strings"

var adapterDialects = map[string]string{
	"sqlserver":  "tsql",
	"synapse":    "tsql",
	"fabric":     "tsql",
	"databricks": "spark",
	"spark":      "spark",
}

// DialectForAdapter maps a dbt adapter type to a SQL dialect name. Adapters
// without a special case map to their own lower-cased name.
func DialectForAdapter(adapter string) string {
	adapter = strings.ToLower(strings.TrimSpace(adapter))
	if d, ok := adapterDialects[adapter]; ok {
		return d
	}
	return adapter
}
