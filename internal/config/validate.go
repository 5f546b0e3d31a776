package config

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/leapstack-labs/dbtlineage/internal/artifacts"
	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Catalog, validation.Required),
		validation.Field(&c.Manifest, validation.Required),
		validation.Field(&c.OutputFormat, validation.Required, validation.In(anySlice(OutputModes)...)),
		validation.Field(&c.Adapter, validation.By(knownAdapter)),
	); err != nil {
		return err
	}
	if err := c.Load.Validate(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Validate checks the load configuration.
func (c *LoadConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(int64(1))),
	)
}

func knownAdapter(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if _, ok := parser.DialectByName(artifacts.DialectForAdapter(s)); !ok {
		return errors.New("unsupported adapter")
	}
	return nil
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
