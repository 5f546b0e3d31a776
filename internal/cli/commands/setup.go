package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/cli/config"
	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
	intconfig "github.com/leapstack-labs/dbtlineage/internal/config"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
	"github.com/leapstack-labs/dbtlineage/internal/service"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Service  *service.Service
	Renderer *output.Renderer
}

// NewCommandContext loads the registry from the configured artifacts and
// returns a context with a service over it.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cc := NewCommandContextWithoutRegistry(cmd)

	reg, err := loadRegistry(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return nil, err
	}
	cc.Registry = reg
	cc.Service = service.New(reg, service.WithLogger(cc.Logger))
	return cc, nil
}

// NewCommandContextWithoutRegistry creates a CommandContext for commands
// that do not read dbt artifacts.
func NewCommandContextWithoutRegistry(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the loaded configuration, or the defaults when no
// configuration was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return intconfig.NewDefault()
}

func loadRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reg := registry.New(cfg.RegistryOptions(logger))
	if err := reg.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load dbt artifacts: %w", err)
	}

	stats, err := reg.Stats()
	if err != nil {
		return nil, err
	}
	logger.Debug("registry loaded",
		"models", stats.Models,
		"sources", stats.Sources,
		"exposures", stats.Exposures,
		"columns", stats.Columns,
		"dialect", stats.Dialect,
		"duration", stats.Duration,
	)
	if stats.Failed > 0 {
		logger.Warn("some models could not be parsed; their columns have no lineage",
			"count", stats.Failed, "models", strings.Join(stats.FailedModels, ", "))
	}
	return reg, nil
}

// parseColumnArg parses "model.column" for commands that require a column.
func parseColumnArg(arg string) (service.Selector, error) {
	sel, err := service.ParseSelector(arg)
	if err != nil {
		return service.Selector{}, err
	}
	if !sel.HasColumn() {
		return service.Selector{}, fmt.Errorf("%w: expected model.column, got %q", service.ErrInvalidSelector, arg)
	}
	return sel, nil
}
