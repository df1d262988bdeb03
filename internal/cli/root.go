// Package cli holds the cobra command tree of the steamwatch binary.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/steamwatch/internal/config"
	"github.com/okian/steamwatch/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"

	// LogOutput overrides where logs go; nil means stdout.
	LogOutput io.Writer
}

// ValidFormats defines the allowed output formats of check and prune.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	serve := NewServeCommand(opts)
	cmd := &cobra.Command{
		Use:   "steamwatch",
		Short: "Steam inventory watcher with a Telegram bot",
		Long: "Polls public Steam inventories on a schedule and notifies Telegram\n" +
			"watchers when new items appear.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		RunE: serve.RunE,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (default $STEAMWATCH_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setup loads the config and initializes logging from it.
func setup(ctx context.Context, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logOpts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if opts.LogOutput != nil {
		logOpts = append(logOpts, logger.WithOutput(opts.LogOutput))
	}
	if err := logger.Init(logOpts...); err != nil {
		return nil, fmt.Errorf("%w: log_format: %w", config.ErrInvalidConfig, err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
	}
	return cfg, nil
}
