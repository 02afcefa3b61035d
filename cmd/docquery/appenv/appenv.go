// Package appenv resolves the configuration, logger and engine shared by
// the docquery commands.
package appenv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/docquery/pkg/app"
	"github.com/papercomputeco/docquery/pkg/cliui"
	"github.com/papercomputeco/docquery/pkg/config"
	"github.com/papercomputeco/docquery/pkg/logger"
)

// Persistent flag names defined on the root command.
const (
	FlagConfigDir = "config-dir"
	FlagDebug     = "debug"
	FlagLogJSON   = "log-json"
)

// LoadConfig resolves the configuration for cmd: registered flags in keys
// win over DOCQUERY_* environment variables, which win over config.toml.
func LoadConfig(cmd *cobra.Command, keys []string) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString(FlagConfigDir)

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.Registry, keys)
	return config.FromViper(v), nil
}

// NewLogger builds the command logger writing to w. Output is colorized on
// a terminal and JSON when --log-json is set.
func NewLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	debug, _ := cmd.Flags().GetBool(FlagDebug)
	jsonLogs, _ := cmd.Flags().GetBool(FlagLogJSON)

	return logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(jsonLogs),
		logger.WithPretty(cliui.IsTerminal(w)),
		logger.WithWriter(w),
	)
}

// Open resolves the configuration and opens the engine. Logs go to stderr
// so stdout stays free for command output.
func Open(ctx context.Context, cmd *cobra.Command, keys []string, opts app.Options) (*app.App, error) {
	cfg, err := LoadConfig(cmd, keys)
	if err != nil {
		return nil, err
	}

	return app.Open(ctx, cfg, NewLogger(cmd, os.Stderr), opts)
}

// OpenWithLogger is Open with a caller supplied logger.
func OpenWithLogger(ctx context.Context, cmd *cobra.Command, keys []string, opts app.Options, log *slog.Logger) (*app.App, error) {
	cfg, err := LoadConfig(cmd, keys)
	if err != nil {
		return nil, err
	}

	return app.Open(ctx, cfg, log, opts)
}

// FileLogger returns a JSON logger appending to the file at path, honoring
// --debug. The caller closes the returned file.
func FileLogger(cmd *cobra.Command, path string) (*slog.Logger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	debug, _ := cmd.Flags().GetBool(FlagDebug)
	return logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	), f, nil
}

// AddEngineFlags registers the core engine flags plus --ephemeral and
// --reindex on cmd.
func AddEngineFlags(cmd *cobra.Command, fv *config.FlagValues, opts *app.Options) {
	config.AddCoreFlags(cmd, fv)
	cmd.Flags().BoolVar(&opts.Ephemeral, "ephemeral", false, "Keep the corpus in memory only")
	cmd.Flags().BoolVar(&opts.Reindex, "reindex", false, "Re-embed the stored corpus if it was built with another provider, model or metric")
}
