// Package servecmder provides the serve command running the HTTP API with
// the MCP endpoint mounted at /mcp.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/docquery/api"
	apimcp "github.com/papercomputeco/docquery/api/mcp"
	"github.com/papercomputeco/docquery/cmd/docquery/appenv"
	"github.com/papercomputeco/docquery/pkg/app"
	"github.com/papercomputeco/docquery/pkg/config"
	"github.com/papercomputeco/docquery/pkg/logger"
)

type serveCommander struct {
	flags     config.FlagValues
	listen    string
	sourceDir string
	watch     bool
	logFile   string
	opts      app.Options
}

var serveFlags = append([]string{
	config.FlagListen,
	config.FlagSourceDir,
	config.FlagWatch,
}, config.CoreFlags...)

const serveLongDesc string = `Run the docquery HTTP server.

Serves the REST API under /v1 and the MCP streamable HTTP endpoint at /mcp.
When a source directory is configured its markdown files are synced into the
corpus on startup, and re-synced on change with --watch. With --log-file,
records are also appended as JSON to the given file.

Examples:
  docquery serve
  docquery serve --listen :9090 --source-dir ./docs --watch
  docquery serve --storage-driver sqlite --embedding-provider openai`

const serveShortDesc string = "Run the docquery HTTP server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	appenv.AddEngineFlags(cmd, &cmder.flags, &cmder.opts)
	config.AddStringFlag(cmd, config.Registry, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Registry, config.FlagSourceDir, &cmder.sourceDir)
	config.AddBoolFlag(cmd, config.Registry, config.FlagWatch, &cmder.watch)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON log records to this file")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	log := appenv.NewLogger(cmd, os.Stderr)
	if c.logFile != "" {
		fileLog, f, err := appenv.FileLogger(cmd, c.logFile)
		if err != nil {
			return err
		}
		defer f.Close()
		log = logger.Multi(log, fileLog)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	a, err := appenv.OpenWithLogger(ctx, cmd, serveFlags, c.opts, log)
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		if err := a.Close(); err != nil {
			log.Warn("closing engine", logger.Err(err))
		}
	}()

	if err := a.SyncSource(ctx); err != nil {
		return fmt.Errorf("syncing %s: %w", a.Config.Loader.SourceDir, err)
	}

	mcpServer, err := apimcp.NewServer(apimcp.Config{
		Engine:  a.Engine,
		Catalog: a.Loader,
		Logger:  a.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: a.Config.Server.Listen,
		Engine:     a.Engine,
		Catalog:    a.Loader,
		MCP:        mcpServer,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		a.Logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := server.Shutdown(); err != nil {
		a.Logger.Warn("shutting down API server", logger.Err(err))
	}
	return nil
}
