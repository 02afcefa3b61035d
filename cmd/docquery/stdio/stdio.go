// Package stdiocmder provides the stdio command serving MCP over
// stdin/stdout.
package stdiocmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apimcp "github.com/papercomputeco/docquery/api/mcp"
	"github.com/papercomputeco/docquery/cmd/docquery/appenv"
	"github.com/papercomputeco/docquery/pkg/app"
	"github.com/papercomputeco/docquery/pkg/config"
)

type stdioCommander struct {
	flags     config.FlagValues
	sourceDir string
	watch     bool
	opts      app.Options
}

var stdioFlags = append([]string{
	config.FlagSourceDir,
	config.FlagWatch,
}, config.CoreFlags...)

const stdioLongDesc string = `Serve the MCP tools over stdin and stdout.

This is the transport MCP clients use when they launch docquery as a
subprocess. Stdout carries protocol frames only; all logs go to stderr.

Example MCP client entry:
  {"command": "docquery", "args": ["stdio", "--source-dir", "./docs"]}`

const stdioShortDesc string = "Serve MCP over stdio"

func NewStdioCmd() *cobra.Command {
	cmder := &stdioCommander{}

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: stdioShortDesc,
		Long:  stdioLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	appenv.AddEngineFlags(cmd, &cmder.flags, &cmder.opts)
	config.AddStringFlag(cmd, config.Registry, config.FlagSourceDir, &cmder.sourceDir)
	config.AddBoolFlag(cmd, config.Registry, config.FlagWatch, &cmder.watch)

	return cmd
}

func (c *stdioCommander) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := appenv.Open(ctx, cmd, stdioFlags, c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.SyncSource(ctx); err != nil {
		return fmt.Errorf("syncing %s: %w", a.Config.Loader.SourceDir, err)
	}

	server, err := apimcp.NewServer(apimcp.Config{
		Engine:  a.Engine,
		Catalog: a.Loader,
		Logger:  a.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	a.Logger.Info("serving MCP over stdio")
	if err := server.RunStdio(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
