// Package docquerycmder
package docquerycmder

import (
	"github.com/spf13/cobra"

	archivecmder "github.com/papercomputeco/docquery/cmd/docquery/archive"
	"github.com/papercomputeco/docquery/cmd/docquery/appenv"
	configcmder "github.com/papercomputeco/docquery/cmd/docquery/config"
	ingestcmder "github.com/papercomputeco/docquery/cmd/docquery/ingest"
	querycmder "github.com/papercomputeco/docquery/cmd/docquery/query"
	servecmder "github.com/papercomputeco/docquery/cmd/docquery/serve"
	stdiocmder "github.com/papercomputeco/docquery/cmd/docquery/stdio"
	versioncmder "github.com/papercomputeco/docquery/cmd/version"
)

const docqueryLongDesc string = `docquery is semantic retrieval over your documents.

It embeds documents with a configured provider, keeps them in a durable
store, and answers similarity queries over MCP and a small REST API.

Run the server using:
  docquery serve       Run the HTTP API with MCP mounted at /mcp
  docquery stdio       Serve MCP over stdin/stdout

Manage the corpus using:
  docquery ingest      Sync a directory of markdown files
  docquery query       Run a similarity query
  docquery export      Back up the corpus to an archive
  docquery import      Restore documents from an archive`

const docqueryShortDesc string = "docquery - semantic document retrieval"

func NewDocqueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "docquery",
		Short:         docqueryShortDesc,
		Long:          docqueryLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP(appenv.FlagDebug, "d", false, "Enable debug logging")
	cmd.PersistentFlags().Bool(appenv.FlagLogJSON, false, "Write logs as JSON")
	cmd.PersistentFlags().String(appenv.FlagConfigDir, "", "Override path to .docquery/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(stdiocmder.NewStdioCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(archivecmder.NewExportCmd())
	cmd.AddCommand(archivecmder.NewImportCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
