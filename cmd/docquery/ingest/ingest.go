// Package ingestcmder provides the ingest command syncing a directory of
// markdown files into the corpus.
package ingestcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/docquery/cmd/docquery/appenv"
	"github.com/papercomputeco/docquery/pkg/app"
	"github.com/papercomputeco/docquery/pkg/cliui"
	"github.com/papercomputeco/docquery/pkg/config"
	"github.com/papercomputeco/docquery/pkg/loader"
)

type ingestCommander struct {
	flags config.FlagValues
	opts  app.Options
}

const ingestLongDesc string = `Sync a directory of markdown files into the corpus.

Every top-level .md file is split into chunks at level 2 to 4 headings and
each chunk is stored as a document with id <filename>#<n>. Files that did
not change since the last sync are skipped, chunks of files that shrank or
were deleted are removed.

Examples:
  docquery ingest ./docs
  docquery ingest ./docs --embedding-provider openai --embedding-model text-embedding-3-small`

const ingestShortDesc string = "Sync markdown files into the corpus"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	appenv.AddEngineFlags(cmd, &cmder.flags, &cmder.opts)

	return cmd
}

func (c *ingestCommander) run(cmd *cobra.Command, dir string) error {
	ctx := cmd.Context()

	a, err := appenv.Open(ctx, cmd, config.CoreFlags, c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	var report *loader.Report
	err = cliui.Step(out, fmt.Sprintf("Syncing %s", dir), func() error {
		var syncErr error
		report, syncErr = a.Loader.Sync(ctx, dir)
		return syncErr
	})
	if err != nil {
		return err
	}

	printReport(out, report, a.Engine.Health(ctx).CorpusSize)
	return nil
}

func printReport(w io.Writer, r *loader.Report, corpusSize int) {
	fmt.Fprintf(w, "\n  %s %s\n", cliui.KeyStyle.Render("files:   "), cliui.ValueStyle.Render(fmt.Sprint(r.Files)))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("skipped: "), cliui.ValueStyle.Render(fmt.Sprint(r.Skipped)))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("ingested:"), cliui.ValueStyle.Render(fmt.Sprint(r.Ingested)))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("removed: "), cliui.ValueStyle.Render(fmt.Sprint(r.Removed)))
	fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf("%d documents in corpus", corpusSize)))
}
