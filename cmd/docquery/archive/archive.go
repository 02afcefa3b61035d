// Package archivecmder provides the export and import commands backing up
// and restoring the corpus.
package archivecmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/docquery/cmd/docquery/appenv"
	"github.com/papercomputeco/docquery/pkg/app"
	"github.com/papercomputeco/docquery/pkg/archive"
	"github.com/papercomputeco/docquery/pkg/cliui"
	"github.com/papercomputeco/docquery/pkg/config"
)

var archiveFlags = append([]string{config.FlagCompression}, config.CoreFlags...)

type exportCommander struct {
	flags       config.FlagValues
	opts        app.Options
	compression string
	bucket      bool
}

const exportLongDesc string = `Export the corpus to a compressed archive.

The archive holds every document with its vector, so it can be imported
without calling the embedding provider. The first line records the corpus
manifest (provider, model, dimensions and metric).

Without a file argument the archive is named docquery-<timestamp> with an
extension matching the compression. Pass "-" to write to stdout. With
--bucket the archive is uploaded to the configured S3-compatible bucket
instead of written locally.

Examples:
  docquery export
  docquery export backup.jsonl.zst
  docquery export --compression lz4 --bucket`

func NewExportCmd() *cobra.Command {
	cmder := &exportCommander{}

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export the corpus to an archive",
		Long:  exportLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return cmder.run(cmd, name)
		},
	}

	appenv.AddEngineFlags(cmd, &cmder.flags, &cmder.opts)
	config.AddStringFlag(cmd, config.Registry, config.FlagCompression, &cmder.compression)
	cmd.Flags().BoolVar(&cmder.bucket, "bucket", false, "Upload to the configured archive bucket")

	return cmd
}

func (c *exportCommander) run(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()

	a, err := appenv.Open(ctx, cmd, archiveFlags, c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	compression, err := archive.ParseCompression(a.Config.Archive.Compression)
	if err != nil {
		return err
	}
	if name == "" {
		name = DefaultName(time.Now(), compression)
	}

	opts := &archive.Options{Compression: compression, Logger: a.Logger}
	export := func(w io.Writer) error {
		n, err := archive.Export(ctx, w, a.Engine, opts)
		if err != nil {
			return err
		}
		a.Logger.Info("exported corpus", "documents", n, "archive", name)
		return nil
	}

	switch {
	case c.bucket:
		b, err := app.NewBucket(a.Config.Archive)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("no archive bucket configured; set archive.endpoint and archive.bucket")
		}
		return cliui.Step(cmd.ErrOrStderr(), fmt.Sprintf("Uploading %s", b.Key(name)), func() error {
			if err := b.Ensure(ctx); err != nil {
				return err
			}
			return b.Upload(ctx, name, export)
		})

	case name == "-":
		return export(cmd.OutOrStdout())
	}

	return cliui.Step(cmd.ErrOrStderr(), fmt.Sprintf("Writing %s", name), func() error {
		return writeFile(name, export)
	})
}

// writeFile writes through a temp file renamed into place so a failed
// export never leaves a truncated archive behind.
func writeFile(name string, write func(io.Writer) error) error {
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, ".docquery-export-*")
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	return os.Rename(tmp.Name(), name)
}

// DefaultName is the archive name used when none is given.
func DefaultName(now time.Time, c archive.Compression) string {
	return fmt.Sprintf("docquery-%s%s", now.UTC().Format("20060102T150405Z"), c.Extension())
}

type importCommander struct {
	flags  config.FlagValues
	opts   app.Options
	bucket bool
}

const importLongDesc string = `Import documents from an archive written by "docquery export".

Compression is detected from the archive itself. The archive's dimensions and
metric must match the corpus; documents are stored with their archived
vectors, so the embedding provider is not called. Existing documents with the
same id are replaced. Pass "-" to read from stdin, or --bucket to read the
named object from the configured archive bucket.

Examples:
  docquery import backup.jsonl.zst
  docquery import docquery-20260101T000000Z.jsonl.zst --bucket`

func NewImportCmd() *cobra.Command {
	cmder := &importCommander{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import documents from an archive",
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	appenv.AddEngineFlags(cmd, &cmder.flags, &cmder.opts)
	cmd.Flags().BoolVar(&cmder.bucket, "bucket", false, "Read from the configured archive bucket")

	return cmd
}

func (c *importCommander) run(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()

	a, err := appenv.Open(ctx, cmd, config.CoreFlags, c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	var r io.ReadCloser
	switch {
	case c.bucket:
		b, err := app.NewBucket(a.Config.Archive)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("no archive bucket configured; set archive.endpoint and archive.bucket")
		}
		r, err = b.Open(ctx, name)
		if err != nil {
			return err
		}

	case name == "-":
		r = io.NopCloser(cmd.InOrStdin())

	default:
		r, err = os.Open(name)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
	}
	defer r.Close()

	return cliui.Step(cmd.ErrOrStderr(), fmt.Sprintf("Importing %s", name), func() error {
		n, err := archive.Import(ctx, r, a.Engine, &archive.Options{Logger: a.Logger})
		if err != nil {
			return err
		}
		a.Logger.Info("imported corpus", "documents", n, "archive", name)
		return nil
	})
}
