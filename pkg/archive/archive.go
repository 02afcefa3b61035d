// Package archive streams a corpus to and from a compressed JSON-lines file.
//
// The first line is a Header carrying the corpus manifest; every following
// line is one stored document, vector included, in insertion order.
// Restoring ingests the stored vectors directly, so no embedding calls are
// made.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
)

const (
	// Format identifies a docquery archive header.
	Format = "docquery-archive"

	// Version is the current header version.
	Version = 1
)

var (
	ErrNotArchive       = errors.New("not a docquery archive")
	ErrManifestMismatch = errors.New("archive manifest does not match corpus")
	ErrUnknownCompress  = errors.New("unknown compression")
)

// Compression selects the stream codec of an archive.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
	CompressionNone Compression = "none"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ParseCompression resolves a configured compression name. The empty string
// selects zstd.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionZstd, nil
	case CompressionZstd, CompressionLZ4, CompressionNone:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q (available: zstd, lz4, none)", ErrUnknownCompress, s)
	}
}

// Extension is the conventional file suffix for archives using c.
func (c Compression) Extension() string {
	switch c {
	case CompressionZstd:
		return ".jsonl.zst"
	case CompressionLZ4:
		return ".jsonl.lz4"
	default:
		return ".jsonl"
	}
}

// Header is the first line of an archive.
type Header struct {
	Format    string            `json:"format"`
	Version   int               `json:"version"`
	Manifest  *storage.Manifest `json:"manifest"`
	CreatedAt time.Time         `json:"created_at"`
}

// Source is a corpus that can be exported.
type Source interface {
	Manifest() *storage.Manifest
	Each(ctx context.Context, fn func(*storage.Document) error) error
}

// Sink is a corpus that can be restored into.
type Sink interface {
	Manifest() *storage.Manifest
	Ingest(ctx context.Context, doc *storage.Document) (*storage.Document, error)
}

// Options configure Export and Import.
type Options struct {
	Compression Compression
	Logger      *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return logger.Nop()
	}
	return o.Logger
}

// Export writes every document of src to w and returns how many were
// written.
func Export(ctx context.Context, w io.Writer, src Source, opts *Options) (int, error) {
	compression := CompressionZstd
	if opts != nil && opts.Compression != "" {
		compression = opts.Compression
	}

	cw, err := compressor(w, compression)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(cw)
	header := &Header{
		Format:    Format,
		Version:   Version,
		Manifest:  src.Manifest(),
		CreatedAt: time.Now().UTC(),
	}
	if err := enc.Encode(header); err != nil {
		_ = cw.Close()
		return 0, fmt.Errorf("writing archive header: %w", err)
	}

	n := 0
	err = src.Each(ctx, func(doc *storage.Document) error {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("writing document %s: %w", doc.ID, err)
		}
		n++
		return nil
	})
	if err != nil {
		_ = cw.Close()
		return n, err
	}

	if err := cw.Close(); err != nil {
		return n, fmt.Errorf("flushing archive: %w", err)
	}

	opts.logger().Info("exported corpus", "documents", n, "compression", string(compression))
	return n, nil
}

func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompress, c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Detect reports the compression of the stream in br without consuming it.
func Detect(br *bufio.Reader) Compression {
	magic, _ := br.Peek(4)
	switch {
	case bytes.Equal(magic, zstdMagic):
		return CompressionZstd
	case bytes.Equal(magic, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

func decompressor(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	switch Detect(br) {
	case CompressionZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(br), func() {}, nil
	default:
		return br, func() {}, nil
	}
}

// Import reads an archive from r and ingests every document into dst. The
// archive must have been written for the same dimensions and metric.
func Import(ctx context.Context, r io.Reader, dst Sink, opts *Options) (int, error) {
	log := opts.logger()

	dr, closeFn, err := decompressor(r)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}
	defer closeFn()

	dec := json.NewDecoder(dr)

	header := &Header{}
	if err := dec.Decode(header); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotArchive, err)
	}
	if header.Format != Format || header.Manifest == nil {
		return 0, ErrNotArchive
	}
	if header.Version > Version {
		return 0, fmt.Errorf("%w: version %d is newer than supported version %d", ErrNotArchive, header.Version, Version)
	}
	if err := checkManifest(header.Manifest, dst.Manifest(), log); err != nil {
		return 0, err
	}

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		doc := &storage.Document{}
		err := dec.Decode(doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("reading document %d: %w", n+1, err)
		}

		if _, err := dst.Ingest(ctx, doc); err != nil {
			return n, fmt.Errorf("restoring document %s: %w", doc.ID, err)
		}
		n++
	}

	log.Info("imported corpus", "documents", n)
	return n, nil
}

func checkManifest(have, want *storage.Manifest, log *slog.Logger) error {
	if have.Dimensions != want.Dimensions {
		return fmt.Errorf("%w: dimensions %d != %d", ErrManifestMismatch, have.Dimensions, want.Dimensions)
	}
	if have.Metric != want.Metric {
		return fmt.Errorf("%w: metric %q != %q", ErrManifestMismatch, have.Metric, want.Metric)
	}
	if have.Provider != want.Provider || have.Model != want.Model {
		log.Warn("archive was embedded by a different model",
			"archive_provider", have.Provider,
			"archive_model", have.Model,
			"provider", want.Provider,
			"model", want.Model,
		)
	}
	return nil
}
