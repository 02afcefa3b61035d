package loader

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"

	"github.com/papercomputeco/docquery/pkg/storage"
)

const (
	// DefaultHeading fills heading levels a chunk has no heading for.
	DefaultHeading = "Default Heading"

	// DefaultSourceURL is recorded when no "Source:" line precedes a heading.
	DefaultSourceURL = "Not specified"
)

// Metadata keys written on every chunk.
const (
	KeyFilename  = "filename"
	KeyHeadingH2 = "heading_h2"
	KeyHeadingH3 = "heading_h3"
	KeyHeadingH4 = "heading_h4"
	KeySourceURL = "source_url"
	KeyChunk     = "chunk"
	KeyFileHash  = "file_hash"
	KeyFileSize  = "file_size"
	KeyFileMtime = "file_mtime"

	// KeyFileChunks is the number of chunks the file was split into.
	KeyFileChunks = "file_chunks"
)

var (
	headingRE = regexp.MustCompile(`^(#{2,4})\s+(.*)`)
	sourceRE  = regexp.MustCompile(`^Source:\s*(https?://\S+)`)
)

// Chunk is one heading-delimited section of a markdown file.
type Chunk struct {
	Filename  string
	Ordinal   int
	Headings  [3]string
	SourceURL string
	Content   string

	// Matter holds scalar front matter values of the file.
	Matter map[string]any
}

// ID is the stable document id of the chunk.
func (c Chunk) ID() string {
	return ChunkID(c.Filename, c.Ordinal)
}

// ChunkID builds the document id for the ordinal-th chunk of filename.
func ChunkID(filename string, ordinal int) string {
	return fmt.Sprintf("%s#%d", filename, ordinal)
}

// Metadata returns the chunk's document metadata. Chunk keys win over front
// matter keys of the same name.
func (c Chunk) Metadata() map[string]any {
	meta := make(map[string]any, len(c.Matter)+6)
	for k, v := range c.Matter {
		meta[k] = v
	}
	meta[KeyFilename] = c.Filename
	meta[KeyHeadingH2] = c.Headings[0]
	meta[KeyHeadingH3] = c.Headings[1]
	meta[KeyHeadingH4] = c.Headings[2]
	meta[KeySourceURL] = c.SourceURL
	meta[KeyChunk] = int64(c.Ordinal)
	return meta
}

// Parse splits a markdown file into chunks at level 2 to 4 headings.
//
// A "Source: <url>" line directly above a heading is attached to that
// heading's chunk and is not part of any content. A "Source:" line anywhere
// else stays in the content and sets the source of the current chunk.
// Chunks with no content besides whitespace are dropped.
func Parse(filename string, content []byte) ([]Chunk, error) {
	matter := map[string]any{}
	body, err := frontmatter.Parse(bytes.NewReader(content), &matter)
	if err != nil {
		return nil, fmt.Errorf("parsing front matter of %s: %w", filename, err)
	}

	p := &parser{
		filename:  filename,
		matter:    scalarMatter(matter),
		headings:  [3]string{DefaultHeading, DefaultHeading, DefaultHeading},
		sourceURL: DefaultSourceURL,
	}

	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")
	for i, line := range lines {
		if m := sourceRE.FindStringSubmatch(line); m != nil {
			if i+1 < len(lines) && headingRE.MatchString(lines[i+1]) {
				continue
			}
			p.sourceURL = m[1]
		}

		m := headingRE.FindStringSubmatch(line)
		if m == nil {
			p.content = append(p.content, line)
			continue
		}

		p.flush()

		level := len(m[1]) - 2
		p.headings[level] = strings.TrimSpace(m[2])
		for l := level + 1; l < len(p.headings); l++ {
			p.headings[l] = DefaultHeading
		}

		p.sourceURL = DefaultSourceURL
		if i > 0 {
			if sm := sourceRE.FindStringSubmatch(lines[i-1]); sm != nil {
				p.sourceURL = sm[1]
			}
		}
	}
	p.flush()

	return p.chunks, nil
}

type parser struct {
	filename  string
	matter    map[string]any
	headings  [3]string
	sourceURL string
	content   []string
	chunks    []Chunk
}

func (p *parser) flush() {
	text := strings.TrimSpace(strings.Join(p.content, "\n"))
	p.content = p.content[:0]
	if text == "" {
		return
	}

	p.chunks = append(p.chunks, Chunk{
		Filename:  p.filename,
		Ordinal:   len(p.chunks),
		Headings:  p.headings,
		SourceURL: p.sourceURL,
		Content:   text,
		Matter:    p.matter,
	})
}

// scalarMatter keeps the front matter values a document can store.
func scalarMatter(matter map[string]any) map[string]any {
	out := make(map[string]any, len(matter))
	for k, v := range matter {
		n, err := storage.NormalizeMetadata(map[string]any{k: v})
		if err != nil {
			continue
		}
		out[k] = n[k]
	}
	return out
}
