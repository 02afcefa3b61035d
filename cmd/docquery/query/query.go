// Package querycmder provides the query command for similarity search over
// the corpus.
package querycmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/docquery/api/search"
	"github.com/papercomputeco/docquery/cmd/docquery/appenv"
	"github.com/papercomputeco/docquery/pkg/app"
	"github.com/papercomputeco/docquery/pkg/cliui"
	"github.com/papercomputeco/docquery/pkg/config"
	"github.com/papercomputeco/docquery/pkg/loader"
	"github.com/papercomputeco/docquery/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

const previewLen = 160

type queryCommander struct {
	flags config.FlagValues
	opts  app.Options

	topK      int
	minScore  float32
	where     []string
	jsonOut   bool
	quiet     bool
	full      bool
	apiTarget string
}

const queryLongDesc string = `Run a similarity query against the corpus.

Results are ranked by similarity to the query text. By default the local
corpus is opened directly; pass --api-target to query a running
"docquery serve" instead.

Use --where to restrict results by metadata equality (repeatable), --json for
machine readable output, and --quiet to print only document ids.

Examples:
  docquery query "feline biology"
  docquery query "rate limits" --top-k 10 --where filename=api.md
  docquery query "rate limits" --api-target http://localhost:8080 --json`

const queryShortDesc string = "Run a similarity query"

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	appenv.AddEngineFlags(cmd, &cmder.flags, &cmder.opts)
	cmd.Flags().IntVarP(&cmder.topK, "top-k", "k", 0, "Number of results to return (default: query.default_top_k)")
	cmd.Flags().Float32Var(&cmder.minScore, "min-score", 0, "Drop results scoring below this value")
	cmd.Flags().StringArrayVar(&cmder.where, "where", nil, "Metadata equality filter as field=value (repeatable)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print results as JSON")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Print only document ids, one per line")
	cmd.Flags().BoolVar(&cmder.full, "full", false, "Render the full text of each result as markdown")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", "", "URL of a running docquery server")

	return cmd
}

func (c *queryCommander) run(cmd *cobra.Command, text string) error {
	input, err := c.input(cmd, text)
	if err != nil {
		return err
	}

	var output *search.SearchOutput
	if c.apiTarget != "" {
		output, err = QueryAPI(cmd.Context(), c.apiTarget, input)
	} else {
		output, err = c.queryLocal(cmd, input)
	}
	if err != nil {
		return err
	}

	return c.print(cmd.OutOrStdout(), output)
}

func (c *queryCommander) input(cmd *cobra.Command, text string) (search.SearchInput, error) {
	input := search.SearchInput{Query: text}

	if cmd.Flags().Changed("top-k") {
		topK := c.topK
		input.TopK = &topK
	}
	if cmd.Flags().Changed("min-score") {
		minScore := c.minScore
		input.MinScore = &minScore
	}

	filter, err := ParseWhere(c.where)
	if err != nil {
		return input, err
	}
	input.Filter = filter

	return input, nil
}

func (c *queryCommander) queryLocal(cmd *cobra.Command, input search.SearchInput) (*search.SearchOutput, error) {
	a, err := appenv.Open(cmd.Context(), cmd, config.CoreFlags, c.opts)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return search.Search(cmd.Context(), a.Engine, input, a.Logger)
}

func (c *queryCommander) print(w io.Writer, output *search.SearchOutput) error {
	switch {
	case c.jsonOut:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(output)

	case c.quiet:
		for _, r := range output.Results {
			fmt.Fprintln(w, r.ID)
		}
		return nil
	}

	if output.Count == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "\n%s %s\n\n",
		headerStyle.Render("Results for:"),
		idStyle.Render(fmt.Sprintf("%q", output.Query)),
	)

	for i, r := range output.Results {
		c.printResult(w, i+1, r)
	}
	return nil
}

func (c *queryCommander) printResult(w io.Writer, rank int, r search.SearchResult) {
	fmt.Fprintf(w, "  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("score: %.4f", r.Score)),
		idStyle.Render(r.ID),
	)

	if path := headingPath(r.Metadata); path != "" {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(path))
	}

	if c.full && cliui.IsTerminal(w) {
		rendered, err := cliui.RenderMarkdown(r.Text, cliui.Width(w, 80)-4)
		if err == nil {
			fmt.Fprintln(w, rendered)
			return
		}
	}

	text := r.Text
	if !c.full {
		text = strings.Join(strings.Fields(utils.Truncate(text, previewLen)), " ")
	}
	fmt.Fprintf(w, "  %s\n\n", previewStyle.Render(text))
}

// headingPath joins the non-default headings of a loader chunk.
func headingPath(meta map[string]any) string {
	var parts []string
	for _, key := range []string{loader.KeyHeadingH2, loader.KeyHeadingH3, loader.KeyHeadingH4} {
		h, ok := meta[key].(string)
		if !ok || h == "" || h == loader.DefaultHeading {
			continue
		}
		parts = append(parts, h)
	}
	return strings.Join(parts, " › ")
}

// ParseWhere turns field=value pairs into an equality filter. Values are
// parsed as JSON when possible so numbers and booleans compare as such.
func ParseWhere(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		field, raw, ok := strings.Cut(pair, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --where %q: expected field=value", pair)
		}

		var value any
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&value); err != nil || dec.More() {
			value = raw
		}
		switch value.(type) {
		case string, bool, json.Number:
		default:
			value = raw
		}
		out[field] = value
	}
	return out, nil
}

// QueryAPI posts input to the /v1/query endpoint of a docquery server.
func QueryAPI(ctx context.Context, apiTarget string, input search.SearchInput) (*search.SearchOutput, error) {
	target, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = "/v1/query"

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to docquery API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query request failed (HTTP %d): %s", resp.StatusCode, string(data))
	}

	var output search.SearchOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse query response: %w", err)
	}
	return &output, nil
}
