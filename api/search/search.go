// Package search provides the search request and response shapes shared by
// the REST endpoint and the MCP tool, and turns one into an engine query.
package search

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/docquery/pkg/engine"
	"github.com/papercomputeco/docquery/pkg/filter"
)

// SearchInput represents the input arguments for a search request.
type SearchInput struct {
	Query    string           `json:"query,omitempty" jsonschema:"the text to find similar documents for; set exactly one of query and vector"`
	Vector   []float32        `json:"vector,omitempty" jsonschema:"a query embedding to search with instead of text"`
	TopK     *int             `json:"top_k,omitempty" jsonschema:"number of results to return (default 5, must be positive)"`
	Filter   map[string]any   `json:"filter,omitempty" jsonschema:"metadata fields that must equal the given values"`
	Where    []WherePredicate `json:"where,omitempty" jsonschema:"metadata predicates that must all hold"`
	MinScore *float32         `json:"min_score,omitempty" jsonschema:"drop results scoring below this value"`
}

// WherePredicate is one metadata comparison.
type WherePredicate struct {
	Field string `json:"field" jsonschema:"metadata field name"`
	Op    string `json:"op" jsonschema:"one of eq, ne, gt, gte, lt, lte, in, contains, exists"`
	Value any    `json:"value,omitempty" jsonschema:"value to compare with; a list for in"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchOutput represents the output of a search operation.
type SearchOutput struct {
	Query    string         `json:"query,omitempty"`
	Results  []SearchResult `json:"results"`
	Count    int            `json:"count"`
	TopK     int            `json:"top_k"`
	Strategy string         `json:"strategy"`
}

// Querier is the part of the engine search needs.
type Querier interface {
	Query(ctx context.Context, req engine.Request) (*engine.Response, error)
	DefaultTopK() int
}

// Request converts input into an engine request. A missing top_k takes
// the engine default; an explicit one is passed through for validation.
func Request(input SearchInput, defaultTopK int) engine.Request {
	topK := defaultTopK
	if input.TopK != nil {
		topK = *input.TopK
	}

	f := filter.FromMap(input.Filter)
	for _, p := range input.Where {
		f = append(f, filter.Predicate{Field: p.Field, Op: filter.Op(p.Op), Value: p.Value})
	}

	return engine.Request{
		Text:     input.Query,
		Vector:   input.Vector,
		TopK:     topK,
		Filter:   f,
		MinScore: input.MinScore,
	}
}

// Search runs input against q.
func Search(ctx context.Context, q Querier, input SearchInput, logger *slog.Logger) (*SearchOutput, error) {
	req := Request(input, q.DefaultTopK())

	logger.Debug("search request",
		"query", input.Query,
		"vector", len(input.Vector) > 0,
		"top_k", req.TopK,
		"predicates", len(req.Filter),
	)

	resp, err := q.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = SearchResult{
			ID:       r.ID,
			Score:    r.Score,
			Text:     r.Text,
			Metadata: r.Metadata,
		}
	}

	return &SearchOutput{
		Query:    input.Query,
		Results:  results,
		Count:    len(results),
		TopK:     resp.TopK,
		Strategy: resp.Strategy,
	}, nil
}
