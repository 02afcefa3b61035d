package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/papercomputeco/docquery/pkg/filter"
	"github.com/papercomputeco/docquery/pkg/index"
	"github.com/papercomputeco/docquery/pkg/storage"
	"github.com/papercomputeco/docquery/pkg/vector"
)

// Request is a similarity query. Exactly one of Text and Vector is set.
type Request struct {
	Text   string
	Vector []float32

	// TopK must be positive; values above the engine's maximum are clamped.
	TopK int

	Filter filter.Filter

	// MinScore, when set, drops hits scoring below it.
	MinScore *float32
}

// Result is one ranked document.
type Result struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response holds results ordered by descending score, ties broken by
// insertion order.
type Response struct {
	Results  []Result `json:"results"`
	TopK     int      `json:"top_k"`
	Strategy string   `json:"strategy"`
}

// Query embeds the request text, if any, searches the index and resolves
// each hit against the store. Hits whose document disappeared are dropped.
func (e *Engine) Query(ctx context.Context, req Request) (*Response, error) {
	const op = "query"

	if err := e.checkReady(op, ""); err != nil {
		return nil, err
	}

	topK, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	q := req.Vector
	if q == nil {
		q, err = e.codec.Embed(ctx, req.Text)
		if err != nil {
			return nil, newError(op, "", ErrEmbeddingUnavailable, err)
		}
	}

	e.view.RLock()
	defer e.view.RUnlock()

	hits, err := e.index.Search(ctx, q, topK, req.Filter)
	if err != nil {
		if errors.Is(err, index.ErrDimensionMismatch) {
			return nil, newError(op, "", ErrInvalidQuery, err)
		}
		return nil, newError(op, "", ErrStoreUnavailable, err)
	}

	resp := &Response{
		Results:  make([]Result, 0, len(hits)),
		TopK:     topK,
		Strategy: string(e.index.Strategy()),
	}
	for _, h := range hits {
		if req.MinScore != nil && h.Score < *req.MinScore {
			continue
		}

		doc, err := e.store.Get(ctx, h.ID)
		if storage.IsNotFound(err) {
			e.logger.Warn("dropping stale index entry", "id", h.ID)
			continue
		}
		if err != nil {
			return nil, newError(op, h.ID, ErrStoreUnavailable, err)
		}

		resp.Results = append(resp.Results, Result{
			ID:       doc.ID,
			Score:    h.Score,
			Text:     doc.Text,
			Metadata: doc.Metadata,
		})
	}
	return resp, nil
}

// validate checks req and returns the effective top_k.
func (e *Engine) validate(req Request) (int, error) {
	const op = "query"

	hasText := strings.TrimSpace(req.Text) != ""
	hasVector := req.Vector != nil

	switch {
	case hasText && hasVector:
		return 0, invalidf(op, "", ErrInvalidQuery, "set either text or vector, not both")
	case !hasText && !hasVector:
		return 0, invalidf(op, "", ErrInvalidQuery, "text or vector is required")
	}

	if req.TopK <= 0 {
		return 0, invalidf(op, "", ErrInvalidQuery, "top_k must be positive, got %d", req.TopK)
	}

	if hasVector {
		if err := vector.Validate(req.Vector, e.codec.Dimensions()); err != nil {
			return 0, newError(op, "", ErrInvalidQuery, err)
		}
	}

	if err := req.Filter.Validate(); err != nil {
		return 0, newError(op, "", ErrInvalidQuery, err)
	}

	return min(req.TopK, e.maxTopK), nil
}
