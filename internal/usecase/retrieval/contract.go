// Package retrieval implements dense and hybrid document retrieval with
// Reciprocal Rank Fusion.
package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

// Retriever finds documents relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...Option) ([]result.Result, error)

	// HealthCheck probes the underlying store with a dummy vector.
	// It reports readiness and never returns an error.
	HealthCheck(ctx context.Context) bool
}

// Store is the storage contract consumed by retrievers.
type Store interface {
	Search(ctx context.Context, vector []float32, topK int, filters map[string]any) ([]result.Result, error)
	SearchText(ctx context.Context, query string, topK int, filters map[string]any) ([]result.Result, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Preprocessing collaborators for the sparse leg of hybrid search.
// Each is optional; a nil collaborator skips its step.
type (
	// CompoundProtector shields multi-word terms from tokenization, then
	// restores them after the other steps ran.
	CompoundProtector interface {
		Protect(query string) (string, error)
		Restore(query string) (string, error)
	}

	// SynonymExpander appends known synonyms to matched terms.
	SynonymExpander interface {
		Expand(query string) (string, error)
	}

	// StopwordFilter strips low-signal words.
	StopwordFilter interface {
		Strip(query string) (string, error)
	}
)

// Stats is a snapshot of retriever counters.
type Stats struct {
	TotalSearches  int64
	HybridSearches int64
	Errors         int64
}

// Option adjusts a single Search call.
type Option func(*searchOptions)

type searchOptions struct {
	topK    int
	filters map[string]any
}

// WithTopK overrides the retriever's default result count.
func WithTopK(k int) Option {
	return func(o *searchOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithFilters restricts the search to documents matching all filters.
func WithFilters(filters map[string]any) Option {
	return func(o *searchOptions) { o.filters = filters }
}

func applyOptions(defaultTopK int, opts []Option) searchOptions {
	o := searchOptions{topK: defaultTopK}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
