package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
	"github.com/kailas-cloud/ragstream/internal/metrics"
)

// DenseRetriever runs vector-only search: embed the query, KNN against the
// store. Works on any backend.
type DenseRetriever struct {
	store  Store
	embed  Embedder
	topK   int
	dim    int
	logger *zap.Logger

	totalSearches atomic.Int64
	errors        atomic.Int64
}

// Compile-time check.
var _ Retriever = (*DenseRetriever)(nil)

// NewDense creates a dense retriever. dim is the embedding dimensionality,
// used only by HealthCheck's probe vector.
func NewDense(store Store, embed Embedder, topK, dim int, logger *zap.Logger) (*DenseRetriever, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dim must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DenseRetriever{store: store, embed: embed, topK: topK, dim: dim, logger: logger}, nil
}

// Search embeds the query and runs similarity search. Embedding and store
// failures propagate: a dense search that cannot run has no partial answer.
func (r *DenseRetriever) Search(
	ctx context.Context, query string, opts ...Option,
) ([]result.Result, error) {
	r.totalSearches.Add(1)
	started := time.Now()
	o := applyOptions(r.topK, opts)

	emb, err := r.embed.Embed(ctx, query)
	if err != nil {
		r.errors.Add(1)
		metrics.SearchRequestsTotal.WithLabelValues("dense", "error").Inc()
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	results, err := r.store.Search(ctx, emb.Embedding, o.topK, o.filters)
	if err != nil {
		r.errors.Add(1)
		metrics.SearchRequestsTotal.WithLabelValues("dense", "error").Inc()
		return nil, fmt.Errorf("dense search: %w", err)
	}
	metrics.SearchRequestsTotal.WithLabelValues("dense", "success").Inc()
	metrics.SearchRequestDuration.WithLabelValues("dense").Observe(time.Since(started).Seconds())
	return results, nil
}

// HealthCheck probes the store with a dummy vector asking for one result.
func (r *DenseRetriever) HealthCheck(ctx context.Context) bool {
	_, err := r.store.Search(ctx, probeVector(r.dim), 1, nil)
	if err != nil {
		r.logger.Warn("retriever health check failed", zap.Error(err))
		return false
	}
	return true
}

// Stats returns a counter snapshot.
func (r *DenseRetriever) Stats() Stats {
	return Stats{
		TotalSearches: r.totalSearches.Load(),
		Errors:        r.errors.Load(),
	}
}

func probeVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 0.1
	}
	return v
}
