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

// HybridRetriever runs a dense leg on the original query and, when the store
// supports keyword search and alpha < 1, a BM25 leg on the preprocessed
// query. The two rankings are fused by the merger.
type HybridRetriever struct {
	store      Store
	embed      Embedder
	merger     *Merger
	pipeline   *Pipeline
	topK       int
	dim        int
	multiplier int
	logger     *zap.Logger

	totalSearches  atomic.Int64
	hybridSearches atomic.Int64
	errors         atomic.Int64
}

// Compile-time check.
var _ Retriever = (*HybridRetriever)(nil)

// NewHybrid creates a hybrid retriever. multiplier widens each leg's
// candidate pool before fusion (legK = topK * multiplier); values below 1
// are raised to 1. A nil pipeline disables query preprocessing.
func NewHybrid(
	store Store, embed Embedder, merger *Merger, pipeline *Pipeline,
	topK, dim, multiplier int, logger *zap.Logger,
) (*HybridRetriever, error) {
	if merger == nil {
		return nil, fmt.Errorf("merger is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dim must be positive")
	}
	if multiplier < 1 {
		multiplier = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridRetriever{
		store: store, embed: embed, merger: merger, pipeline: pipeline,
		topK: topK, dim: dim, multiplier: multiplier, logger: logger,
	}, nil
}

// Search runs the dense leg, optionally the sparse leg, and fuses them.
// The dense leg always sees the ORIGINAL query text via the embedder;
// preprocessing applies to the keyword leg only.
func (r *HybridRetriever) Search(
	ctx context.Context, query string, opts ...Option,
) ([]result.Result, error) {
	r.totalSearches.Add(1)
	started := time.Now()
	o := applyOptions(r.topK, opts)
	legK := o.topK * r.multiplier

	emb, err := r.embed.Embed(ctx, query)
	if err != nil {
		r.errors.Add(1)
		metrics.SearchRequestsTotal.WithLabelValues("hybrid", "error").Inc()
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	dense, err := r.store.Search(ctx, emb.Embedding, legK, o.filters)
	if err != nil {
		r.errors.Add(1)
		metrics.SearchRequestsTotal.WithLabelValues("hybrid", "error").Inc()
		return nil, fmt.Errorf("dense search: %w", err)
	}

	if !r.sparseEnabled(ctx) {
		if len(dense) > o.topK {
			dense = dense[:o.topK]
		}
		r.observeSuccess(started)
		return dense, nil
	}

	r.hybridSearches.Add(1)

	keywordQuery := query
	if r.pipeline != nil {
		keywordQuery = r.pipeline.Process(query)
	}

	sparse, err := r.store.SearchText(ctx, keywordQuery, legK, o.filters)
	if err != nil {
		// degrade to the dense ranking rather than failing the request
		r.logger.Warn("keyword leg failed, returning dense results only", zap.Error(err))
		if len(dense) > o.topK {
			dense = dense[:o.topK]
		}
		r.observeSuccess(started)
		return dense, nil
	}

	r.observeSuccess(started)
	return r.merger.Merge(dense, sparse, o.topK), nil
}

func (r *HybridRetriever) observeSuccess(started time.Time) {
	metrics.SearchRequestsTotal.WithLabelValues("hybrid", "success").Inc()
	metrics.SearchRequestDuration.WithLabelValues("hybrid").Observe(time.Since(started).Seconds())
}

// sparseEnabled reports whether the keyword leg should run: the store must
// support it and the dense weight must leave the sparse leg a contribution.
func (r *HybridRetriever) sparseEnabled(ctx context.Context) bool {
	return r.merger.Alpha() < 1.0 && r.store.SupportsTextSearch(ctx)
}

// HealthCheck probes the store with a dummy vector asking for one result.
func (r *HybridRetriever) HealthCheck(ctx context.Context) bool {
	_, err := r.store.Search(ctx, probeVector(r.dim), 1, nil)
	if err != nil {
		r.logger.Warn("retriever health check failed", zap.Error(err))
		return false
	}
	return true
}

// Stats returns a counter snapshot.
func (r *HybridRetriever) Stats() Stats {
	return Stats{
		TotalSearches:  r.totalSearches.Load(),
		HybridSearches: r.hybridSearches.Load(),
		Errors:         r.errors.Load(),
	}
}
