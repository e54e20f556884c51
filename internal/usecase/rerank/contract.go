// Package rerank re-scores retrieved documents with a second-stage model.
// Every implementation degrades gracefully: when the backend fails the
// original ranking is returned unchanged, never an error and never an
// empty list.
package rerank

import (
	"context"
	"sync/atomic"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
	"github.com/kailas-cloud/ragstream/internal/metrics"
)

// Reranker re-orders results by relevance to the query. topN truncates the
// output after re-scoring; topN <= 0 keeps all results. On backend failure
// the input slice is returned as-is, full length.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []result.Result, topN int) []result.Result
	SupportsCaching() bool
	Stats() Stats
}

// Stats is a snapshot of reranker counters.
type Stats struct {
	TotalRequests int64
	Successful    int64
	Failed        int64
	SuccessRate   float64
	Model         string
	Provider      string
}

// usage tracks request outcomes across goroutines.
type usage struct {
	total  atomic.Int64
	ok     atomic.Int64
	failed atomic.Int64
}

func (u *usage) snapshot(model, provider string) Stats {
	total := u.total.Load()
	ok := u.ok.Load()
	s := Stats{
		TotalRequests: total,
		Successful:    ok,
		Failed:        u.failed.Load(),
		Model:         model,
		Provider:      provider,
	}
	if total > 0 {
		s.SuccessRate = float64(ok) / float64(total)
	}
	return s
}

// observeRerank records one rerank outcome. A backend failure counts as
// "degraded": the caller still gets a ranking, just not a re-scored one.
func observeRerank(provider, model string, degraded bool) {
	status := "success"
	if degraded {
		status = "degraded"
	}
	metrics.RerankRequestsTotal.WithLabelValues(provider, model, status).Inc()
}

// truncate applies topN after a successful rerank.
func truncate(results []result.Result, topN int) []result.Result {
	if topN > 0 && len(results) > topN {
		return results[:topN]
	}
	return results
}
