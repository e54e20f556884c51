package rerank

import (
	"context"
	"strings"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

// Chain runs rerankers in sequence, each stage refining the previous stage's
// output. Stages degrade individually: a failing stage passes its input
// through, so a broken middle stage never empties the pipeline.
type Chain struct {
	stages []Reranker
}

var _ Reranker = (*Chain)(nil)

// NewChain composes stages into one reranker. Nil stages are skipped.
func NewChain(stages ...Reranker) *Chain {
	kept := make([]Reranker, 0, len(stages))
	for _, s := range stages {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Chain{stages: kept}
}

// Len reports the number of stages.
func (c *Chain) Len() int { return len(c.stages) }

// Rerank applies topN only at the final stage so intermediate stages see the
// full candidate set.
func (c *Chain) Rerank(ctx context.Context, query string, results []result.Result, topN int) []result.Result {
	current := results
	for i, stage := range c.stages {
		stageTopN := 0
		if i == len(c.stages)-1 {
			stageTopN = topN
		}
		current = stage.Rerank(ctx, query, current, stageTopN)
	}
	return current
}

// SupportsCaching reports true only when every stage is deterministic.
func (c *Chain) SupportsCaching() bool {
	for _, s := range c.stages {
		if !s.SupportsCaching() {
			return false
		}
	}
	return len(c.stages) > 0
}

// Stats aggregates stage counters.
func (c *Chain) Stats() Stats {
	var total, ok, failed int64
	models := make([]string, 0, len(c.stages))
	for _, s := range c.stages {
		st := s.Stats()
		total += st.TotalRequests
		ok += st.Successful
		failed += st.Failed
		models = append(models, st.Model)
	}
	agg := Stats{
		TotalRequests: total,
		Successful:    ok,
		Failed:        failed,
		Model:         strings.Join(models, "+"),
		Provider:      "chain",
	}
	if total > 0 {
		agg.SuccessRate = float64(ok) / float64(total)
	}
	return agg
}
