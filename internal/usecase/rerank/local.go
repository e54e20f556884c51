package rerank

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/knights-analytics/hugot"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

// Local re-scores documents with an in-process feature-extraction model.
// Query and documents are embedded in one batch, each document scored by
// sigmoid(cosine(query, doc)). Deterministic for a fixed model, so results
// are safe to cache.
type Local struct {
	embed  func([]string) ([][]float32, error)
	model  string
	logger *zap.Logger
	usage  usage
}

var _ Reranker = (*Local)(nil)

// NewLocal loads the model at modelPath into a hugot Go-backend session.
func NewLocal(modelPath, model string, logger *zap.Logger) (*Local, error) {
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}

	cfg := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "reranker-pipeline",
	}
	pipeline, err := hugot.NewPipeline(session, cfg)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("create reranker pipeline: %w (cleanup: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("create reranker pipeline: %w", err)
	}

	embed := func(texts []string) ([][]float32, error) {
		out, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return out.Embeddings, nil
	}
	return newLocalWithEmbed(embed, model, logger), nil
}

func newLocalWithEmbed(embed func([]string) ([][]float32, error), model string, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{embed: embed, model: model, logger: logger}
}

func (l *Local) Rerank(ctx context.Context, query string, results []result.Result, topN int) []result.Result {
	if len(results) == 0 {
		return results
	}
	l.usage.total.Add(1)

	reranked, err := l.rerank(query, results)
	if err != nil {
		l.usage.failed.Add(1)
		observeRerank("local", l.model, true)
		l.logger.Warn("local rerank failed, keeping original ranking", zap.Error(err))
		return results
	}
	l.usage.ok.Add(1)
	observeRerank("local", l.model, false)
	return truncate(reranked, topN)
}

func (l *Local) rerank(query string, results []result.Result) ([]result.Result, error) {
	texts := make([]string, 0, len(results)+1)
	texts = append(texts, query)
	for _, r := range results {
		texts = append(texts, r.Content())
	}

	embeddings, err := l.embed(texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}

	queryVec := embeddings[0]
	reranked := make([]result.Result, len(results))
	for i, r := range results {
		reranked[i] = r.WithScore(sigmoid(cosine(queryVec, embeddings[i+1])))
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score() > reranked[j].Score()
	})
	return reranked, nil
}

func (l *Local) SupportsCaching() bool { return true }

func (l *Local) Stats() Stats { return l.usage.snapshot(l.model, "local") }

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
