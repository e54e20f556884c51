package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

const defaultJinaBaseURL = "https://api.jina.ai/v1/rerank"

// Jina calls a hosted rerank API. Cross-encoder and late-interaction models
// share the same wire contract; the configured model name selects which one
// runs server-side.
type Jina struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	logger  *zap.Logger
	usage   usage
}

var _ Reranker = (*Jina)(nil)

// JinaConfig configures the hosted reranker client.
type JinaConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewJina creates a hosted reranker client.
func NewJina(cfg JinaConfig, logger *zap.Logger) *Jina {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultJinaBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jina{
		client:  &http.Client{},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

type jinaRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type jinaResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (j *Jina) Rerank(ctx context.Context, query string, results []result.Result, topN int) []result.Result {
	if len(results) == 0 {
		return results
	}
	j.usage.total.Add(1)

	reranked, err := j.rerank(ctx, query, results)
	if err != nil {
		j.usage.failed.Add(1)
		observeRerank("jina", j.model, true)
		j.logger.Warn("hosted rerank failed, keeping original ranking", zap.Error(err))
		return results
	}
	j.usage.ok.Add(1)
	observeRerank("jina", j.model, false)
	return truncate(reranked, topN)
}

func (j *Jina) rerank(ctx context.Context, query string, results []result.Result) ([]result.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Content()
	}
	body, err := json.Marshal(jinaRequest{Model: j.model, Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call rerank api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank api status %d: %s", resp.StatusCode, snippet)
	}

	var parsed jinaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("rerank api returned no results")
	}

	return applyScores(results, func() ([]indexedScore, error) {
		scores := make([]indexedScore, 0, len(parsed.Results))
		for _, r := range parsed.Results {
			scores = append(scores, indexedScore{index: r.Index, score: clamp01(r.RelevanceScore)})
		}
		return scores, nil
	})
}

func (j *Jina) SupportsCaching() bool { return true }

func (j *Jina) Stats() Stats { return j.usage.snapshot(j.model, "jina") }

type indexedScore struct {
	index int
	score float64
}

// applyScores maps backend scores onto the original results. Out-of-range or
// duplicate indexes mean a malformed payload. Documents the backend did not
// score keep their original score and order behind the scored ones.
func applyScores(results []result.Result, fetch func() ([]indexedScore, error)) ([]result.Result, error) {
	scores, err := fetch()
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(scores))
	scored := make([]result.Result, 0, len(results))
	for _, s := range scores {
		if s.index < 0 || s.index >= len(results) {
			return nil, fmt.Errorf("score index %d out of range", s.index)
		}
		if seen[s.index] {
			return nil, fmt.Errorf("duplicate score index %d", s.index)
		}
		seen[s.index] = true
		scored = append(scored, results[s.index].WithScore(s.score))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score() > scored[j].Score()
	})

	for i, r := range results {
		if !seen[i] {
			scored = append(scored, r)
		}
	}
	return scored, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
