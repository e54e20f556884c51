package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

const llmJudgePrompt = `You are a relevance judge. Score how well each numbered document answers the query.
Respond with ONLY a JSON array of objects: [{"index": <document number>, "score": <0 to 10>}].
Score every document exactly once.`

// chatCompleter is the slice of the OpenAI client the judge needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLM scores documents by asking a chat model to judge relevance. Scores come
// back 0..10 and are normalized to 0..1. Output depends on the model's
// sampling, so results are not cacheable.
type LLM struct {
	client  chatCompleter
	model   string
	timeout time.Duration
	logger  *zap.Logger
	usage   usage
}

var _ Reranker = (*LLM)(nil)

// NewLLM creates an LLM-as-judge reranker.
func NewLLM(client chatCompleter, model string, timeout time.Duration, logger *zap.Logger) *LLM {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{client: client, model: model, timeout: timeout, logger: logger}
}

func (l *LLM) Rerank(ctx context.Context, query string, results []result.Result, topN int) []result.Result {
	if len(results) == 0 {
		return results
	}
	l.usage.total.Add(1)

	reranked, err := l.rerank(ctx, query, results)
	if err != nil {
		l.usage.failed.Add(1)
		observeRerank("openai", l.model, true)
		l.logger.Warn("llm rerank failed, keeping original ranking", zap.Error(err))
		return results
	}
	l.usage.ok.Add(1)
	observeRerank("openai", l.model, false)
	return truncate(reranked, topN)
}

func (l *LLM) rerank(ctx context.Context, query string, results []result.Result) ([]result.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nDocuments:\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\n", i, r.Content())
	}

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmJudgePrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	return applyScores(results, func() ([]indexedScore, error) {
		return parseJudgeScores(resp.Choices[0].Message.Content)
	})
}

func (l *LLM) SupportsCaching() bool { return false }

func (l *LLM) Stats() Stats { return l.usage.snapshot(l.model, "openai") }

// parseJudgeScores extracts {index, score} pairs from the model reply,
// tolerating a markdown code fence around the JSON.
func parseJudgeScores(reply string) ([]indexedScore, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var raw []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse judge reply: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("judge reply scored no documents")
	}

	scores := make([]indexedScore, 0, len(raw))
	for _, r := range raw {
		scores = append(scores, indexedScore{index: r.Index, score: clamp01(r.Score / 10.0)})
	}
	return scores, nil
}
