package rerank

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

func res(id string, score float64, content string) result.Result {
	return result.New(id, score, content, nil)
}

func ids(results []result.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID()
	}
	return out
}

func sameOrder(a []result.Result, want ...string) bool {
	if len(a) != len(want) {
		return false
	}
	for i, id := range want {
		if a[i].ID() != id {
			return false
		}
	}
	return true
}

type fakeChatCompleter struct {
	fn func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (f *fakeChatCompleter) CreateChatCompletion(
	ctx context.Context, req openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	return f.fn(ctx, req)
}

func chatReply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

// fakeReranker reverses its input, or degrades when failing is set.
type fakeReranker struct {
	failing  bool
	cachable bool
	calls    int
	lastTopN int
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, results []result.Result, topN int) []result.Result {
	f.calls++
	f.lastTopN = topN
	if f.failing {
		return results
	}
	out := make([]result.Result, len(results))
	for i, r := range results {
		out[len(results)-1-i] = r
	}
	return truncate(out, topN)
}

func (f *fakeReranker) SupportsCaching() bool { return f.cachable }

func (f *fakeReranker) Stats() Stats {
	return Stats{TotalRequests: int64(f.calls), Successful: int64(f.calls), Model: "fake"}
}
