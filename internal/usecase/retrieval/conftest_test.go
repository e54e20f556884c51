package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

type fakeStore struct {
	searchFn       func(ctx context.Context, vector []float32, topK int, filters map[string]any) ([]result.Result, error)
	searchTextFn   func(ctx context.Context, query string, topK int, filters map[string]any) ([]result.Result, error)
	supportsTextFn func(ctx context.Context) bool
}

func (f *fakeStore) Search(
	ctx context.Context, vector []float32, topK int, filters map[string]any,
) ([]result.Result, error) {
	return f.searchFn(ctx, vector, topK, filters)
}

func (f *fakeStore) SearchText(
	ctx context.Context, query string, topK int, filters map[string]any,
) ([]result.Result, error) {
	if f.searchTextFn == nil {
		panic("unexpected SearchText call")
	}
	return f.searchTextFn(ctx, query, topK, filters)
}

func (f *fakeStore) SupportsTextSearch(ctx context.Context) bool {
	if f.supportsTextFn == nil {
		return true
	}
	return f.supportsTextFn(ctx)
}

type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return f.embedFn(ctx, text)
}

func staticEmbedder(vec []float32) *fakeEmbedder {
	return &fakeEmbedder{embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{Embedding: vec, TotalTokens: len(vec)}, nil
	}}
}
