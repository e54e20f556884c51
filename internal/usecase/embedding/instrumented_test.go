package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
)

type mockEmbedder struct {
	result     domain.EmbeddingResult
	err        error
	batchErr   error
	batchCalls int
	batchSizes []int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
	}, nil
}

// embedOnly hides the BatchEmbed method to exercise the fallback path.
type embedOnly struct {
	inner *mockEmbedder
	calls int
}

func (e *embedOnly) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	e.calls++
	return e.inner.Embed(ctx, text)
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	innerErr := errors.New("provider down")
	p := NewInstrumentedEmbedder(&mockEmbedder{err: innerErr}, "test", "m", zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test", "m", zap.NewNop())

	result, err := p.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embeddings != nil {
		t.Errorf("expected zero-value result, got %+v", result)
	}
	if inner.batchCalls != 0 {
		t.Errorf("empty batch must not reach the provider")
	}
}

func TestBatchEmbed_SingleChunk(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.1},
		TotalTokens: 2,
	}}
	p := NewInstrumentedEmbedder(inner, "test", "m", zap.NewNop())

	result, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embeddings) != 3 || result.TotalTokens != 6 {
		t.Errorf("unexpected result: %d embeddings, %d tokens", len(result.Embeddings), result.TotalTokens)
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", inner.batchCalls)
	}
}

func TestBatchEmbed_ChunksLargeBatches(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	p := NewInstrumentedEmbedder(inner, "test", "m", zap.NewNop())

	texts := make([]string, DefaultMaxAPIBatchSize+10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	result, err := p.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embeddings) != len(texts) {
		t.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	if inner.batchCalls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", inner.batchCalls)
	}
	if inner.batchSizes[0] != DefaultMaxAPIBatchSize || inner.batchSizes[1] != 10 {
		t.Errorf("unexpected chunk sizes: %v", inner.batchSizes)
	}
}

func TestBatchEmbed_ErrorPropagates(t *testing.T) {
	batchErr := errors.New("rate limited")
	p := NewInstrumentedEmbedder(&mockEmbedder{batchErr: batchErr}, "test", "m", zap.NewNop())

	_, err := p.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, batchErr) {
		t.Errorf("expected wrapped batch error, got %v", err)
	}
}

func TestBatchEmbed_FallbackForEmbedOnlyProvider(t *testing.T) {
	only := &embedOnly{inner: &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.5},
		TotalTokens: 1,
	}}}
	p := NewInstrumentedEmbedder(only, "test", "m", zap.NewNop())

	result, err := p.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embeddings) != 2 || only.calls != 2 {
		t.Errorf("expected per-text fallback, got %d embeddings from %d calls", len(result.Embeddings), only.calls)
	}
}
