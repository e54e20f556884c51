package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragstream/internal/domain"
)

func sseServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerator_StreamsTokensInOrder(t *testing.T) {
	server := sseServer(t, []string{"안녕", "하세요", "!"})
	gen := NewGenerator(&GeneratorConfig{
		APIKey: "k", BaseURL: server.URL, Model: "test-model", Provider: "test",
	})

	var tokens []string
	err := gen.Stream(context.Background(), "question", func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if strings.Join(tokens, "") != "안녕하세요!" {
		t.Errorf("unexpected tokens: %v", tokens)
	}
}

func TestGenerator_EmitErrorAborts(t *testing.T) {
	server := sseServer(t, []string{"a", "b", "c"})
	gen := NewGenerator(&GeneratorConfig{APIKey: "k", BaseURL: server.URL, Model: "m", Provider: "test"})

	emitErr := errors.New("client gone")
	count := 0
	err := gen.Stream(context.Background(), "q", func(string) error {
		count++
		if count == 2 {
			return emitErr
		}
		return nil
	})
	if !errors.Is(err, emitErr) {
		t.Errorf("expected emit error, got %v", err)
	}
	if count != 2 {
		t.Errorf("stream must stop after emit failure, emitted %d", count)
	}
}

func TestGenerator_APIErrorWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "model not found"}}`, http.StatusNotFound)
	}))
	defer server.Close()
	gen := NewGenerator(&GeneratorConfig{APIKey: "k", BaseURL: server.URL, Model: "missing", Provider: "test"})

	err := gen.Stream(context.Background(), "q", func(string) error { return nil })
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestGenerator_EmptyDeltasSkipped(t *testing.T) {
	server := sseServer(t, []string{"", "only", ""})
	gen := NewGenerator(&GeneratorConfig{APIKey: "k", BaseURL: server.URL, Model: "m", Provider: "test"})

	var tokens []string
	if err := gen.Stream(context.Background(), "q", func(token string) error {
		tokens = append(tokens, token)
		return nil
	}); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "only" {
		t.Errorf("empty deltas must not be emitted: %v", tokens)
	}
}
