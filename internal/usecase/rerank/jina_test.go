package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

func newTestJina(t *testing.T, handler http.HandlerFunc) (*Jina, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	j := NewJina(JinaConfig{APIKey: "test-key", Model: "jina-reranker-v2", BaseURL: srv.URL}, nil)
	return j, srv
}

func TestJinaRerank_OrdersByRelevance(t *testing.T) {
	var gotReq jinaRequest
	var gotAuth string
	j, _ := newTestJina(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.95},
				{"index": 0, "relevance_score": 0.40},
			},
		})
	})

	input := []result.Result{
		res("a", 0.9, "content of a"),
		res("b", 0.8, "content of b"),
	}
	got := j.Rerank(context.Background(), "query", input, 0)

	if !sameOrder(got, "b", "a") {
		t.Errorf("expected b before a, got %v", ids(got))
	}
	if got[0].Score() != 0.95 || got[1].Score() != 0.40 {
		t.Errorf("unexpected scores: %v, %v", got[0].Score(), got[1].Score())
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotReq.Model != "jina-reranker-v2" || gotReq.Query != "query" || len(gotReq.Documents) != 2 {
		t.Errorf("unexpected request: %+v", gotReq)
	}

	stats := j.Stats()
	if stats.Successful != 1 || stats.Provider != "jina" {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestJinaRerank_ClampsScores(t *testing.T) {
	j, _ := newTestJina(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 0, "relevance_score": 1.7},
				{"index": 1, "relevance_score": -0.3},
			},
		})
	})

	input := []result.Result{
		res("a", 0.9, "content of a"),
		res("b", 0.8, "content of b"),
	}
	got := j.Rerank(context.Background(), "query", input, 0)
	if got[0].Score() != 1.0 || got[1].Score() != 0.0 {
		t.Errorf("scores must be clamped to [0,1], got %v, %v", got[0].Score(), got[1].Score())
	}
}

func TestJinaRerank_HTTPErrorKeepsOriginal(t *testing.T) {
	j, _ := newTestJina(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	input := []result.Result{
		res("a", 0.9, "content of a"),
		res("b", 0.8, "content of b"),
	}
	got := j.Rerank(context.Background(), "query", input, 1)

	if !sameOrder(got, "a", "b") {
		t.Errorf("expected original list full length, got %v", ids(got))
	}
	if j.Stats().Failed != 1 {
		t.Errorf("expected failure counted, got %+v", j.Stats())
	}
}

func TestJinaRerank_MalformedPayloadKeepsOriginal(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"results": [`},
		{"empty results", `{"results": []}`},
		{"index out of range", `{"results": [{"index": 9, "relevance_score": 0.5}]}`},
		{"duplicate index", `{"results": [{"index": 0, "relevance_score": 0.5}, {"index": 0, "relevance_score": 0.4}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			j, _ := newTestJina(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tc.body))
			})

			input := []result.Result{res("a", 0.9, "content of a")}
			got := j.Rerank(context.Background(), "query", input, 0)
			if !sameOrder(got, "a") {
				t.Errorf("expected original list, got %v", ids(got))
			}
		})
	}
}

func TestJinaRerank_UnscoredDocsKeepPosition(t *testing.T) {
	j, _ := newTestJina(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.9},
			},
		})
	})

	input := []result.Result{
		res("a", 0.9, "content of a"),
		res("b", 0.8, "content of b"),
		res("c", 0.7, "content of c"),
	}
	got := j.Rerank(context.Background(), "query", input, 0)

	// scored doc first, unscored docs follow in original order
	if !sameOrder(got, "c", "a", "b") {
		t.Errorf("unexpected order: %v", ids(got))
	}
	if got[1].Score() != 0.9 {
		t.Errorf("unscored doc must keep its score, got %v", got[1].Score())
	}
}

func TestJinaRerank_ConnectionRefusedKeepsOriginal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	j := NewJina(JinaConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, nil)

	input := []result.Result{res("a", 0.9, "content of a")}
	got := j.Rerank(context.Background(), "query", input, 0)
	if !sameOrder(got, "a") {
		t.Errorf("expected original list, got %v", ids(got))
	}
}
