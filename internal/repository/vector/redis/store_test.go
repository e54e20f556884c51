package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragstream/internal/db"
	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/repository/vector"
)

type fakeStore struct {
	pingFn        func(ctx context.Context) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	delMultiFn    func(ctx context.Context, keys []string) (int, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchBM25Fn  func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	supportsText  bool
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if f.hsetMultiFn != nil {
		return f.hsetMultiFn(ctx, items)
	}
	return nil
}

func (f *fakeStore) DelMulti(ctx context.Context, keys []string) (int, error) {
	if f.delMultiFn != nil {
		return f.delMultiFn(ctx, keys)
	}
	return len(keys), nil
}

func (f *fakeStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if f.createIndexFn != nil {
		return f.createIndexFn(ctx, def)
	}
	return nil
}

func (f *fakeStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if f.searchKNNFn != nil {
		return f.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (f *fakeStore) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if f.searchBM25Fn != nil {
		return f.searchBM25Fn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (f *fakeStore) SupportsTextSearch(_ context.Context) bool { return f.supportsText }

func newTestStore(t *testing.T, fs *fakeStore) *Store {
	t.Helper()
	s, err := New(context.Background(), fs, "docs", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNew_IndexAlreadyExists(t *testing.T) {
	fs := &fakeStore{
		createIndexFn: func(_ context.Context, _ *db.IndexDefinition) error {
			return db.ErrIndexExists
		},
	}
	if _, err := New(context.Background(), fs, "docs", 4); err != nil {
		t.Fatalf("existing index must not be an error: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), &fakeStore{}, "", 4); err == nil {
		t.Error("expected error for empty collection")
	}
	if _, err := New(context.Background(), &fakeStore{}, "docs", 0); err == nil {
		t.Error("expected error for zero dim")
	}
}

func TestAddDocuments_SkipsMissingEmbeddings(t *testing.T) {
	var gotItems []db.HashSetItem
	fs := &fakeStore{
		hsetMultiFn: func(_ context.Context, items []db.HashSetItem) error {
			gotItems = items
			return nil
		},
	}
	s := newTestStore(t, fs)

	count, err := s.AddDocuments(context.Background(), []vector.Document{
		{ID: "a", Content: "first", Embedding: []float32{0.1, 0.2, 0.3, 0.4}},
		{ID: "b", Content: "no embedding"},
		{ID: "c", Content: "third", Embedding: []float32{0.5, 0.6, 0.7, 0.8}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
	if len(gotItems) != 2 {
		t.Fatalf("expected 2 hash items, got %d", len(gotItems))
	}
	if gotItems[0].Key != domain.KeyPrefix+"docs:a" {
		t.Errorf("unexpected key: %s", gotItems[0].Key)
	}
}

func TestAddDocuments_AllMissingEmbeddings(t *testing.T) {
	called := false
	fs := &fakeStore{
		hsetMultiFn: func(_ context.Context, _ []db.HashSetItem) error {
			called = true
			return nil
		},
	}
	s := newTestStore(t, fs)

	count, err := s.AddDocuments(context.Background(), []vector.Document{{ID: "a"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
	if called {
		t.Error("store must not be called when nothing is writable")
	}
}

func TestAddDocuments_DropsReservedMetadataKeys(t *testing.T) {
	var gotItems []db.HashSetItem
	fs := &fakeStore{
		hsetMultiFn: func(_ context.Context, items []db.HashSetItem) error {
			gotItems = items
			return nil
		},
	}
	s := newTestStore(t, fs)

	_, err := s.AddDocuments(context.Background(), []vector.Document{
		{
			ID: "a", Content: "text", Embedding: []float32{1, 2, 3, 4},
			Metadata: map[string]any{"_id": "spoof", "_score": 99, "content": "spoof", "source": "wiki"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fields := gotItems[0].Fields
	if fields["content"] != "text" {
		t.Errorf("reserved content key must not be overridden: %q", fields["content"])
	}
	if _, ok := fields["_id"]; ok {
		t.Error("_id metadata must be dropped")
	}
	if _, ok := fields["_score"]; ok {
		t.Error("_score metadata must be dropped")
	}
	if fields["source"] != "wiki" {
		t.Errorf("regular metadata must survive: %v", fields)
	}
}

func TestAddDocuments_StoreError(t *testing.T) {
	fs := &fakeStore{
		hsetMultiFn: func(_ context.Context, _ []db.HashSetItem) error {
			return errors.New("connection refused")
		},
	}
	s := newTestStore(t, fs)

	_, err := s.AddDocuments(context.Background(), []vector.Document{
		{ID: "a", Content: "x", Embedding: []float32{1, 2, 3, 4}},
	})
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if se.Backend != "redis" {
		t.Errorf("unexpected backend: %s", se.Backend)
	}
}

func TestSearch_ParsesResults(t *testing.T) {
	fs := &fakeStore{
		searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
			return &db.SearchResult{
				Total: 1,
				Entries: []db.SearchEntry{
					{
						Key:   domain.KeyPrefix + "docs:a",
						Score: 0.9,
						Fields: map[string]string{
							"id": "a", "content": "hello", "year": "2024", "source": "wiki",
						},
					},
				},
			}, nil
		},
	}
	s := newTestStore(t, fs)

	results, err := s.Search(context.Background(), []float32{1, 2, 3, 4}, 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ID() != "a" || r.Content() != "hello" || r.Score() != 0.9 {
		t.Errorf("unexpected result: %s %q %f", r.ID(), r.Content(), r.Score())
	}
	if r.Metadata()["year"] != 2024.0 {
		t.Errorf("numeric metadata must parse: %v", r.Metadata()["year"])
	}
	if r.Metadata()["source"] != "wiki" {
		t.Errorf("string metadata must survive: %v", r.Metadata()["source"])
	}
	if _, ok := r.Metadata()["id"]; ok {
		t.Error("id field must not leak into metadata")
	}
}

func TestSearch_IdsFilterTranslated(t *testing.T) {
	var gotFilters map[string]any
	fs := &fakeStore{
		searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
			gotFilters = q.Filters
			return &db.SearchResult{}, nil
		},
	}
	s := newTestStore(t, fs)

	_, err := s.Search(context.Background(), []float32{1, 2, 3, 4}, 10,
		map[string]any{"ids": []string{"a", "b"}, "lang": "ko"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids, ok := gotFilters["id"].([]string)
	if !ok || len(ids) != 2 {
		t.Errorf("ids filter must translate to id tag filter: %v", gotFilters)
	}
	if _, ok := gotFilters["ids"]; ok {
		t.Error("reserved ids key must not pass through")
	}
	if gotFilters["lang"] != "ko" {
		t.Errorf("regular filters must pass through: %v", gotFilters)
	}
}

func TestSearchText_StoreError(t *testing.T) {
	fs := &fakeStore{
		searchBM25Fn: func(_ context.Context, _ *db.TextQuery) (*db.SearchResult, error) {
			return nil, errors.New("index missing")
		},
	}
	s := newTestStore(t, fs)

	_, err := s.SearchText(context.Background(), "query", 5, nil)
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if len(se.Hints) == 0 {
		t.Error("expected remediation hints")
	}
}

func TestDelete_EmptyIDs(t *testing.T) {
	called := false
	fs := &fakeStore{
		delMultiFn: func(_ context.Context, _ []string) (int, error) {
			called = true
			return 0, nil
		},
	}
	s := newTestStore(t, fs)

	deleted, err := s.Delete(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0, got %d", deleted)
	}
	if called {
		t.Error("store must not be called for empty ids")
	}
}

func TestDelete_CountsExisting(t *testing.T) {
	fs := &fakeStore{
		delMultiFn: func(_ context.Context, keys []string) (int, error) {
			if len(keys) != 3 {
				t.Fatalf("expected 3 keys, got %d", len(keys))
			}
			return 2, nil
		},
	}
	s := newTestStore(t, fs)

	deleted, err := s.Delete(context.Background(), []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2, got %d", deleted)
	}
}

func TestSupportsTextSearch(t *testing.T) {
	s := newTestStore(t, &fakeStore{supportsText: true})
	if !s.SupportsTextSearch(context.Background()) {
		t.Error("expected true")
	}
}
