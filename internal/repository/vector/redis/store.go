// Package redis implements the vector adapter on Redis 8+ FT indexes.
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/ragstream/internal/db"
	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
	"github.com/kailas-cloud/ragstream/internal/repository/vector"
)

// store is the consumer interface for Redis document operations (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) (int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Store implements vector.Adapter over hash documents under a collection
// prefix with a single FT index.
type Store struct {
	store      store
	collection string
	dim        int
}

// Compile-time check.
var _ vector.Adapter = (*Store)(nil)

// New creates a Redis vector store and ensures its FT index exists.
func New(ctx context.Context, s store, collection string, dim int) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dim must be positive")
	}

	st := &Store{store: s, collection: collection, dim: dim}
	if err := st.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) ensureIndex(ctx context.Context) error {
	def := &db.IndexDefinition{
		Name:     s.indexName(),
		Prefixes: []string{s.docPrefix()},
		Fields: []db.IndexField{
			{Name: "id", Type: db.IndexFieldTag},
			{Name: "content", Type: db.IndexFieldText},
			{
				Name: "vector", Type: db.IndexFieldVector,
				VectorAlgo: db.VectorHNSW, VectorDim: s.dim,
				VectorDistance: db.DistanceCosine,
			},
		},
	}

	err := s.store.CreateIndex(ctx, def)
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("ensure index %s: %w", def.Name, err)
	}
	return nil
}

func (s *Store) indexName() string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, s.collection)
}

func (s *Store) docPrefix() string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, s.collection)
}

// AddDocuments upserts documents as hashes. Documents without an embedding
// are skipped and not counted.
func (s *Store) AddDocuments(ctx context.Context, docs []vector.Document) (int, error) {
	items := make([]db.HashSetItem, 0, len(docs))

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}

		fields := map[string]string{
			"id":      doc.ID,
			"content": doc.Content,
			"vector":  vectorToBytes(doc.Embedding),
		}
		for k, v := range doc.Metadata {
			if vector.ReservedField(k) || k == "id" || k == "vector" {
				continue
			}
			fields[k] = metadataToString(v)
		}

		items = append(items, db.HashSetItem{Key: s.docPrefix() + doc.ID, Fields: fields})
	}

	if len(items) == 0 {
		return 0, nil
	}

	if err := s.store.HSetMulti(ctx, items); err != nil {
		return 0, domain.NewStoreError("redis", "add_documents", err,
			"check that Redis is running and reachable")
	}
	return len(items), nil
}

// Search runs a KNN similarity search.
func (s *Store) Search(
	ctx context.Context, vec []float32, topK int, filters map[string]any,
) ([]result.Result, error) {
	q := &db.KNNQuery{
		IndexName: s.indexName(),
		Vector:    vec,
		K:         topK,
		Filters:   translateFilters(filters),
	}

	sr, err := s.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, domain.NewStoreError("redis", "search", err,
			"check that Redis is running and the index exists")
	}

	return s.parseResults(sr), nil
}

// SearchText runs a BM25 keyword search.
func (s *Store) SearchText(
	ctx context.Context, query string, topK int, filters map[string]any,
) ([]result.Result, error) {
	q := &db.TextQuery{
		IndexName: s.indexName(),
		Query:     query,
		TopK:      topK,
		Filters:   translateFilters(filters),
	}

	sr, err := s.store.SearchBM25(ctx, q)
	if err != nil {
		return nil, domain.NewStoreError("redis", "search_text", err,
			"check that Redis is running and the index exists")
	}

	return s.parseResults(sr), nil
}

// Delete removes documents by ID. An empty id list is a no-op.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docPrefix() + id
	}

	deleted, err := s.store.DelMulti(ctx, keys)
	if err != nil {
		return deleted, domain.NewStoreError("redis", "delete", err,
			"check that Redis is running and reachable")
	}
	return deleted, nil
}

// SupportsTextSearch proxies the capability check from the store.
func (s *Store) SupportsTextSearch(ctx context.Context) bool {
	return s.store.SupportsTextSearch(ctx)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// translateFilters maps the adapter filter contract onto db query filters.
// The reserved "ids" key becomes a TAG alternation on the id field.
func translateFilters(filters map[string]any) map[string]any {
	if len(filters) == 0 {
		return nil
	}

	out := make(map[string]any, len(filters))
	for k, v := range filters {
		if k == vector.FilterIDs {
			if ids, ok := v.([]string); ok && len(ids) > 0 {
				out["id"] = ids
			}
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Store) parseResults(sr *db.SearchResult) []result.Result {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	results := make([]result.Result, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		docID := strings.TrimPrefix(entry.Key, s.docPrefix())

		var content string
		metadata := make(map[string]any)
		for k, v := range entry.Fields {
			switch k {
			case "id", "vector":
				// identity and embedding are not metadata
			case "content":
				content = v
			default:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					metadata[k] = f
				} else {
					metadata[k] = v
				}
			}
		}

		results = append(results, result.New(docID, entry.Score, content, metadata))
	}
	return results
}

func metadataToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
