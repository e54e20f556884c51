// Package vector defines the storage adapter contract for document vectors.
//
// Two backends implement it: Redis (FT.SEARCH over hashes) and PostgreSQL
// with the pgvector extension. An unconfigured backend is represented by the
// Unavailable adapter so callers get a typed error instead of a nil panic.
package vector

import (
	"context"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

// FilterIDs is the reserved filter key restricting a search to specific
// document IDs. Its value must be a []string.
const FilterIDs = "ids"

// Reserved document field names. Metadata keys colliding with them are
// dropped on write so reads stay unambiguous.
const (
	FieldID      = "_id"
	FieldScore   = "_score"
	FieldContent = "content"
)

// Document is a unit of ingestion.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]any
}

// Adapter is the storage contract consumed by the retrieval layer.
type Adapter interface {
	// AddDocuments upserts documents and returns how many were stored.
	// Documents without an embedding are skipped and excluded from the count.
	AddDocuments(ctx context.Context, docs []Document) (int, error)

	// Search runs vector similarity search. Scores are similarities in [0,1],
	// higher is better.
	Search(ctx context.Context, vector []float32, topK int, filters map[string]any) ([]result.Result, error)

	// SearchText runs keyword (BM25 or full-text) search.
	SearchText(ctx context.Context, query string, topK int, filters map[string]any) ([]result.Result, error)

	// Delete removes documents by ID and returns how many existed.
	// An empty id list is a no-op returning 0.
	Delete(ctx context.Context, ids []string) (int, error)

	// SupportsTextSearch reports whether SearchText is available on this backend.
	SupportsTextSearch(ctx context.Context) bool

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}

// ReservedField reports whether name collides with a reserved document field.
func ReservedField(name string) bool {
	return name == FieldID || name == FieldScore || name == FieldContent
}
