// Package pgvector implements the vector adapter on PostgreSQL with the
// pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
	"github.com/kailas-cloud/ragstream/internal/repository/vector"
)

// Store implements vector.Adapter over a single documents table.
type Store struct {
	db    *sql.DB
	table string
	dim   int
}

// Compile-time check.
var _ vector.Adapter = (*Store)(nil)

// Open connects to PostgreSQL via lib/pq and bootstraps the schema.
func Open(ctx context.Context, dsn, table string, dim int) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if table == "" {
		table = "documents"
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dim must be positive")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	s := &Store{db: db, table: table, dim: dim}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection without schema bootstrap (test-only).
func NewWithDB(db *sql.DB, table string, dim int) *Store {
	return &Store{db: db, table: table, dim: dim}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb
		)`, pq.QuoteIdentifier(s.table), s.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s
			USING hnsw (embedding vector_cosine_ops)`,
			pq.QuoteIdentifier(s.table+"_embedding_idx"), pq.QuoteIdentifier(s.table)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s
			USING gin (to_tsvector('simple', content))`,
			pq.QuoteIdentifier(s.table+"_content_idx"), pq.QuoteIdentifier(s.table)),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return domain.NewStoreError("pgvector", "ensure_schema", err,
				"check that PostgreSQL is running and the pgvector extension is installed")
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.NewStoreError("pgvector", "ping", err,
			"check that PostgreSQL is running and the DSN is correct")
	}
	return nil
}

// AddDocuments upserts documents. Documents without an embedding are skipped
// and not counted.
func (s *Store) AddDocuments(ctx context.Context, docs []vector.Document) (int, error) {
	stored := 0

	query := fmt.Sprintf(`INSERT INTO %s (id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata`, pq.QuoteIdentifier(s.table))

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}

		meta, err := json.Marshal(sanitizeMetadata(doc.Metadata))
		if err != nil {
			return stored, domain.NewStoreError("pgvector", "add_documents", err)
		}

		_, err = s.db.ExecContext(ctx, query,
			doc.ID, doc.Content, pgv.NewVector(doc.Embedding), meta)
		if err != nil {
			return stored, domain.NewStoreError("pgvector", "add_documents", err,
				"check that PostgreSQL is running and the table schema matches")
		}
		stored++
	}

	return stored, nil
}

// Search runs cosine similarity search via the <=> operator.
func (s *Store) Search(
	ctx context.Context, vec []float32, topK int, filters map[string]any,
) ([]result.Result, error) {
	where, args := buildWhere(filters, 2)

	query := fmt.Sprintf(`SELECT id, content, metadata,
			GREATEST(0, 1 - (embedding <=> $1)) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT %d`, pq.QuoteIdentifier(s.table), where, topK)

	queryArgs := append([]any{pgv.NewVector(vec)}, args...)
	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, domain.NewStoreError("pgvector", "search", err,
			"check that PostgreSQL is running and the pgvector extension is installed")
	}
	defer rows.Close()

	return scanResults(rows)
}

// SearchText runs PostgreSQL full-text search ranked by ts_rank.
func (s *Store) SearchText(
	ctx context.Context, queryText string, topK int, filters map[string]any,
) ([]result.Result, error) {
	where, args := buildWhere(filters, 2)
	if where == "" {
		where = `WHERE to_tsvector('simple', content) @@ plainto_tsquery('simple', $1)`
	} else {
		where += ` AND to_tsvector('simple', content) @@ plainto_tsquery('simple', $1)`
	}

	query := fmt.Sprintf(`SELECT id, content, metadata,
			ts_rank(to_tsvector('simple', content), plainto_tsquery('simple', $1)) AS score
		FROM %s
		%s
		ORDER BY score DESC
		LIMIT %d`, pq.QuoteIdentifier(s.table), where, topK)

	queryArgs := append([]any{queryText}, args...)
	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, domain.NewStoreError("pgvector", "search_text", err,
			"check that PostgreSQL is running and reachable")
	}
	defer rows.Close()

	return scanResults(rows)
}

// Delete removes documents by ID and returns how many rows existed.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, pq.QuoteIdentifier(s.table))
	res, err := s.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, domain.NewStoreError("pgvector", "delete", err,
			"check that PostgreSQL is running and reachable")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewStoreError("pgvector", "delete", err)
	}
	return int(affected), nil
}

// SupportsTextSearch reports true: PostgreSQL full-text search is always
// available.
func (s *Store) SupportsTextSearch(_ context.Context) bool {
	return true
}

// buildWhere renders metadata filters into a WHERE clause. Placeholders start
// at startIdx because $1 is reserved for the query vector or text. The
// reserved "ids" key becomes an id = ANY(...) condition. Keys are sorted so
// generated SQL is deterministic.
func buildWhere(filters map[string]any, startIdx int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conds []string
	var args []any
	idx := startIdx

	for _, k := range keys {
		v := filters[k]
		if k == vector.FilterIDs {
			if ids, ok := v.([]string); ok && len(ids) > 0 {
				conds = append(conds, fmt.Sprintf("id = ANY($%d)", idx))
				args = append(args, pq.Array(ids))
				idx++
			}
			continue
		}

		conds = append(conds, fmt.Sprintf("metadata->>%s = $%d", pq.QuoteLiteral(k), idx))
		args = append(args, filterToString(v))
		idx++
	}

	if len(conds) == 0 {
		return "", nil
	}

	where := "WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func filterToString(v any) string {
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

func sanitizeMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if vector.ReservedField(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func scanResults(rows *sql.Rows) ([]result.Result, error) {
	var results []result.Result

	for rows.Next() {
		var id, content string
		var metaJSON []byte
		var score float64

		if err := rows.Scan(&id, &content, &metaJSON, &score); err != nil {
			return nil, domain.NewStoreError("pgvector", "scan", err)
		}

		metadata := map[string]any{}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &metadata); err != nil {
				return nil, domain.NewStoreError("pgvector", "scan", err)
			}
		}

		results = append(results, result.New(id, score, content, metadata))
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("pgvector", "scan", err)
	}
	return results, nil
}
