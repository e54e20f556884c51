package db

// KNNQuery is the input for vector similarity search.
//
// Filters are a flat equality map AND-combined into the FT.SEARCH pre-filter:
// string and bool values become TAG matches, numeric values become exact
// NUMERIC ranges, and []string values become TAG alternations.
type KNNQuery struct {
	IndexName    string
	Filters      map[string]any
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search.
type TextQuery struct {
	IndexName    string
	Query        string
	Filters      map[string]any
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
