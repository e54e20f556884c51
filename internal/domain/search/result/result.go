package result

// Result is a single retrieval hit.
type Result struct {
	id       string
	score    float64
	content  string
	metadata map[string]any
}

// New creates a retrieval result. A nil metadata map is replaced with an
// empty one so accessors never return nil.
func New(id string, score float64, content string, metadata map[string]any) Result {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Result{id: id, score: score, content: content, metadata: metadata}
}

// ID returns the document identifier.
func (r *Result) ID() string { return r.id }

// Score returns the relevance score.
func (r *Result) Score() float64 { return r.score }

// Content returns the document content.
func (r *Result) Content() string { return r.content }

// Metadata returns the document metadata fields.
func (r *Result) Metadata() map[string]any { return r.metadata }

// WithScore returns a copy of the result carrying a new score. The original
// result is left untouched.
func (r *Result) WithScore(score float64) Result {
	return Result{id: r.id, score: score, content: r.content, metadata: r.metadata}
}
