package result

import "testing"

func TestNew_NilMetadata(t *testing.T) {
	r := New("doc-1", 0.5, "text", nil)
	if r.Metadata() == nil {
		t.Fatal("metadata must never be nil")
	}
	if len(r.Metadata()) != 0 {
		t.Errorf("expected empty metadata, got %v", r.Metadata())
	}
}

func TestWithScore_CopiesResult(t *testing.T) {
	r := New("doc-1", 0.2, "text", map[string]any{"source": "wiki"})
	r2 := r.WithScore(0.9)

	if r.Score() != 0.2 {
		t.Errorf("original score mutated: %v", r.Score())
	}
	if r2.Score() != 0.9 {
		t.Errorf("expected new score 0.9, got %v", r2.Score())
	}
	if r2.ID() != "doc-1" || r2.Content() != "text" {
		t.Error("identity fields must carry over")
	}
	if r2.Metadata()["source"] != "wiki" {
		t.Error("metadata must carry over")
	}
}
