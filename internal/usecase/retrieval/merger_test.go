package retrieval

import (
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

func res(id string, score float64) result.Result {
	return result.New(id, score, "content of "+id, nil)
}

func TestNewMerger_AlphaValidation(t *testing.T) {
	tests := []struct {
		alpha float64
		valid bool
	}{
		{0.0, true},
		{1.0, true},
		{0.5, true},
		{-0.01, false},
		{1.01, false},
		{-1, false},
		{2, false},
	}
	for _, tc := range tests {
		_, err := NewMerger(tc.alpha)
		if tc.valid && err != nil {
			t.Errorf("alpha=%v: unexpected error %v", tc.alpha, err)
		}
		if !tc.valid {
			if !errors.Is(err, domain.ErrInvalidAlpha) {
				t.Errorf("alpha=%v: expected ErrInvalidAlpha, got %v", tc.alpha, err)
			}
		}
	}
}

func TestMerge_BothListsSumContributions(t *testing.T) {
	m, _ := NewMerger(0.5)

	merged := m.Merge(
		[]result.Result{res("a", 0.9)},
		[]result.Result{res("a", 12.5)},
		10,
	)
	if len(merged) != 1 {
		t.Fatalf("expected 1 result, got %d", len(merged))
	}

	// rank 1 in both lists: 0.5/61 + 0.5/61
	want := 0.5/61.0 + 0.5/61.0
	if math.Abs(merged[0].Score()-want) > 1e-12 {
		t.Errorf("expected fused score %v, got %v", want, merged[0].Score())
	}
}

func TestMerge_DocInBothBeatsEqualRankSingles(t *testing.T) {
	m, _ := NewMerger(0.5)

	merged := m.Merge(
		[]result.Result{res("both", 0.9), res("denseonly", 0.8)},
		[]result.Result{res("both", 10), res("sparseonly", 8)},
		10,
	)
	if merged[0].ID() != "both" {
		t.Errorf("document in both lists must rank first, got %s", merged[0].ID())
	}
}

func TestMerge_AlphaWeighting(t *testing.T) {
	// alpha=1: sparse contributes nothing, dense order wins outright
	m, _ := NewMerger(1.0)

	merged := m.Merge(
		[]result.Result{res("d1", 0.9), res("d2", 0.8)},
		[]result.Result{res("s1", 99), res("d2", 98)},
		10,
	)

	if merged[0].ID() != "d1" || merged[1].ID() != "d2" {
		t.Errorf("unexpected order: %s, %s", merged[0].ID(), merged[1].ID())
	}
	// s1 only has a zero-weighted sparse contribution
	for _, r := range merged {
		if r.ID() == "s1" && r.Score() != 0 {
			t.Errorf("sparse-only doc must score 0 at alpha=1, got %v", r.Score())
		}
	}
}

func TestMerge_DeterministicTieBreak(t *testing.T) {
	// identical rank structure on disjoint docs produces equal scores;
	// dense order must win the tie, repeatably
	m, _ := NewMerger(0.5)

	for i := 0; i < 20; i++ {
		merged := m.Merge(
			[]result.Result{res("d1", 0.9), res("d2", 0.8)},
			[]result.Result{res("s1", 10), res("s2", 9)},
			10,
		)
		if merged[0].ID() != "d1" || merged[1].ID() != "s1" {
			t.Fatalf("run %d: unexpected tie-break order: %s, %s", i, merged[0].ID(), merged[1].ID())
		}
		if merged[2].ID() != "d2" || merged[3].ID() != "s2" {
			t.Fatalf("run %d: unexpected tail order: %s, %s", i, merged[2].ID(), merged[3].ID())
		}
	}
}

func TestMerge_TruncatesToTopK(t *testing.T) {
	m, _ := NewMerger(0.6)

	dense := []result.Result{res("a", 1), res("b", 1), res("c", 1)}
	sparse := []result.Result{res("d", 1), res("e", 1)}

	merged := m.Merge(dense, sparse, 2)
	if len(merged) != 2 {
		t.Errorf("expected 2 results, got %d", len(merged))
	}
}

func TestMerge_EmptyInputs(t *testing.T) {
	m, _ := NewMerger(0.5)

	if got := m.Merge(nil, nil, 5); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}

	onlyDense := m.Merge([]result.Result{res("a", 1)}, nil, 5)
	if len(onlyDense) != 1 || onlyDense[0].ID() != "a" {
		t.Errorf("dense-only input must pass through, got %v", onlyDense)
	}

	onlySparse := m.Merge(nil, []result.Result{res("b", 1)}, 5)
	if len(onlySparse) != 1 || onlySparse[0].ID() != "b" {
		t.Errorf("sparse-only input must pass through, got %v", onlySparse)
	}
}

func TestMerge_DenseEntryWinsOnOverlap(t *testing.T) {
	m, _ := NewMerger(0.5)

	dense := []result.Result{result.New("a", 0.9, "dense content", map[string]any{"leg": "dense"})}
	sparse := []result.Result{result.New("a", 3.0, "sparse content", map[string]any{"leg": "sparse"})}

	merged := m.Merge(dense, sparse, 5)
	if merged[0].Content() != "dense content" {
		t.Errorf("dense entry must win on overlap, got %q", merged[0].Content())
	}
	if merged[0].Metadata()["leg"] != "dense" {
		t.Errorf("dense metadata must win on overlap, got %v", merged[0].Metadata())
	}
}

func TestMerge_MetadataNeverNil(t *testing.T) {
	m, _ := NewMerger(0.5)

	merged := m.Merge([]result.Result{result.New("a", 1, "x", nil)}, nil, 5)
	if merged[0].Metadata() == nil {
		t.Error("metadata must never be nil")
	}
}
