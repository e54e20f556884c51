package retrieval

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

// rrfK is the Reciprocal Rank Fusion damping constant (standard value from
// Cormack et al. 2009). Fixed on purpose: tuning it buys nothing at this
// corpus scale.
const rrfK = 60

// Merger fuses dense and sparse rankings via alpha-weighted Reciprocal Rank
// Fusion. alpha is the dense weight; the sparse leg gets 1-alpha.
type Merger struct {
	alpha float64
}

// NewMerger creates a merger. alpha must lie in [0,1] inclusive; anything
// else fails with ErrInvalidAlpha. Out-of-range values are never clamped.
func NewMerger(alpha float64) (*Merger, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha %v out of range [0,1]: %w", alpha, domain.ErrInvalidAlpha)
	}
	return &Merger{alpha: alpha}, nil
}

// Alpha returns the dense weight.
func (m *Merger) Alpha() float64 { return m.alpha }

// Merge fuses the two rankings and returns at most topK results.
// score(d) = alpha/(k + denseRank(d)) + (1-alpha)/(k + sparseRank(d)),
// ranks 1-based, terms present only where the document appears. Equal fused
// scores are ordered by dense rank, then sparse rank, so output is
// deterministic. When a document appears in both lists the dense entry's
// content and metadata win.
func (m *Merger) Merge(dense, sparse []result.Result, topK int) []result.Result {
	if topK <= 0 {
		return nil
	}

	type scored struct {
		res        result.Result
		score      float64
		denseRank  int
		sparseRank int
	}

	const unranked = int(^uint(0) >> 1)

	merged := make(map[string]*scored, len(dense)+len(sparse))

	for rank, r := range dense {
		merged[r.ID()] = &scored{
			res:        r,
			score:      m.alpha / float64(rrfK+rank+1),
			denseRank:  rank,
			sparseRank: unranked,
		}
	}

	for rank, r := range sparse {
		s := (1 - m.alpha) / float64(rrfK+rank+1)
		if existing, ok := merged[r.ID()]; ok {
			existing.score += s
			existing.sparseRank = rank
			// dense entry kept: same document, richer row
		} else {
			merged[r.ID()] = &scored{
				res:        r,
				score:      s,
				denseRank:  unranked,
				sparseRank: rank,
			}
		}
	}

	entries := make([]*scored, 0, len(merged))
	for _, s := range merged {
		entries = append(entries, s)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if entries[i].denseRank != entries[j].denseRank {
			return entries[i].denseRank < entries[j].denseRank
		}
		return entries[i].sparseRank < entries[j].sparseRank
	})

	if len(entries) > topK {
		entries = entries[:topK]
	}

	results := make([]result.Result, len(entries))
	for i, s := range entries {
		results[i] = s.res.WithScore(s.score)
	}
	return results
}
