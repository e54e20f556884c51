package retrieval

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Pipeline prepares a query for the keyword leg of hybrid search.
// Step order: protect compound terms, expand synonyms, strip stopwords,
// restore compound terms. Any step failing makes the whole pipeline fall
// back to the original query with a warning; keyword search still runs.
type Pipeline struct {
	protector CompoundProtector
	expander  SynonymExpander
	stopwords StopwordFilter
	logger    *zap.Logger
}

// NewPipeline creates a preprocessing pipeline. Nil collaborators disable
// the corresponding step.
func NewPipeline(
	protector CompoundProtector,
	expander SynonymExpander,
	stopwords StopwordFilter,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		protector: protector,
		expander:  expander,
		stopwords: stopwords,
		logger:    logger,
	}
}

// Process returns the preprocessed query, or the original query unchanged
// when any step fails.
func (p *Pipeline) Process(query string) string {
	processed, err := p.run(query)
	if err != nil {
		p.logger.Warn("query preprocessing failed, using original query",
			zap.String("query", query), zap.Error(err))
		return query
	}
	return processed
}

func (p *Pipeline) run(query string) (string, error) {
	q := query

	if p.protector != nil {
		protected, err := p.protector.Protect(q)
		if err != nil {
			return "", fmt.Errorf("protect compounds: %w", err)
		}
		q = protected
	}

	if p.expander != nil {
		expanded, err := p.expander.Expand(q)
		if err != nil {
			return "", fmt.Errorf("expand synonyms: %w", err)
		}
		q = expanded
	}

	if p.stopwords != nil {
		stripped, err := p.stopwords.Strip(q)
		if err != nil {
			return "", fmt.Errorf("strip stopwords: %w", err)
		}
		q = stripped
	}

	if p.protector != nil {
		restored, err := p.protector.Restore(q)
		if err != nil {
			return "", fmt.Errorf("restore compounds: %w", err)
		}
		q = restored
	}

	return q, nil
}

// --- in-memory collaborator implementations ---

// CompoundDict protects known multi-word terms by replacing them with
// single-token placeholders during preprocessing.
type CompoundDict struct {
	terms        []string
	placeholders map[string]string // placeholder -> original term
}

// NewCompoundDict builds a dictionary from the configured terms. Longer terms
// are matched first so overlapping phrases protect greedily.
func NewCompoundDict(terms []string) *CompoundDict {
	sorted := make([]string, 0, len(terms))
	for _, t := range terms {
		if strings.TrimSpace(t) != "" {
			sorted = append(sorted, t)
		}
	}
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if len(sorted[j]) > len(sorted[i]) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	placeholders := make(map[string]string, len(sorted))
	for i, term := range sorted {
		placeholders[compoundPlaceholder(i)] = term
	}
	return &CompoundDict{terms: sorted, placeholders: placeholders}
}

func compoundPlaceholder(i int) string {
	return fmt.Sprintf("__compound_%d__", i)
}

// Protect replaces each known compound term with its placeholder.
func (d *CompoundDict) Protect(query string) (string, error) {
	q := query
	lower := strings.ToLower(q)
	for i, term := range d.terms {
		idx := strings.Index(lower, strings.ToLower(term))
		for idx >= 0 {
			q = q[:idx] + compoundPlaceholder(i) + q[idx+len(term):]
			lower = strings.ToLower(q)
			idx = strings.Index(lower, strings.ToLower(term))
		}
	}
	return q, nil
}

// Restore swaps placeholders back for the original terms.
func (d *CompoundDict) Restore(query string) (string, error) {
	q := query
	for placeholder, term := range d.placeholders {
		q = strings.ReplaceAll(q, placeholder, term)
	}
	return q, nil
}

// SynonymMap appends configured synonyms after each matched word.
type SynonymMap struct {
	synonyms map[string][]string
}

// NewSynonymMap builds an expander from word -> synonyms.
func NewSynonymMap(synonyms map[string][]string) *SynonymMap {
	normalized := make(map[string][]string, len(synonyms))
	for k, v := range synonyms {
		normalized[strings.ToLower(k)] = v
	}
	return &SynonymMap{synonyms: normalized}
}

// Expand appends synonyms for every word that has them.
func (m *SynonymMap) Expand(query string) (string, error) {
	words := strings.Fields(query)
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, w)
		if syns, ok := m.synonyms[strings.ToLower(w)]; ok {
			out = append(out, syns...)
		}
	}
	return strings.Join(out, " "), nil
}

// StopwordSet strips configured low-signal words.
type StopwordSet struct {
	words map[string]struct{}
}

// NewStopwordSet builds a filter from the configured word list.
func NewStopwordSet(words []string) *StopwordSet {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &StopwordSet{words: set}
}

// Strip removes stopwords. If every word is a stopword the query is returned
// unchanged: an empty keyword query is worse than a noisy one.
func (s *StopwordSet) Strip(query string) (string, error) {
	words := strings.Fields(query)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := s.words[strings.ToLower(w)]; !ok {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return query, nil
	}
	return strings.Join(kept, " "), nil
}
