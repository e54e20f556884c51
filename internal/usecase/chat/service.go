package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

const (
	defaultTopN       = 5
	sourceSnippetRune = 200
)

// Service runs the retrieve-rerank-generate pipeline for a session turn.
type Service struct {
	retriever Retriever
	reranker  Reranker // optional
	generator Generator
	topN      int
	logger    *zap.Logger
}

// New creates the chat service. The reranker is optional; retriever and
// generator are required.
func New(retriever Retriever, reranker Reranker, generator Generator, topN int, logger *zap.Logger) (*Service, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if topN <= 0 {
		topN = defaultTopN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		topN:      topN,
		logger:    logger,
	}, nil
}

// StreamTurn runs one turn and streams its events. The channel is always
// closed when the turn ends, whether it finished with EventDone or
// EventError.
func (s *Service) StreamTurn(ctx context.Context, content, sessionID string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		s.runTurn(ctx, content, sessionID, events)
	}()
	return events
}

func (s *Service) runTurn(ctx context.Context, content, sessionID string, events chan<- Event) {
	log := s.logger.With(zap.String("session_id", sessionID))

	docs, err := s.retriever.Search(ctx, content)
	if err != nil {
		log.Error("retrieval failed", zap.Error(err))
		events <- errorEvent(CodeSearchFailed, "document search failed",
			"Check that the vector store is reachable",
			"Verify that documents were indexed for this collection")
		return
	}

	if s.reranker != nil {
		docs = s.reranker.Rerank(ctx, content, docs, s.topN)
	} else if len(docs) > s.topN {
		docs = docs[:s.topN]
	}

	events <- metadataEvent(map[string]any{
		"session_id":      sessionID,
		"documents_found": len(docs),
	})

	err = s.generator.Stream(ctx, buildPrompt(content, docs), func(token string) error {
		select {
		case events <- chunkEvent(token):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		log.Error("generation failed", zap.Error(err))
		events <- errorEvent(CodeGenerationFailed, "answer generation failed",
			"Check the LLM provider credentials and quota")
		return
	}

	events <- doneEvent(buildSources(docs))
}

// buildPrompt numbers the retrieved documents ahead of the question so the
// model can cite them.
func buildPrompt(question string, docs []result.Result) string {
	var sb strings.Builder
	if len(docs) > 0 {
		sb.WriteString("Answer using the context below. If the context does not contain the answer, say so.\n\nContext:\n")
		for i, d := range docs {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, d.Content())
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Question: %s", question)
	return sb.String()
}

func buildSources(docs []result.Result) []map[string]any {
	sources := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, map[string]any{
			"id":       d.ID(),
			"content":  snippet(d.Content()),
			"score":    d.Score(),
			"metadata": d.Metadata(),
		})
	}
	return sources
}

// snippet truncates at a rune boundary so multi-byte text stays valid.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= sourceSnippetRune {
		return content
	}
	return string(runes[:sourceSnippetRune]) + "..."
}
