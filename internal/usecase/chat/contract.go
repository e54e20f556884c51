// Package chat orchestrates one conversational turn: retrieve, rerank,
// generate, and stream the answer as events.
package chat

import (
	"context"

	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
	"github.com/kailas-cloud/ragstream/internal/usecase/retrieval"
)

// Retriever finds documents relevant to the user's question.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...retrieval.Option) ([]result.Result, error)
}

// Reranker re-orders retrieved documents. Implementations degrade
// internally and never return an error.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []result.Result, topN int) []result.Result
}

// Generator streams answer tokens for a prompt. emit is called once per
// token in order; an emit error aborts the stream.
type Generator interface {
	Stream(ctx context.Context, prompt string, emit func(token string) error) error
}

// EventType discriminates turn events.
type EventType string

const (
	EventMetadata EventType = "metadata"
	EventChunk    EventType = "chunk"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Pipeline error codes surfaced to the transport.
const (
	CodeSearchFailed     = "CHAT-101-SEARCH_FAILED"
	CodeGenerationFailed = "CHAT-102-GENERATION_FAILED"
)

// Event is one item in a turn's stream. Type selects which fields are set.
type Event struct {
	Type EventType

	Metadata map[string]any // EventMetadata
	Chunk    string         // EventChunk

	Sources []map[string]any // EventDone

	Code      string   // EventError
	Message   string   // EventError
	Solutions []string // EventError
}

func metadataEvent(meta map[string]any) Event {
	return Event{Type: EventMetadata, Metadata: meta}
}

func chunkEvent(token string) Event {
	return Event{Type: EventChunk, Chunk: token}
}

func doneEvent(sources []map[string]any) Event {
	return Event{Type: EventDone, Sources: sources}
}

func errorEvent(code, message string, solutions ...string) Event {
	if len(solutions) == 0 {
		solutions = []string{"Retry the request; contact support if the problem persists"}
	}
	return Event{Type: EventError, Code: code, Message: message, Solutions: solutions}
}
