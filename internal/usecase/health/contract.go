package health

import "context"

// StorePinger checks vector store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// RetrieverChecker probes end-to-end search readiness.
type RetrieverChecker interface {
	HealthCheck(ctx context.Context) bool
}
