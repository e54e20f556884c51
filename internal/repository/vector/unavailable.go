package vector

import (
	"context"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/search/result"
)

// Unavailable is a typed stand-in for a backend that is not configured or
// failed to initialize. Every operation returns a StoreError wrapping
// domain.ErrStoreUnavailable together with the original cause and
// remediation hints, so callers surface a clear diagnostic instead of a
// nil-pointer panic.
type Unavailable struct {
	backend string
	cause   error
	hints   []string
}

// Compile-time check.
var _ Adapter = (*Unavailable)(nil)

// NewUnavailable creates the stand-in adapter for the named backend.
func NewUnavailable(backend string, cause error, hints ...string) *Unavailable {
	return &Unavailable{backend: backend, cause: cause, hints: hints}
}

func (u *Unavailable) err(op string) error {
	cause := u.cause
	if cause == nil {
		cause = domain.ErrStoreUnavailable
	}
	return domain.NewStoreError(u.backend, op, cause, u.hints...)
}

func (u *Unavailable) AddDocuments(_ context.Context, _ []Document) (int, error) {
	return 0, u.err("add_documents")
}

func (u *Unavailable) Search(_ context.Context, _ []float32, _ int, _ map[string]any) ([]result.Result, error) {
	return nil, u.err("search")
}

func (u *Unavailable) SearchText(_ context.Context, _ string, _ int, _ map[string]any) ([]result.Result, error) {
	return nil, u.err("search_text")
}

func (u *Unavailable) Delete(_ context.Context, _ []string) (int, error) {
	return 0, u.err("delete")
}

func (u *Unavailable) SupportsTextSearch(_ context.Context) bool { return false }

func (u *Unavailable) Ping(_ context.Context) error { return u.err("ping") }
