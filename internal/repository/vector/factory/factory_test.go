package factory

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/repository/vector"
)

func TestNew_UnknownBackend(t *testing.T) {
	adapter, cleanup := New(context.Background(), Config{Backend: "qdrant"}, zap.NewNop())
	defer cleanup()

	if _, ok := adapter.(*vector.Unavailable); !ok {
		t.Fatalf("expected Unavailable adapter, got %T", adapter)
	}

	_, err := adapter.Search(context.Background(), []float32{0.1}, 5, nil)
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if se.Backend != "qdrant" {
		t.Errorf("unexpected backend: %s", se.Backend)
	}
}

func TestNew_RedisWithoutAddrs(t *testing.T) {
	adapter, cleanup := New(context.Background(), Config{
		Backend:    BackendRedis,
		Collection: "docs",
		Dim:        4,
	}, zap.NewNop())
	defer cleanup()

	if _, ok := adapter.(*vector.Unavailable); !ok {
		t.Fatalf("expected Unavailable adapter, got %T", adapter)
	}
}

func TestNew_PgvectorWithoutDSN(t *testing.T) {
	adapter, cleanup := New(context.Background(), Config{
		Backend: BackendPgvector,
		Dim:     4,
	}, zap.NewNop())
	defer cleanup()

	if _, ok := adapter.(*vector.Unavailable); !ok {
		t.Fatalf("expected Unavailable adapter, got %T", adapter)
	}
	if err := adapter.Ping(context.Background()); err == nil {
		t.Error("expected ping error from unavailable adapter")
	}
}
