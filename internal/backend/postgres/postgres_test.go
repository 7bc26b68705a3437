package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Courier/internal/backend"
	"github.com/shaiso/Courier/internal/retry"
)

// newTestBackend подключается к БД из COURIER_TEST_DB_URL.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()

	dsn := os.Getenv("COURIER_TEST_DB_URL")
	if dsn == "" {
		t.Skip("COURIER_TEST_DB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(pool.Close)

	b := New(pool, nil)
	if err := b.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return b
}

// --- Helper Tests ---

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Error("expected nil for empty string")
	}
	if s := nullString("x"); s == nil || *s != "x" {
		t.Error("expected pointer to x")
	}
}

func TestNullJSON(t *testing.T) {
	if nullJSON(nil) != nil {
		t.Error("expected nil for empty result")
	}
	if v := nullJSON([]byte(`{"a":1}`)); v != `{"a":1}` {
		t.Errorf("expected json text, got %v", v)
	}
}

// --- Integration Tests ---

func TestBackend_Lifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	id := uuid.NewString()

	if _, err := b.Fetch(ctx, id); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := b.MarkPending(ctx, id, "add"); err != nil {
		t.Fatalf("MarkPending failed: %v", err)
	}
	if _, err := b.Fetch(ctx, id); !errors.Is(err, backend.ErrPending) {
		t.Errorf("expected ErrPending, got %v", err)
	}

	o, _ := backend.Succeeded(id, "add", 1, 5)
	if err := b.Store(ctx, o); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := b.Fetch(ctx, id)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Status != backend.StatusSuccess || string(got.Result) != "5" {
		t.Errorf("unexpected outcome: %+v", got)
	}

	// PENDING не перезаписывает терминальный итог
	_ = b.MarkPending(ctx, id, "add")
	if _, err := b.Fetch(ctx, id); err != nil {
		t.Errorf("expected stored outcome, got %v", err)
	}
}

func TestBackend_StoreFailure(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	id := uuid.NewString()

	if err := b.Store(ctx, backend.Failed(id, "flaky", 3, retry.KindTimeout, errors.New("deadline"))); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := b.Fetch(ctx, id)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Kind != retry.KindTimeout || got.Error != "deadline" || got.Attempts != 3 {
		t.Errorf("unexpected outcome: %+v", got)
	}
	if got.Result != nil {
		t.Errorf("expected nil result, got %s", got.Result)
	}
}
