package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Courier/internal/backend"
)

// newTestBackend подключается к Redis из COURIER_TEST_REDIS_URL.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()

	url := os.Getenv("COURIER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("COURIER_TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewClient(ctx, url)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return New(client, WithTTL(time.Minute))
}

func TestKey(t *testing.T) {
	if got := key("abc"); got != "courier-task-meta-abc" {
		t.Errorf("expected courier-task-meta-abc, got %s", got)
	}
}

func TestBackend_Lifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	id := uuid.NewString()

	if _, err := b.Fetch(ctx, id); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = b.MarkPending(ctx, id, "add")
	if _, err := b.Fetch(ctx, id); !errors.Is(err, backend.ErrPending) {
		t.Errorf("expected ErrPending, got %v", err)
	}

	o, _ := backend.Succeeded(id, "add", 1, 5)
	if err := b.Store(ctx, o); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// SETNX не перезаписывает итог
	_ = b.MarkPending(ctx, id, "add")

	got, err := b.Fetch(ctx, id)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Status != backend.StatusSuccess || string(got.Result) != "5" {
		t.Errorf("unexpected outcome: %+v", got)
	}
}
