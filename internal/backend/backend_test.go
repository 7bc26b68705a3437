package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Courier/internal/retry"
)

// --- Outcome Tests ---

func TestSucceeded(t *testing.T) {
	o, err := Succeeded("id-1", "add", 1, 5)
	if err != nil {
		t.Fatalf("Succeeded failed: %v", err)
	}
	if o.Status != StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", o.Status)
	}
	if string(o.Result) != "5" {
		t.Errorf("expected result 5, got %s", o.Result)
	}
	if o.FinishedAt.IsZero() {
		t.Error("FinishedAt should be set")
	}
}

func TestSucceeded_Unmarshalable(t *testing.T) {
	if _, err := Succeeded("id-1", "bad", 1, make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestFailed(t *testing.T) {
	o := Failed("id-1", "flaky", 3, retry.KindApplication, errors.New("boom"))

	if o.Status != StatusFailure || o.Kind != retry.KindApplication {
		t.Errorf("unexpected outcome: %+v", o)
	}
	if o.Error != "boom" || o.Attempts != 3 {
		t.Errorf("unexpected outcome: %+v", o)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusSuccess, true},
		{StatusFailure, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, expected %v", tt.status, got, tt.terminal)
		}
	}
}

// --- Memory Tests ---

func TestMemory_FetchStates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Fetch(ctx, "id-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = m.MarkPending(ctx, "id-1", "add")
	if _, err := m.Fetch(ctx, "id-1"); !errors.Is(err, ErrPending) {
		t.Errorf("expected ErrPending, got %v", err)
	}

	o, _ := Succeeded("id-1", "add", 1, 5)
	_ = m.Store(ctx, o)

	got, err := m.Fetch(ctx, "id-1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Status != StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", got.Status)
	}
}

func TestMemory_PendingDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	o, _ := Succeeded("id-1", "add", 1, 5)
	_ = m.Store(ctx, o)

	// Воркер может успеть раньше отправителя
	_ = m.MarkPending(ctx, "id-1", "add")

	got, err := m.Fetch(ctx, "id-1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Status != StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", got.Status)
	}
	if len(m.Stored()) != 1 {
		t.Errorf("expected 1 store call, got %d", len(m.Stored()))
	}
}

func TestWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m := NewMemory()
	_ = m.MarkPending(ctx, "id-1", "add")

	go func() {
		time.Sleep(30 * time.Millisecond)
		o, _ := Succeeded("id-1", "add", 1, 5)
		_ = m.Store(context.Background(), o)
	}()

	o, err := Wait(ctx, m, "id-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(o.Result) != "5" {
		t.Errorf("expected 5, got %s", o.Result)
	}
}

func TestWait_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Wait(ctx, NewMemory(), "missing", 10*time.Millisecond)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
