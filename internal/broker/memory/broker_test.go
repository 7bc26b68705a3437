package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/protocol"
)

func msg(id string) *protocol.Message {
	return &protocol.Message{
		ContentType: protocol.ContentTypeJSON,
		Headers:     map[string]any{protocol.HeaderID: id},
		Body:        []byte(`{}`),
	}
}

func receive(t *testing.T, ch <-chan broker.Delivery) broker.Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delivery")
	}
	return nil
}

// --- Publish/Consume Tests ---

func TestBroker_FIFO(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b", "c"} {
		if err := b.Publish(ctx, "q", msg(id)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	ch, err := b.Consume(ctx, "q", 0)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	for _, want := range []string{"a", "b", "c"} {
		d := receive(t, ch)
		if got := d.Message().Headers[protocol.HeaderID]; got != want {
			t.Errorf("expected %s, got %v", want, got)
		}
		if d.Queue() != "q" {
			t.Errorf("expected queue q, got %s", d.Queue())
		}
		if err := d.Ack(ctx); err != nil {
			t.Errorf("Ack failed: %v", err)
		}
	}

	stats := b.Stats("q")
	if stats.Published != 3 || stats.Acked != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestBroker_NackRequeue(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = b.Publish(ctx, "q", msg("a"))
	ch, _ := b.Consume(ctx, "q", 0)

	d := receive(t, ch)
	if d.Redelivered() {
		t.Error("first delivery should not be redelivered")
	}
	if err := d.Nack(ctx, true); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	d = receive(t, ch)
	if !d.Redelivered() {
		t.Error("requeued delivery should be redelivered")
	}
	_ = d.Nack(ctx, false)

	stats := b.Stats("q")
	if stats.Requeued != 1 || stats.Dead != 1 || stats.Acked != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestBroker_DoubleSettle(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = b.Publish(ctx, "q", msg("a"))
	ch, _ := b.Consume(ctx, "q", 0)
	d := receive(t, ch)

	_ = d.Ack(ctx)
	if err := d.Ack(ctx); !errors.Is(err, broker.ErrAlreadySettled) {
		t.Errorf("expected ErrAlreadySettled, got %v", err)
	}
	if err := d.Nack(ctx, true); !errors.Is(err, broker.ErrAlreadySettled) {
		t.Errorf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestBroker_Prefetch(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a", "b", "c"} {
		_ = b.Publish(ctx, "q", msg(id))
	}

	ch, _ := b.Consume(ctx, "q", 1)
	first := receive(t, ch)

	// Второе сообщение не доставляется, пока первое не подтверждено
	select {
	case <-ch:
		t.Fatal("prefetch limit exceeded")
	case <-time.After(50 * time.Millisecond):
	}

	// Увеличение prefetch разблокирует следующую доставку
	_ = b.IncreasePrefetch(ctx, "q")
	second := receive(t, ch)
	_ = b.DecreasePrefetch(ctx, "q")

	_ = first.Ack(ctx)
	_ = second.Ack(ctx)
	third := receive(t, ch)
	_ = third.Ack(ctx)

	if b.Unacked("q") != 0 {
		t.Errorf("expected 0 unacked, got %d", b.Unacked("q"))
	}
}

func TestBroker_PublishCopiesMessage(t *testing.T) {
	b := New(nil)
	m := msg("a")
	_ = b.Publish(context.Background(), "q", m)

	m.Body[0] = 'X'
	m.Headers[protocol.HeaderID] = "changed"

	stored := b.Messages("q")[0]
	if string(stored.Body) != "{}" || stored.Headers[protocol.HeaderID] != "a" {
		t.Errorf("stored message mutated: %+v", stored)
	}
}

func TestBroker_PublishHook(t *testing.T) {
	b := New(nil)
	b.SetPublishHook(func(string, *protocol.Message) error { return errors.New("boom") })

	err := b.Publish(context.Background(), "q", msg("a"))
	if !errors.Is(err, broker.ErrPublish) {
		t.Errorf("expected ErrPublish, got %v", err)
	}
	if b.Len("q") != 0 {
		t.Error("failed publish must not enqueue")
	}
}

func TestBroker_PublishHookWhileConsuming(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := b.Consume(ctx, "q", 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = b.Publish(context.Background(), "q", msg(fmt.Sprintf("m%d", i)))
		}
	}()

	var failed atomic.Int32
	b.SetPublishHook(func(string, *protocol.Message) error {
		failed.Add(1)
		return errors.New("boom")
	})
	<-done
	b.SetPublishHook(nil)

	if err := b.Publish(context.Background(), "q", msg("last")); err != nil {
		t.Errorf("expected publish after hook removal to succeed, got %v", err)
	}

	published := b.Stats("q").Published
	if published+int(failed.Load()) != 51 {
		t.Errorf("expected 51 attempts accounted, got published=%d failed=%d", published, failed.Load())
	}

	select {
	case d := <-ch:
		_ = d.Ack(context.Background())
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
}

func TestBroker_ConsumeStopsOnCancel(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := b.Consume(ctx, "q", 0)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not stop")
	}
}

func TestBroker_Closed(t *testing.T) {
	b := New(nil)
	_ = b.Close()

	if err := b.Publish(context.Background(), "q", msg("a")); !errors.Is(err, broker.ErrPublish) {
		t.Errorf("expected ErrPublish, got %v", err)
	}
	if _, err := b.Consume(context.Background(), "q", 0); !errors.Is(err, broker.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
