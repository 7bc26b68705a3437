package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Courier/internal/retry"
)

func rawArgs(vals ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(vals))
	for _, v := range vals {
		out = append(out, json.RawMessage(v))
	}
	return out
}

type greetArgs struct {
	Name  string `json:"name"`
	Times int    `json:"times"`
}

// --- Definition ---

func TestDefinition_PositionalBindAndRun(t *testing.T) {
	add := New("add", func(_ context.Context, args [2]int) (int, error) {
		return args[0] + args[1], nil
	})

	call, err := add.Bind(rawArgs("2", "3"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := call(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 5 {
		t.Errorf("expected 5, got %v", result)
	}
}

func TestDefinition_KeywordBind(t *testing.T) {
	greet := NewKeyword("greet", func(_ context.Context, args greetArgs) (string, error) {
		return fmt.Sprintf("%s x%d", args.Name, args.Times), nil
	})

	call, err := greet.Bind(nil, map[string]json.RawMessage{
		"name":  json.RawMessage(`"ann"`),
		"times": json.RawMessage(`2`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := call(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ann x2" {
		t.Errorf("expected 'ann x2', got %v", result)
	}
}

func TestDefinition_BindInvalidArgs(t *testing.T) {
	called := false
	add := New("add", func(_ context.Context, args [2]int) (int, error) {
		called = true
		return 0, nil
	})

	_, err := add.Bind(rawArgs(`"two"`, "3"), nil)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
	if called {
		t.Error("handler must not run when args do not decode")
	}
}

func TestDefinition_Signature(t *testing.T) {
	add := New("add", func(_ context.Context, args [2]int) (int, error) {
		return args[0] + args[1], nil
	}, WithQueue("math"))

	sig, err := add.Signature([2]int{2, 3}, WithMaxRetries(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Name != "add" {
		t.Errorf("expected name add, got %s", sig.Name)
	}
	if len(sig.Args) != 2 || string(sig.Args[0]) != "2" || string(sig.Args[1]) != "3" {
		t.Errorf("unexpected args: %s", sig.Args)
	}
	if sig.Options.MaxRetries == nil || *sig.Options.MaxRetries != 1 {
		t.Errorf("expected call-site max_retries 1, got %v", sig.Options.MaxRetries)
	}

	// Подпись декодируется обратно той же задачей
	call, err := add.Bind(sig.Args, sig.Kwargs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r, _ := call(context.Background()); r != 5 {
		t.Errorf("expected 5, got %v", r)
	}
}

func TestPositional_EncodeRejectsNonArray(t *testing.T) {
	_, _, err := Positional[greetArgs]{}.Encode(greetArgs{Name: "x"})
	if err == nil {
		t.Error("struct without array encoding should not be positional")
	}
}

func TestNewSignature(t *testing.T) {
	sig, err := NewSignature("add", []any{2, 3}, map[string]any{"label": "sum"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(sig.Args[0]) != "2" || string(sig.Kwargs["label"]) != `"sum"` {
		t.Errorf("unexpected signature: %+v", sig)
	}

	_, err = NewSignature("bad", []any{make(chan int)}, nil)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs for unserializable arg, got %v", err)
	}
}

// --- Registry ---

func TestRegistry_LookupDispatchesToRegisteredTask(t *testing.T) {
	b := NewBuilder(nil)
	var calledA, calledB bool
	a := New("a", func(_ context.Context, _ []int) (string, error) { calledA = true; return "a", nil })
	bb := New("b", func(_ context.Context, _ []int) (string, error) { calledB = true; return "b", nil })
	if err := b.RegisterAll(a, bb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := b.Build()

	got, err := r.Lookup("b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call, err := got.Bind(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res, _ := call(context.Background()); res != "b" {
		t.Errorf("expected b, got %v", res)
	}
	if calledA || !calledB {
		t.Errorf("expected only b to run, a=%v b=%v", calledA, calledB)
	}
}

func TestRegistry_UnknownTask(t *testing.T) {
	r := NewBuilder(nil).Build()

	_, err := r.Lookup("missing")
	if !errors.Is(err, ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask, got %v", err)
	}
	if r.Has("missing") {
		t.Error("Has should be false for unknown task")
	}
}

func TestBuilder_DuplicateTask(t *testing.T) {
	b := NewBuilder(nil)
	noop := func(_ context.Context, _ []int) (int, error) { return 0, nil }

	if err := b.Register(New("dup", noop)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := b.Register(New("dup", noop))
	if !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}

	if err := b.Register(New("", noop)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestBuilder_BuildIsFrozen(t *testing.T) {
	b := NewBuilder(nil)
	noop := func(_ context.Context, _ []int) (int, error) { return 0, nil }
	_ = b.Register(New("first", noop))

	r := b.Build()
	_ = b.Register(New("second", noop))

	if r.Has("second") {
		t.Error("registry must not change after Build")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 task, got %d", r.Len())
	}
}

func TestRegistry_ConcurrentLookup(t *testing.T) {
	b := NewBuilder(nil)
	noop := func(_ context.Context, _ []int) (int, error) { return 0, nil }
	for i := 0; i < 10; i++ {
		_ = b.Register(New(fmt.Sprintf("t%d", i), noop))
	}
	r := b.Build()

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if _, err := r.Lookup(fmt.Sprintf("t%d", i%10)); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	names := r.Names()
	if len(names) != 10 || names[0] != "t0" {
		t.Errorf("unexpected names: %v", names)
	}
}

// --- Options ---

func TestOptions_FieldLevelMerge(t *testing.T) {
	defaults := NewOptions(
		WithQueue("celery"),
		WithTimeout(30*time.Second),
		WithMaxRetries(3),
		WithRetryDelay(time.Second, time.Minute),
	)
	callSite := NewOptions(WithMaxRetries(7))

	merged := defaults.Merge(callSite)

	// Переопределённое поле — от вызова
	if *merged.MaxRetries != 7 {
		t.Errorf("expected call-site max_retries 7, got %d", *merged.MaxRetries)
	}
	// Остальные поля — от задачи
	if merged.Queue != "celery" {
		t.Errorf("expected queue celery, got %s", merged.Queue)
	}
	if merged.TimeoutValue() != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", merged.TimeoutValue())
	}
	if *merged.MaxRetryDelay != time.Minute {
		t.Errorf("expected max delay 1m, got %v", *merged.MaxRetryDelay)
	}

	// Исходные опции не изменились
	if *defaults.MaxRetries != 3 {
		t.Error("merge must not mutate the receiver")
	}
}

func TestOptions_Policy(t *testing.T) {
	p := Options{}.Policy()
	if p.MaxRetries != retry.Unlimited {
		t.Errorf("unset max_retries should be unlimited, got %d", p.MaxRetries)
	}
	if !p.RetryOnTimeout {
		t.Error("timeouts are retried by default")
	}
	if p.Backoff == nil {
		t.Fatal("default backoff should be set")
	}
	if d := p.Backoff.Delay(100); d > DefaultMaxRetryDelay {
		t.Errorf("default backoff exceeds max delay: %v", d)
	}

	p = NewOptions(
		WithMaxRetries(2),
		WithRetryOnTimeout(false),
		WithBackoff(retry.Fixed{Interval: time.Second}),
	).Policy()
	if p.MaxRetries != 2 || p.RetryOnTimeout {
		t.Errorf("unexpected policy: %+v", p)
	}
	if p.Backoff.Delay(5) != time.Second {
		t.Error("explicit backoff should be used")
	}
}

// --- Classify ---

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		kind retry.Kind
	}{
		{"application", base, retry.KindApplication},
		{"rejected", Reject(base), retry.KindRejected},
		{"wrapped rejected", fmt.Errorf("charge: %w", Reject(base)), retry.KindRejected},
		{"explicit retry", Retry(base, time.Second), retry.KindApplication},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), retry.KindTimeout},
		{"invalid args", fmt.Errorf("%w: x", ErrInvalidArgs), retry.KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err)
			if f.Kind != tt.kind {
				t.Errorf("expected %s, got %s", tt.kind, f.Kind)
			}
		})
	}

	f := Classify(Retry(base, 5*time.Second))
	if f.Countdown == nil || *f.Countdown != 5*time.Second {
		t.Errorf("expected countdown 5s, got %v", f.Countdown)
	}
	if !errors.Is(f.Err, base) {
		t.Error("classified failure should wrap the original error")
	}
}
