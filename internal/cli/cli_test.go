package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Courier/internal/app"
	"github.com/shaiso/Courier/internal/backend"
	"github.com/shaiso/Courier/internal/broker/memory"
	"github.com/shaiso/Courier/internal/builtin"
	"github.com/shaiso/Courier/internal/protocol"
	"github.com/shaiso/Courier/internal/retry"
	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/worker"
)

type harness struct {
	broker   *memory.Broker
	backend  *backend.Memory
	registry *task.Registry
	app      *app.App
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := task.NewBuilder(logger)
	if err := builtin.Register(b, nil); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		broker:   memory.New(logger),
		backend:  backend.NewMemory(),
		registry: b.Build(),
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
	}

	a, err := app.New(app.Config{
		Broker:   h.broker,
		Registry: h.registry,
		Backend:  h.backend,
		Logger:   logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.app = a
	return h
}

func (h *harness) session(context.Context) (*Session, error) {
	return &Session{App: h.app, Registry: h.registry}, nil
}

func (h *harness) output(jsonMode bool) func() *Output {
	return func() *Output { return NewOutputTo(jsonMode, h.stdout, h.stderr) }
}

// --- Parsing Tests ---

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"2", float64(2)},
		{"true", true},
		{`"quoted"`, "quoted"},
		{"plain", "plain"},
		{`{"a":1}`, map[string]any{"a": float64(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, _ := json.Marshal(parseValue(tt.in))
			want, _ := json.Marshal(tt.want)
			if string(got) != string(want) {
				t.Errorf("expected %s, got %s", want, got)
			}
		})
	}
}

func TestParseKwargs(t *testing.T) {
	kw, err := parseKwargs([]string{"n=3", "msg=hello=world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kw["n"] != float64(3) {
		t.Errorf("expected n=3, got %v", kw["n"])
	}
	if kw["msg"] != "hello=world" {
		t.Errorf("expected msg=hello=world, got %v", kw["msg"])
	}

	if _, err := parseKwargs([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if _, err := parseKwargs([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

// --- Command Tests ---

func TestSendCmd(t *testing.T) {
	h := newHarness(t)

	cmd := NewSendCmd(h.session, h.output(true))
	cmd.SetArgs([]string{"reports.build", "7", "x", "--kwarg", "full=true", "--queue", "reports", "--max-retries", "1"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := h.broker.Messages("reports")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message in reports, got %d", len(msgs))
	}

	env, err := protocol.FromMessage(msgs[0])
	if err != nil {
		t.Fatal(err)
	}
	if env.Task != "reports.build" {
		t.Errorf("expected task reports.build, got %s", env.Task)
	}
	if len(env.Args) != 2 || string(env.Args[0]) != "7" || string(env.Args[1]) != `"x"` {
		t.Errorf("unexpected args: %s", env.Args)
	}
	if string(env.Kwargs["full"]) != "true" {
		t.Errorf("unexpected kwargs: %v", env.Kwargs)
	}
	if env.Headers.MaxRetries == nil || *env.Headers.MaxRetries != 1 {
		t.Errorf("expected max_retries 1, got %v", env.Headers.MaxRetries)
	}

	var printed map[string]string
	if err := json.Unmarshal(h.stdout.Bytes(), &printed); err != nil {
		t.Fatalf("expected JSON output, got %q", h.stdout.String())
	}
	if printed["id"] != env.ID {
		t.Errorf("expected printed id %s, got %s", env.ID, printed["id"])
	}
}

func TestSendCmd_InvalidETA(t *testing.T) {
	h := newHarness(t)

	cmd := NewSendCmd(h.session, h.output(false))
	cmd.SetArgs([]string{"x", "--eta", "tomorrow"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Error("expected error for invalid eta")
	}
	if h.broker.Len("celery") != 0 {
		t.Error("expected nothing published")
	}
}

func TestSendCmd_WaitForResult(t *testing.T) {
	h := newHarness(t)

	w, err := worker.New(worker.Config{
		Broker:   h.broker,
		Registry: h.registry,
		Backend:  h.backend,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	cmd := NewSendCmd(h.session, h.output(true))
	cmd.SetArgs([]string{builtin.EchoTaskName, "--kwarg", "msg=hi", "--wait", "--interval", "10ms"})
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var o backend.Outcome
	if err := json.Unmarshal(h.stdout.Bytes(), &o); err != nil {
		t.Fatalf("expected outcome JSON, got %q", h.stdout.String())
	}
	if o.Status != backend.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", o.Status)
	}
	if !strings.Contains(string(o.Result), `"hi"`) {
		t.Errorf("expected result to contain hi, got %s", o.Result)
	}
}

func TestResultCmd(t *testing.T) {
	h := newHarness(t)

	o, err := backend.Succeeded("id-1", "add", 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.backend.Store(context.Background(), o); err != nil {
		t.Fatal(err)
	}

	cmd := NewResultCmd(h.session, h.output(false))
	cmd.SetArgs([]string{"id-1"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := h.stdout.String()
	for _, want := range []string{"id-1", "add", "SUCCESS", "5"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got %q", want, got)
		}
	}
}

func TestResultCmd_NotFound(t *testing.T) {
	h := newHarness(t)

	cmd := NewResultCmd(h.session, h.output(false))
	cmd.SetArgs([]string{"missing"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(context.Background())
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTasksCmd(t *testing.T) {
	h := newHarness(t)

	cmd := NewTasksCmd(h.session, h.output(true))
	cmd.SetArgs([]string{})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var infos []taskInfo
	if err := json.Unmarshal(h.stdout.Bytes(), &infos); err != nil {
		t.Fatalf("expected JSON output, got %q", h.stdout.String())
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(infos))
	}

	names := map[string]bool{}
	for _, i := range infos {
		names[i.Name] = true
	}
	for _, n := range []string{builtin.HTTPTaskName, builtin.SleepTaskName, builtin.EchoTaskName} {
		if !names[n] {
			t.Errorf("expected task %s in list", n)
		}
	}
}

func TestScheduleCmd(t *testing.T) {
	h := newHarness(t)

	path := filepath.Join(t.TempDir(), "beat.json")
	data := `[{"name": "ping", "task": "courier.echo", "interval_sec": 60}]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := NewScheduleCmd(h.output(false))
	cmd.SetArgs([]string{path})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := h.stdout.String()
	if !strings.Contains(got, "ping") || !strings.Contains(got, "1m0s") {
		t.Errorf("unexpected output: %q", got)
	}
}

// --- Output Tests ---

func TestOutput_OutcomeTable(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, io.Discard)

	o := backend.Failed("id-7", "courier.http", 4, retry.KindApplication,
		errors.New("status 503:\n"+strings.Repeat("upstream unavailable ", 10)))
	out.Outcome(o)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d: %q", len(lines), buf.String())
	}
	for _, col := range []string{"ID", "STATUS", "ATTEMPTS", "KIND"} {
		if !strings.Contains(lines[0], col) {
			t.Errorf("expected column %s in header %q", col, lines[0])
		}
	}
	for _, want := range []string{"id-7", "FAILURE", "4", "application", "status 503: upstream", "..."} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("expected %q in row %q", want, lines[1])
		}
	}
}

func TestOutput_SentJSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(true, &buf, io.Discard)

	out.Sent("id-1", "add")

	var got map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected JSON, got %q", buf.String())
	}
	if got["id"] != "id-1" || got["task"] != "add" {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestOutput_TasksEmptyCells(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, io.Discard)

	out.Tasks([]taskInfo{{Name: "add"}, {Name: "slow", Queue: "bulk", Timeout: "5s", MaxRetries: "unlimited"}})

	got := buf.String()
	if !strings.Contains(got, "MAX_RETRIES") || !strings.Contains(got, "unlimited") {
		t.Errorf("unexpected output: %q", got)
	}
	if !strings.Contains(strings.Split(got, "\n")[1], "-") {
		t.Errorf("expected dash for unset cells, got %q", got)
	}
}

func TestClip(t *testing.T) {
	if got := clip("a\n  b"); got != "a b" {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
	long := strings.Repeat("я", cellWidth+5)
	if got := clip(long); utf8.RuneCountInString(got) != cellWidth || !strings.HasSuffix(got, "...") {
		t.Errorf("expected %d runes ending with ..., got %q", cellWidth, got)
	}
}
