package config

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Courier/internal/protocol"
)

// --- Validate Tests ---

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
	if c.DefaultQueue != "celery" {
		t.Errorf("expected default queue celery, got %s", c.DefaultQueue)
	}
	if c.MaxRetryDelay != time.Hour {
		t.Errorf("expected max retry delay 1h, got %v", c.MaxRetryDelay)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }},
		{"negative prefetch", func(c *Config) { c.Prefetch = -1 }},
		{"empty queue", func(c *Config) { c.DefaultQueue = " " }},
		{"empty worker queue", func(c *Config) { c.Queues = []string{"a", ""} }},
		{"empty broker", func(c *Config) { c.BrokerURL = "" }},
		{"min over max", func(c *Config) { c.MinRetryDelay = 2 * time.Hour }},
		{"unknown serializer", func(c *Config) { c.Serializer = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestWorkerQueues(t *testing.T) {
	c := Default()
	if q := c.WorkerQueues(); len(q) != 1 || q[0] != "celery" {
		t.Errorf("expected [celery], got %v", q)
	}

	c.Queues = []string{"a", "b"}
	if q := c.WorkerQueues(); len(q) != 2 {
		t.Errorf("expected 2 queues, got %v", q)
	}
}

func TestTaskDefaults(t *testing.T) {
	c := Default()
	c.Timeout = 5 * time.Second

	opts := c.TaskDefaults()
	if opts.MaxRetries == nil || *opts.MaxRetries != 3 {
		t.Errorf("expected max retries 3, got %v", opts.MaxRetries)
	}
	if opts.TimeoutValue() != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", opts.TimeoutValue())
	}
	if opts.MinRetryDelay == nil || *opts.MinRetryDelay != 0 {
		t.Errorf("expected min retry delay 0, got %v", opts.MinRetryDelay)
	}
	if opts.MaxRetryDelay == nil || *opts.MaxRetryDelay != time.Hour {
		t.Errorf("expected max retry delay 1h, got %v", opts.MaxRetryDelay)
	}

	c.Timeout = 0
	if c.TaskDefaults().Timeout != nil {
		t.Error("expected no timeout when zero")
	}
}

func TestCodec(t *testing.T) {
	c := Default()
	codec, err := c.Codec()
	if err != nil {
		t.Fatal(err)
	}
	if codec.ContentType() != protocol.ContentTypeJSON {
		t.Errorf("expected json, got %s", codec.ContentType())
	}

	c.Serializer = "MsgPack"
	codec, err = c.Codec()
	if err != nil {
		t.Fatal(err)
	}
	if codec.ContentType() != protocol.ContentTypeMsgpack {
		t.Errorf("expected msgpack, got %s", codec.ContentType())
	}
}

// --- Overrides Tests ---

func TestParseOverrides(t *testing.T) {
	data := `{
		"reports.build": {"queue": "reports", "timeout": "2m", "max_retries": 0},
		"mail.send": {"min_retry_delay": "1s", "max_retry_delay": "30s", "retry_on_timeout": false}
	}`

	got, err := ParseOverrides([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := got["reports.build"]
	if r.Queue != "reports" {
		t.Errorf("expected queue reports, got %s", r.Queue)
	}
	if r.TimeoutValue() != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %v", r.TimeoutValue())
	}
	if r.MaxRetries == nil || *r.MaxRetries != 0 {
		t.Errorf("expected max retries 0, got %v", r.MaxRetries)
	}
	if r.MinRetryDelay != nil {
		t.Error("expected min retry delay unset")
	}

	m := got["mail.send"]
	if m.MaxRetryDelay == nil || *m.MaxRetryDelay != 30*time.Second {
		t.Errorf("expected max retry delay 30s, got %v", m.MaxRetryDelay)
	}
	if m.RetryOnTimeout == nil || *m.RetryOnTimeout {
		t.Errorf("expected retry on timeout false, got %v", m.RetryOnTimeout)
	}
	if m.MaxRetries != nil {
		t.Error("expected max retries unset")
	}
}

func TestParseOverrides_Invalid(t *testing.T) {
	if _, err := ParseOverrides([]byte(`{`)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := ParseOverrides([]byte(`{"a": {"timeout": "soon"}}`)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// --- FromEnv Tests ---

func TestFromEnv(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://u:p@rabbit:5672/")
	t.Setenv("DB_URL", "postgres://db/courier")
	t.Setenv("COURIER_QUEUES", "a, b ,,c")
	t.Setenv("COURIER_CONCURRENCY", "4")
	t.Setenv("COURIER_SHUTDOWN_GRACE", "15")
	t.Setenv("COURIER_TASK_TIMEOUT", "1m30s")
	t.Setenv("COURIER_DEAD_LETTER", "true")
	t.Setenv("COURIER_TASK_OVERRIDES", `{"x": {"queue": "q"}}`)

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.BrokerURL != "amqp://u:p@rabbit:5672/" {
		t.Errorf("expected broker from RABBITMQ_URL, got %s", c.BrokerURL)
	}
	if c.ResultBackendURL != "postgres://db/courier" {
		t.Errorf("expected backend from DB_URL, got %s", c.ResultBackendURL)
	}
	if len(c.Queues) != 3 || c.Queues[1] != "b" {
		t.Errorf("expected [a b c], got %v", c.Queues)
	}
	if c.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", c.Concurrency)
	}
	if c.ShutdownGrace != 15*time.Second {
		t.Errorf("expected grace 15s, got %v", c.ShutdownGrace)
	}
	if c.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", c.Timeout)
	}
	if !c.DeadLetter {
		t.Error("expected dead letter enabled")
	}
	if c.Overrides["x"].Queue != "q" {
		t.Errorf("expected override queue q, got %v", c.Overrides)
	}
}

func TestFromEnv_CourierTakesPrecedence(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://legacy/")
	t.Setenv("COURIER_BROKER_URL", "amqp://new/")

	c, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.BrokerURL != "amqp://new/" {
		t.Errorf("expected amqp://new/, got %s", c.BrokerURL)
	}
}

func TestFromEnv_InvalidValue(t *testing.T) {
	t.Setenv("COURIER_CONCURRENCY", "many")

	if _, err := FromEnv(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
