// Package redis — result backend поверх Redis (go-redis/v9).
//
// Итог хранится JSON-строкой по ключу courier-task-meta-<task_id> с TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Courier/internal/backend"
)

// KeyPrefix — префикс ключей итогов.
const KeyPrefix = "courier-task-meta-"

// DefaultTTL — время жизни итога по умолчанию.
const DefaultTTL = 24 * time.Hour

// Option настраивает Backend.
type Option func(*Backend)

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithTTL задаёт время жизни итогов. 0 — без истечения.
func WithTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.ttl = ttl }
}

// Backend — хранилище итогов в Redis.
type Backend struct {
	client redis.Cmdable
	logger *slog.Logger
	ttl    time.Duration
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.PendingMarker = (*Backend)(nil)

// New создаёт Backend. Клиентом владеет вызывающий.
func New(client redis.Cmdable, opts ...Option) *Backend {
	b := &Backend{client: client, logger: slog.Default(), ttl: DefaultTTL}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewClient создаёт клиента из redis:// URL и проверяет соединение.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func key(taskID string) string {
	return KeyPrefix + taskID
}

// Store сохраняет терминальный итог.
func (b *Backend) Store(ctx context.Context, o *backend.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome %s: %w", o.TaskID, err)
	}

	if err := b.client.Set(ctx, key(o.TaskID), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("store result %s: %w", o.TaskID, err)
	}

	b.logger.Debug("result stored", "task_id", o.TaskID, "status", o.Status)
	return nil
}

// MarkPending создаёт запись PENDING, если итога ещё нет.
func (b *Backend) MarkPending(ctx context.Context, taskID, taskName string) error {
	data, err := json.Marshal(&backend.Outcome{
		TaskID:   taskID,
		TaskName: taskName,
		Status:   backend.StatusPending,
	})
	if err != nil {
		return fmt.Errorf("marshal pending %s: %w", taskID, err)
	}

	if err := b.client.SetNX(ctx, key(taskID), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("mark pending %s: %w", taskID, err)
	}
	return nil
}

// Fetch возвращает итог задачи.
func (b *Backend) Fetch(ctx context.Context, taskID string) (*backend.Outcome, error) {
	data, err := b.client.Get(ctx, key(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("fetch result %s: %w", taskID, err)
	}

	var o backend.Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal outcome %s: %w", taskID, err)
	}

	if o.Status == backend.StatusPending {
		return nil, fmt.Errorf("%w: %s", backend.ErrPending, taskID)
	}
	return &o, nil
}

// Ping проверяет соединение.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
