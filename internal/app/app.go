// Package app — клиентская сторона: отправка вызовов задач в брокер.
//
// Отправителю не нужен исполнитель задачи: достаточно имени и аргументов,
// поэтому отправитель и воркер могут быть разными процессами.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Courier/internal/backend"
	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/protocol"
	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
)

// DefaultQueue — очередь по умолчанию.
const DefaultQueue = "celery"

// Ошибки отправки.
var (
	// ErrSend — вызов не опубликован.
	ErrSend = errors.New("send failed")

	// ErrUnsupportedOption — опция места вызова не передаётся в заголовках
	// (Backoff, RetryOn задаются только на уровне задачи).
	ErrUnsupportedOption = errors.New("option cannot be sent with a call")

	// ErrNoBackend — бэкенд итогов не настроен.
	ErrNoBackend = errors.New("result backend is not configured")
)

// SendError — ошибка отправки вызова.
type SendError struct {
	Task string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.Task, e.Err)
}

func (e *SendError) Is(target error) bool { return target == ErrSend }
func (e *SendError) Unwrap() error        { return e.Err }

// Config — конфигурация App.
type Config struct {
	// Name — имя приложения, записывается в origin конверта.
	Name string

	// Broker — транспорт (обязателен).
	Broker broker.Broker

	// Registry — задачи, известные отправителю (опционально): их опции
	// участвуют в выборе очереди.
	Registry *task.Registry

	// DefaultQueue — очередь, если ни один уровень опций её не задал (default: celery).
	DefaultQueue string

	// Defaults, Overrides — опции приложения и конфигурации по имени задачи.
	Defaults  task.Options
	Overrides map[string]task.Options

	// Codec — кодек тела сообщения (default: JSON).
	Codec protocol.Codec

	// Backend — хранилище итогов (опционально).
	Backend backend.Backend

	Logger *slog.Logger
}

// App публикует вызовы задач.
type App struct {
	name         string
	broker       broker.Broker
	registry     *task.Registry
	defaultQueue string
	defaults     task.Options
	overrides    map[string]task.Options
	codec        protocol.Codec
	backend      backend.Backend
	logger       *slog.Logger
}

// New создаёт App.
func New(cfg Config) (*App, error) {
	if cfg.Broker == nil {
		return nil, errors.New("app: broker is required")
	}

	name := cfg.Name
	if name == "" {
		name = "courier"
	}

	queue := cfg.DefaultQueue
	if queue == "" {
		queue = DefaultQueue
	}

	codec := cfg.Codec
	if codec == nil {
		codec = protocol.JSON
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		name:         name,
		broker:       cfg.Broker,
		registry:     cfg.Registry,
		defaultQueue: queue,
		defaults:     cfg.Defaults,
		overrides:    cfg.Overrides,
		codec:        codec,
		backend:      cfg.Backend,
		logger:       logger,
	}, nil
}

// Name возвращает имя приложения.
func (a *App) Name() string { return a.name }

// Send отправляет вызов задачи с произвольными JSON-сериализуемыми аргументами.
// Возвращает id вызова.
func (a *App) Send(ctx context.Context, name string, args []any, kwargs map[string]any, opts ...task.Option) (string, error) {
	sig, err := task.NewSignature(name, args, kwargs, opts...)
	if err != nil {
		return "", &SendError{Task: name, Err: err}
	}
	return a.SendSignature(ctx, sig)
}

// Call отправляет вызов типизированной задачи.
func Call[A, R any](ctx context.Context, a *App, def *task.Definition[A, R], args A, opts ...task.Option) (string, error) {
	sig, err := def.Signature(args, opts...)
	if err != nil {
		return "", &SendError{Task: def.Name(), Err: err}
	}
	return a.SendSignature(ctx, sig)
}

// SendSignature публикует вызов.
//
// В заголовки конверта попадают только опции места вызова:
// слияние с опциями задачи и конфигурации выполняет воркер.
func (a *App) SendSignature(ctx context.Context, sig *task.Signature) (string, error) {
	if sig.Name == "" {
		return "", &SendError{Err: task.ErrInvalidName}
	}

	if sig.Options.Backoff != nil {
		return "", &SendError{Task: sig.Name, Err: fmt.Errorf("%w: backoff", ErrUnsupportedOption)}
	}
	if sig.Options.RetryOn != nil {
		return "", &SendError{Task: sig.Name, Err: fmt.Errorf("%w: retry_on", ErrUnsupportedOption)}
	}

	env := protocol.New(sig.Name, sig.Args, sig.Kwargs)
	if sig.ID != "" {
		env.ID = sig.ID
	}

	env.Headers.MaxRetries = sig.Options.MaxRetries
	env.Headers.Timeout = sig.Options.TimeoutValue()
	env.Headers.RetryOnTimeout = sig.Options.RetryOnTimeout
	env.Headers.MinRetryDelay = sig.Options.MinRetryDelay
	env.Headers.MaxRetryDelay = sig.Options.MaxRetryDelay
	env.Headers.ReplyTo = sig.ReplyTo
	env.Headers.Origin = sig.Origin
	if env.Headers.Origin == "" {
		env.Headers.Origin = a.name
	}

	now := time.Now()
	switch {
	case sig.ETA != nil:
		env.SetETA(*sig.ETA)
	case sig.Countdown > 0:
		env.SetETA(now.Add(sig.Countdown))
	}
	switch {
	case sig.Expires != nil:
		env.SetExpires(*sig.Expires)
	case sig.ExpiresIn > 0:
		env.SetExpires(now.Add(sig.ExpiresIn))
	}

	queue := a.route(sig)

	msg, err := protocol.ToMessage(env, a.codec)
	if err != nil {
		return "", &SendError{Task: sig.Name, Err: err}
	}

	if err := a.broker.Publish(ctx, queue, msg); err != nil {
		telemetry.PublishErrors.WithLabelValues(queue).Inc()
		return "", &SendError{Task: sig.Name, Err: err}
	}

	telemetry.TasksSent.WithLabelValues(sig.Name).Inc()
	a.logger.Debug("task sent",
		"task_id", env.ID,
		"task_name", env.Task,
		"queue", queue,
	)

	if marker, ok := a.backend.(backend.PendingMarker); ok {
		if err := marker.MarkPending(ctx, env.ID, env.Task); err != nil {
			a.logger.Warn("failed to mark task pending", "task_id", env.ID, "error", err)
		}
	}

	return env.ID, nil
}

// route выбирает очередь: место вызова > конфигурация > задача > приложение.
func (a *App) route(sig *task.Signature) string {
	opts := a.defaults
	if a.registry != nil {
		if t, err := a.registry.Lookup(sig.Name); err == nil {
			opts = opts.Merge(t.Options())
		}
	}
	if o, ok := a.overrides[sig.Name]; ok {
		opts = opts.Merge(o)
	}
	opts = opts.Merge(sig.Options)

	if opts.Queue == "" {
		return a.defaultQueue
	}
	return opts.Queue
}

// Result возвращает итог вызова.
func (a *App) Result(ctx context.Context, taskID string) (*backend.Outcome, error) {
	if a.backend == nil {
		return nil, ErrNoBackend
	}
	return a.backend.Fetch(ctx, taskID)
}

// Wait ждёт терминального итога вызова.
func (a *App) Wait(ctx context.Context, taskID string, interval time.Duration) (*backend.Outcome, error) {
	if a.backend == nil {
		return nil, ErrNoBackend
	}
	return backend.Wait(ctx, a.backend, taskID, interval)
}
