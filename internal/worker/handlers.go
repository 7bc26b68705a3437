package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Courier/internal/backend"
	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/protocol"
	"github.com/shaiso/Courier/internal/retry"
	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
)

// invocation — состояние обработки одной доставки.
type invocation struct {
	d      broker.Delivery
	env    *protocol.Envelope
	task   task.Task
	opts   task.Options
	logger *slog.Logger

	// slot — занят ли слот конкурентности.
	slot bool
}

// handleDelivery проводит доставку через конечный автомат:
// Received → Decoded → (Held) → Executing → Succeeded | Failed-Retryable | Failed-Terminal.
func (w *Worker) handleDelivery(ctx context.Context, d broker.Delivery) {
	inv := &invocation{d: d, logger: w.logger.With("queue", d.Queue()), slot: true}
	defer func() {
		if inv.slot {
			w.slots.Release(1)
		}
	}()

	// 1. Декодируем конверт
	env, err := protocol.FromMessage(d.Message())
	if err != nil {
		telemetry.TasksReceived.WithLabelValues(telemetry.UnknownTaskLabel).Inc()
		w.poison(inv, retry.Failure{Kind: retry.KindProtocol, Err: err})
		return
	}
	inv.env = env
	inv.logger = telemetry.WithTaskName(telemetry.WithTaskID(inv.logger, env.ID), env.Task)

	// 2. Ищем задачу
	t, err := w.registry.Lookup(env.Task)
	if err != nil {
		telemetry.TasksReceived.WithLabelValues(telemetry.UnknownTaskLabel).Inc()
		w.poison(inv, retry.Failure{Kind: retry.KindUnknownTask, Err: err})
		return
	}
	inv.task = t
	inv.opts = w.resolveOptions(t, env)
	telemetry.TasksReceived.WithLabelValues(t.Name()).Inc()

	inv.logger.Debug("task received",
		"attempt", env.Headers.Retries+1,
		"redelivered", d.Redelivered(),
	)

	// 3. Просроченные вызовы не выполняются
	if env.IsExpired(time.Now()) {
		w.terminal(inv, retry.Failure{Kind: retry.KindExpired, Err: fmt.Errorf("expired at %s", env.Headers.Expires.Format(time.RFC3339))}, retry.ReasonNonRetryable)
		return
	}

	// 4. Декодируем аргументы
	call, err := t.Bind(env.Args, env.Kwargs)
	if err != nil {
		w.poison(inv, retry.Failure{Kind: retry.KindDecode, Err: err})
		return
	}

	// 5. Удерживаем до ETA
	if !w.holdUntilETA(ctx, inv) {
		return
	}

	// 6. Выполняем
	result, err := w.execute(inv, call)
	if errors.Is(err, errAbandoned) {
		w.abandonDelivery(inv)
		return
	}
	if err == nil {
		w.succeed(inv, result)
		return
	}

	f := task.Classify(err)
	if errors.Is(err, ErrExecutionTimeout) {
		f.Kind = retry.KindTimeout
	}
	w.fail(inv, f)
}

// resolveOptions сливает опции: приложение < задача < конфигурация < заголовки вызова.
func (w *Worker) resolveOptions(t task.Task, env *protocol.Envelope) task.Options {
	opts := w.defaults.Merge(t.Options())
	if o, ok := w.overrides[t.Name()]; ok {
		opts = opts.Merge(o)
	}

	var call task.Options
	if env.Headers.MaxRetries != nil {
		n := *env.Headers.MaxRetries
		call.MaxRetries = &n
	}
	if env.Headers.Timeout > 0 {
		timeout := env.Headers.Timeout
		call.Timeout = &timeout
	}
	call.RetryOnTimeout = env.Headers.RetryOnTimeout
	call.MinRetryDelay = env.Headers.MinRetryDelay
	call.MaxRetryDelay = env.Headers.MaxRetryDelay

	// Границы задержки вызова заменяют стратегию задачи
	if call.MinRetryDelay != nil || call.MaxRetryDelay != nil {
		opts.Backoff = nil
	}
	return opts.Merge(call)
}

// holdUntilETA удерживает доставку с будущим ETA, не занимая слот.
// Возвращает false, если доставка уже урегулирована.
func (w *Worker) holdUntilETA(ctx context.Context, inv *invocation) bool {
	wait := inv.env.Countdown(time.Now())
	if wait <= 0 {
		return true
	}

	adjuster, _ := w.broker.(broker.PrefetchAdjuster)
	queue := inv.d.Queue()

	if adjuster != nil {
		if err := adjuster.IncreasePrefetch(ctx, queue); err != nil {
			inv.logger.Error("failed to increase prefetch, returning delivery", "error", err)
			w.nack(inv, true)
			return false
		}
		defer func() {
			sctx, cancel := w.settleCtx()
			defer cancel()
			if err := adjuster.DecreasePrefetch(sctx, queue); err != nil {
				inv.logger.Warn("failed to decrease prefetch", "error", err)
			}
		}()
	}

	inv.logger.Debug("holding task until eta", "eta", inv.env.Headers.ETA, "delay", wait)

	w.slots.Release(1)
	inv.slot = false
	telemetry.TasksHeld.Inc()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		telemetry.TasksHeld.Dec()
		w.nack(inv, true)
		return false
	case <-timer.C:
	}
	telemetry.TasksHeld.Dec()

	if err := w.slots.Acquire(ctx, 1); err != nil {
		w.nack(inv, true)
		return false
	}
	inv.slot = true
	return true
}

// succeed сохраняет итог и подтверждает доставку.
func (w *Worker) succeed(inv *invocation, result any) {
	name := inv.task.Name()
	attempts := inv.env.Headers.Retries + 1

	outcome, err := backend.Succeeded(inv.env.ID, name, attempts, result)
	if err != nil {
		// Результат не сериализуется — повторять бессмысленно
		w.terminal(inv, retry.Failure{Kind: retry.KindApplication, Err: err}, retry.ReasonNonRetryable)
		return
	}

	telemetry.TasksSucceeded.WithLabelValues(name).Inc()
	inv.logger.Info("task succeeded", "attempt", attempts)

	w.store(inv, outcome)
	w.ack(inv)
}

// fail применяет политику повторов.
func (w *Worker) fail(inv *invocation, f retry.Failure) {
	decision := retry.Decide(inv.env, f, inv.opts.Policy(), time.Now())

	if decision.Action == retry.GiveUp {
		w.terminal(inv, f, decision.Reason)
		return
	}

	// Publish-then-ack: ack оригинала только после успешной публикации копии
	codec, err := protocol.CodecFor(inv.d.Message().ContentType)
	if err != nil {
		codec = protocol.JSON
	}
	msg, err := protocol.ToMessage(decision.Next, codec)
	if err != nil {
		w.terminal(inv, retry.Failure{Kind: retry.KindProtocol, Err: err}, retry.ReasonNonRetryable)
		return
	}

	sctx, cancel := w.settleCtx()
	defer cancel()

	if err := w.broker.Publish(sctx, inv.d.Queue(), msg); err != nil {
		telemetry.PublishErrors.WithLabelValues(inv.d.Queue()).Inc()
		inv.logger.Error("failed to republish task for retry, returning delivery",
			"attempt", inv.env.Headers.Retries+1,
			"error", err,
		)
		w.nack(inv, true)
		return
	}

	telemetry.TasksRetried.WithLabelValues(inv.task.Name()).Inc()
	inv.logger.Info("task retry scheduled",
		"attempt", inv.env.Headers.Retries+1,
		"kind", f.Kind,
		"delay", decision.Delay,
		"error", f.Err,
	)

	w.ack(inv)
}

// terminal — терминальный отказ: отчёт и ack.
func (w *Worker) terminal(inv *invocation, f retry.Failure, reason retry.Reason) {
	attempts := inv.env.Headers.Retries + 1
	name := inv.env.Task
	if inv.task != nil {
		name = inv.task.Name()
	}

	telemetry.TasksFailed.WithLabelValues(name, string(f.Kind)).Inc()
	inv.logger.Warn("task failed",
		"attempt", attempts,
		"kind", f.Kind,
		"reason", reason,
		"error", f.Err,
	)

	w.store(inv, backend.Failed(inv.env.ID, name, attempts, f.Kind, f.Err))
	w.ack(inv)
}

// poison — сообщение, которое нельзя выполнить: ошибка протокола,
// неизвестная задача, некорректные аргументы. Никогда не выполняется.
func (w *Worker) poison(inv *invocation, f retry.Failure) {
	name := telemetry.UnknownTaskLabel
	if inv.task != nil {
		name = inv.task.Name()
	}
	telemetry.TasksFailed.WithLabelValues(name, string(f.Kind)).Inc()

	inv.logger.Warn("rejecting message",
		"kind", f.Kind,
		"dead_letter", w.deadLetter,
		"error", f.Err,
	)

	if inv.env != nil {
		taskName := inv.env.Task
		w.store(inv, backend.Failed(inv.env.ID, taskName, inv.env.Headers.Retries+1, f.Kind, f.Err))
	}

	if w.deadLetter {
		w.nack(inv, false)
		return
	}
	w.ack(inv)
}

// abandonDelivery возвращает доставку брокеру без ack.
func (w *Worker) abandonDelivery(inv *invocation) {
	telemetry.TasksAbandoned.Inc()
	inv.logger.Warn("task abandoned on shutdown, returning to broker",
		"attempt", inv.env.Headers.Retries+1,
	)
	w.nack(inv, true)
}

func (w *Worker) store(inv *invocation, o *backend.Outcome) {
	if w.backend == nil {
		return
	}

	sctx, cancel := w.settleCtx()
	defer cancel()

	if err := w.backend.Store(sctx, o); err != nil {
		inv.logger.Error("failed to store result", "status", o.Status, "error", err)
	}
}

func (w *Worker) ack(inv *invocation) {
	sctx, cancel := w.settleCtx()
	defer cancel()

	if err := inv.d.Ack(sctx); err != nil {
		inv.logger.Error("failed to ack delivery", "error", err)
	}
}

func (w *Worker) nack(inv *invocation, requeue bool) {
	sctx, cancel := w.settleCtx()
	defer cancel()

	if err := inv.d.Nack(sctx, requeue); err != nil {
		inv.logger.Error("failed to nack delivery", "requeue", requeue, "error", err)
	}
}
