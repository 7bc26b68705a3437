package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
)

// beatNamespace — пространство имён для детерминированных id вызовов.
var beatNamespace = uuid.MustParse("6f1d7c2a-3b4e-4f5a-9c8d-0e1f2a3b4c5d")

// Sender отправляет вызовы задач. Реализуется app.App.
type Sender interface {
	SendSignature(ctx context.Context, sig *task.Signature) (string, error)
}

// Config — конфигурация Beat.
type Config struct {
	Sender  Sender
	Entries []Entry

	// Locker — блокировка лидера (опционально).
	Locker Locker

	// TickInterval — период проверки расписания (default: 1s).
	TickInterval time.Duration

	Logger *slog.Logger
}

// Beat — планировщик периодических вызовов.
type Beat struct {
	sender  Sender
	entries []Entry
	locker  Locker
	tick    time.Duration
	logger  *slog.Logger

	// next — следующее срабатывание по имени записи.
	next     map[string]time.Time
	isLeader bool
}

// New создаёт Beat.
func New(cfg Config) (*Beat, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("scheduler: sender is required")
	}

	seen := make(map[string]bool, len(cfg.Entries))
	for i := range cfg.Entries {
		e := &cfg.Entries[i]
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = true
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Beat{
		sender:  cfg.Sender,
		entries: cfg.Entries,
		locker:  cfg.Locker,
		tick:    tick,
		logger:  logger,
		next:    make(map[string]time.Time, len(cfg.Entries)),
	}, nil
}

// Run выполняет тики до отмены ctx.
func (b *Beat) Run(ctx context.Context) {
	b.logger.Info("beat started", "entries", len(b.entries), "tick", b.tick)

	tk := time.NewTicker(b.tick)
	defer tk.Stop()

	defer func() {
		if b.locker != nil && b.isLeader {
			if err := b.locker.Unlock(context.Background()); err != nil {
				b.logger.Warn("failed to release leader lock", "error", err)
			}
		}
		b.logger.Info("beat stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-tk.C:
			if err := b.Tick(ctx, t); err != nil {
				b.logger.Error("beat tick failed", "error", err)
			}
		}
	}
}

// Tick отправляет вызовы для записей, время которых наступило.
//
// Первое срабатывание записи — следующее после первого тика,
// а не в момент запуска. Ошибка одной записи не блокирует остальные.
func (b *Beat) Tick(ctx context.Context, now time.Time) error {
	if b.locker != nil {
		ok, err := b.locker.TryLock(ctx)
		if err != nil {
			b.isLeader = false
			return fmt.Errorf("leader lock: %w", err)
		}
		if ok != b.isLeader {
			b.logger.Info("beat leadership changed", "leader", ok)
		}
		b.isLeader = ok
		if !ok {
			// не лидер — пропускаем тик
			return nil
		}
	}

	var sent int
	for i := range b.entries {
		e := &b.entries[i]

		due, ok := b.next[e.Name]
		if !ok {
			next, err := CalculateNextDue(e, now)
			if err != nil {
				b.logger.Error("failed to schedule entry", "entry", e.Name, "error", err)
				continue
			}
			b.next[e.Name] = next
			continue
		}

		if now.Before(due) {
			continue
		}

		if err := b.dispatch(ctx, e, due); err != nil {
			b.logger.Error("failed to dispatch entry",
				"entry", e.Name,
				"task_name", e.Task,
				"error", err,
			)
			// Повторим на следующем тике
			continue
		}
		sent++

		next, err := CalculateNextDue(e, now)
		if err != nil {
			b.logger.Error("failed to calculate next due", "entry", e.Name, "error", err)
			delete(b.next, e.Name)
			continue
		}
		b.next[e.Name] = next
	}

	if sent > 0 {
		b.logger.Debug("beat tick completed", "sent", sent)
	}
	return nil
}

// dispatch отправляет вызов записи для срабатывания due.
func (b *Beat) dispatch(ctx context.Context, e *Entry, due time.Time) error {
	sig, err := e.Signature()
	if err != nil {
		return err
	}

	// "{entry}_{due_unix}" — один id на срабатывание
	sig.ID = uuid.NewSHA1(beatNamespace, []byte(fmt.Sprintf("%s_%d", e.Name, due.Unix()))).String()

	id, err := b.sender.SendSignature(ctx, sig)
	if err != nil {
		return err
	}

	telemetry.BeatDispatched.WithLabelValues(e.Name).Inc()
	b.logger.Info("entry dispatched",
		"entry", e.Name,
		"task_name", e.Task,
		"task_id", id,
		"due", due,
	)
	return nil
}

// NextDue возвращает запланированное время записи.
func (b *Beat) NextDue(name string) (time.Time, bool) {
	t, ok := b.next[name]
	return t, ok
}
