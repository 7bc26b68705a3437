package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Courier/internal/backend"
	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/task"
)

// Значения по умолчанию.
const (
	DefaultQueue         = "celery"
	DefaultConcurrency   = 10
	DefaultShutdownGrace = 30 * time.Second

	// settleTimeout ограничивает ack/nack/publish после остановки.
	settleTimeout = 10 * time.Second
)

// Worker потребляет вызовы задач из очередей и выполняет их.
//
// Одновременно выполняется не больше Concurrency вызовов; при заполнении
// слотов чтение из брокера приостанавливается. Остановка: прекращаем
// потребление, ждём завершения выполняющихся вызовов в пределах
// ShutdownGrace, оставшиеся возвращаем брокеру через nack с requeue.
type Worker struct {
	broker   broker.Broker
	registry *task.Registry
	backend  backend.Backend

	queues           []string
	concurrency      int
	prefetch         int
	shutdownGrace    time.Duration
	deadLetter       bool
	cancelOnShutdown bool

	defaults  task.Options
	overrides map[string]task.Options

	slots *semaphore.Weighted

	// Lifecycle
	logger     *slog.Logger
	runCtx     context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup // циклы потребления
	handlers   sync.WaitGroup // обработка доставок
	abandon    chan struct{}
	abandonMu  sync.Once
	started    bool
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Broker — транспорт (обязателен).
	Broker broker.Broker

	// Registry — реестр задач (обязателен).
	Registry *task.Registry

	// Backend — хранилище итогов (опционально).
	Backend backend.Backend

	// Queues — очереди для потребления (default: ["celery"]).
	Queues []string

	// Concurrency — максимум одновременно выполняемых вызовов (default: 10).
	Concurrency int

	// Prefetch — лимит неподтверждённых доставок на очередь (default: Concurrency).
	Prefetch int

	// ShutdownGrace — время на завершение выполняющихся вызовов (default: 30s).
	ShutdownGrace time.Duration

	// DeadLetter — отклонять «ядовитые» сообщения без requeue вместо ack.
	DeadLetter bool

	// CancelOnShutdown — отменять контексты задач при начале остановки.
	CancelOnShutdown bool

	// Defaults — опции приложения, нижний уровень слияния.
	Defaults task.Options

	// Overrides — опции из конфигурации по имени задачи.
	Overrides map[string]task.Options

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Broker == nil {
		return nil, ErrNoBroker
	}
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}

	queues := cfg.Queues
	if len(queues) == 0 {
		queues = []string{DefaultQueue}
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = concurrency
	}

	grace := cfg.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		broker:           cfg.Broker,
		registry:         cfg.Registry,
		backend:          cfg.Backend,
		queues:           queues,
		concurrency:      concurrency,
		prefetch:         prefetch,
		shutdownGrace:    grace,
		deadLetter:       cfg.DeadLetter,
		cancelOnShutdown: cfg.CancelOnShutdown,
		defaults:         cfg.Defaults,
		overrides:        cfg.Overrides,
		slots:            semaphore.NewWeighted(int64(concurrency)),
		logger:           logger,
		abandon:          make(chan struct{}),
	}, nil
}

// Start объявляет очереди и запускает потребление.
func (w *Worker) Start(ctx context.Context) error {
	w.stoppedMu.Lock()
	if w.started {
		w.stoppedMu.Unlock()
		return ErrAlreadyStarted
	}
	if w.stopped {
		w.stoppedMu.Unlock()
		return ErrWorkerStopped
	}
	w.started = true
	w.stoppedMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	w.runCtx = ctx
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"queues", w.queues,
		"concurrency", w.concurrency,
		"prefetch", w.prefetch,
		"tasks", w.registry.Names(),
	)

	if err := w.broker.Declare(ctx, w.queues...); err != nil {
		cancel()
		return err
	}

	// Доставки всех очередей сходятся в один небуферизованный канал:
	// слот занимается только при наличии доставки в любой из очередей.
	merged := make(chan broker.Delivery)
	var forwarders sync.WaitGroup

	for _, queue := range w.queues {
		deliveries, err := w.broker.Consume(ctx, queue, w.prefetch)
		if err != nil {
			cancel()
			forwarders.Wait()
			return err
		}

		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			w.forward(ctx, deliveries, merged)
		}()
	}

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		forwarders.Wait()
		close(merged)
	}()
	go func() {
		defer w.wg.Done()
		w.consumeLoop(ctx, merged)
	}()

	w.logger.Info("worker started")
	return nil
}

// Run запускает воркер и блокируется до отмены ctx, затем выполняет Stop.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Stop останавливает Worker (warm shutdown).
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	if w.stopped {
		w.stoppedMu.Unlock()
		return
	}
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...", "grace", w.shutdownGrace)

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	// Новые доставки больше не принимаются
	w.wg.Wait()

	done := make(chan struct{})
	go func() {
		w.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.shutdownGrace):
		w.logger.Warn("shutdown grace period exceeded, abandoning in-flight tasks")
		w.Abandon()
		<-done
	}

	w.logger.Info("worker stopped")
}

// Abandon прекращает ожидание выполняющихся вызовов (cold shutdown):
// их доставки возвращаются брокеру без ack. Идемпотентен.
func (w *Worker) Abandon() {
	w.abandonMu.Do(func() { close(w.abandon) })
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// forward передаёт доставки одной очереди в общий канал. Отправка
// блокирующая, поэтому сверх prefetch брокера ничего не накапливается.
func (w *Worker) forward(ctx context.Context, deliveries <-chan broker.Delivery, out chan<- broker.Delivery) {
	for d := range deliveries {
		select {
		case out <- d:
		case <-ctx.Done():
			settle, cancel := w.settleCtx()
			if err := d.Nack(settle, true); err != nil {
				w.logger.Warn("failed to return delivery", "queue", d.Queue(), "error", err)
			}
			cancel()
			return
		}
	}
	if ctx.Err() == nil {
		w.logger.Error("deliveries channel closed unexpectedly")
	}
}

// consumeLoop занимает слот и только затем берёт следующую доставку.
func (w *Worker) consumeLoop(ctx context.Context, deliveries <-chan broker.Delivery) {
	for {
		if err := w.slots.Acquire(ctx, 1); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			w.slots.Release(1)
			return

		case d, ok := <-deliveries:
			if !ok {
				w.slots.Release(1)
				return
			}

			w.handlers.Add(1)
			go func() {
				defer w.handlers.Done()
				w.handleDelivery(ctx, d)
			}()
		}
	}
}

// settleCtx — контекст для ack/nack/publish, не зависящий от остановки.
func (w *Worker) settleCtx() (context.Context, context.CancelFunc) {
	base := context.Background()
	if w.runCtx != nil {
		base = context.WithoutCancel(w.runCtx)
	}
	return context.WithTimeout(base, settleTimeout)
}

// shuttingDown проверяет, началась ли остановка.
func (w *Worker) shuttingDown() bool {
	return w.runCtx != nil && errors.Is(w.runCtx.Err(), context.Canceled)
}
