// Courier Worker — выполняет вызовы задач из очередей.
//
// Worker:
//   - Получает вызовы из RabbitMQ (или встроенного брокера memory://)
//   - Выполняет зарегистрированные задачи с ограничением параллелизма
//   - Повторяет отказы с backoff, публикуя повтор до ack исходной доставки
//   - Сохраняет итоги в result backend (postgres, redis)
//
// Первый SIGINT/SIGTERM — warm shutdown (дожидаемся выполняющихся вызовов
// в пределах COURIER_SHUTDOWN_GRACE), второй — cold shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Courier/internal/bootstrap"
	"github.com/shaiso/Courier/internal/builtin"
	"github.com/shaiso/Courier/internal/config"
	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
	"github.com/shaiso/Courier/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting courier-worker")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open resources", "error", err)
		os.Exit(1)
	}
	defer res.Close()

	// Реестр задач
	builder := task.NewBuilder(logger)
	if err := builtin.Register(builder, nil); err != nil {
		logger.Error("failed to register tasks", "error", err)
		os.Exit(1)
	}
	registry := builder.Build()

	w, err := worker.New(worker.Config{
		Broker:           res.Broker,
		Registry:         registry,
		Backend:          res.Backend,
		Queues:           cfg.WorkerQueues(),
		Concurrency:      cfg.Concurrency,
		Prefetch:         cfg.Prefetch,
		ShutdownGrace:    cfg.ShutdownGrace,
		DeadLetter:       cfg.DeadLetter,
		CancelOnShutdown: cfg.CancelOnShutdown,
		Defaults:         cfg.TaskDefaults(),
		Overrides:        cfg.Overrides,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Первый сигнал — warm shutdown, второй — cold
	go func() {
		sig := <-sigCh
		logger.Info("warm shutdown requested", "signal", sig.String())
		cancel()

		sig = <-sigCh
		logger.Warn("cold shutdown requested", "signal", sig.String())
		w.Abandon()
	}()

	srv := telemetry.NewOpsServer(cfg.HTTPPort, res.HealthHandler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		return telemetry.ServeOps(gctx, srv, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("courier-worker failed", "error", err)
		res.Close()
		os.Exit(1)
	}
	logger.Info("courier-worker stopped")
}
