// Courier Beat — отправляет вызовы задач по расписанию.
//
// Расписание читается из JSON-файла (COURIER_BEAT_SCHEDULE).
// Если result backend — PostgreSQL, тики выполняет только держатель
// advisory lock, поэтому можно запускать несколько экземпляров.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Courier/internal/bootstrap"
	"github.com/shaiso/Courier/internal/config"
	"github.com/shaiso/Courier/internal/scheduler"
	"github.com/shaiso/Courier/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting courier-beat")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.BeatSchedulePath == "" {
		logger.Error("COURIER_BEAT_SCHEDULE is required")
		os.Exit(1)
	}

	entries, err := scheduler.LoadEntries(cfg.BeatSchedulePath)
	if err != nil {
		logger.Error("failed to load schedule", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open resources", "error", err)
		os.Exit(1)
	}
	defer res.Close()

	// Beat не выполняет задачи, реестр пустой
	a, err := res.NewApp(cfg, nil)
	if err != nil {
		logger.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	var locker scheduler.Locker
	if res.Pool != nil {
		locker = scheduler.NewPGLock(res.Pool, scheduler.DefaultLockKey)
		logger.Info("leader election enabled", "lock_key", scheduler.DefaultLockKey)
	}

	beat, err := scheduler.New(scheduler.Config{
		Sender:  a,
		Entries: entries,
		Locker:  locker,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create beat", "error", err)
		os.Exit(1)
	}

	srv := telemetry.NewOpsServer(cfg.HTTPPort, res.HealthHandler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		beat.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return telemetry.ServeOps(gctx, srv, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("courier-beat failed", "error", err)
		res.Close()
		os.Exit(1)
	}
	logger.Info("courier-beat stopped")
}
