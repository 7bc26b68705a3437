// Courier API — HTTP API для отправки вызовов и чтения итогов.
//
// Endpoints:
//
//	GET  /api/v1/tasks          — известные задачи
//	POST /api/v1/tasks/{name}   — отправить вызов
//	GET  /api/v1/results/{id}   — итог вызова
//	GET  /healthz, /metrics
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Courier/internal/api"
	"github.com/shaiso/Courier/internal/bootstrap"
	"github.com/shaiso/Courier/internal/builtin"
	"github.com/shaiso/Courier/internal/config"
	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting courier-api")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
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

	// Опции встроенных задач участвуют в выборе очереди
	builder := task.NewBuilder(logger)
	if err := builtin.Register(builder, nil); err != nil {
		logger.Error("failed to register tasks", "error", err)
		os.Exit(1)
	}
	registry := builder.Build()

	a, err := res.NewApp(cfg, registry)
	if err != nil {
		logger.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(api.Config{
		App:      a,
		Registry: registry,
		Logger:   logger,
	})

	srv := telemetry.NewOpsServer(cfg.HTTPPort, res.HealthHandler(), handler.RegisterRoutes)
	if err := telemetry.ServeOps(ctx, srv, logger); err != nil {
		logger.Error("http server error", "error", err)
		res.Close()
		os.Exit(1)
	}

	logger.Info("courier-api stopped")
}
