// Package bootstrap открывает брокер и хранилище итогов по конфигурации.
// Используется только из cmd/.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/shaiso/Courier/internal/app"
	"github.com/shaiso/Courier/internal/backend"
	"github.com/shaiso/Courier/internal/backend/postgres"
	"github.com/shaiso/Courier/internal/backend/redis"
	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/broker/memory"
	"github.com/shaiso/Courier/internal/config"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/task"
)

// MemoryURL — встроенный брокер/хранилище внутри процесса.
const MemoryURL = "memory://"

// ErrUnsupportedURL — схема URL не поддерживается.
var ErrUnsupportedURL = errors.New("unsupported url scheme")

// Resources — открытые внешние ресурсы процесса.
type Resources struct {
	Broker  broker.Broker
	Backend backend.Backend

	// Pool — пул PostgreSQL, если хранилище на postgres.
	Pool *pgxpool.Pool

	redis  *goredis.Client
	logger *slog.Logger
}

// Open открывает брокер и хранилище итогов.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Resources, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resources{logger: logger}

	b, err := OpenBroker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	r.Broker = b

	if err := r.openBackend(ctx, cfg.ResultBackendURL); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// OpenBroker открывает брокер: memory:// или AMQP.
func OpenBroker(ctx context.Context, cfg config.Config, logger *slog.Logger) (broker.Broker, error) {
	if cfg.BrokerURL == MemoryURL {
		logger.Info("using in-process broker")
		return memory.New(logger), nil
	}

	b, err := mq.Dial(ctx, mq.Config{
		URL:        cfg.BrokerURL,
		DeadLetter: cfg.DeadLetter,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Resources) openBackend(ctx context.Context, url string) error {
	switch {
	case url == "":
		return nil

	case url == MemoryURL:
		r.Backend = backend.NewMemory()

	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		pool, err := postgres.NewPool(ctx, url)
		if err != nil {
			return fmt.Errorf("open result backend: %w", err)
		}
		r.Pool = pool

		pg := postgres.New(pool, r.logger)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		r.Backend = pg

	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		client, err := redis.NewClient(ctx, url)
		if err != nil {
			return fmt.Errorf("open result backend: %w", err)
		}
		r.redis = client
		r.Backend = redis.New(client, redis.WithLogger(r.logger))

	default:
		return fmt.Errorf("%w: result backend %q", ErrUnsupportedURL, url)
	}

	r.logger.Info("result backend ready", "kind", fmt.Sprintf("%T", r.Backend))
	return nil
}

// NewApp создаёт App по конфигурации.
func (r *Resources) NewApp(cfg config.Config, registry *task.Registry) (*app.App, error) {
	codec, err := cfg.Codec()
	if err != nil {
		return nil, err
	}

	return app.New(app.Config{
		Name:         cfg.AppName,
		Broker:       r.Broker,
		Registry:     registry,
		DefaultQueue: cfg.DefaultQueue,
		Defaults:     cfg.TaskDefaults(),
		Overrides:    cfg.Overrides,
		Codec:        codec,
		Backend:      r.Backend,
		Logger:       r.logger,
	})
}

// Healthy сообщает о состоянии соединений.
func (r *Resources) Healthy(ctx context.Context) error {
	if c, ok := r.Broker.(interface{ IsConnected() bool }); ok && !c.IsConnected() {
		return errors.New("broker disconnected")
	}
	if r.Pool != nil {
		if err := r.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("db: %w", err)
		}
	}
	if r.redis != nil {
		if err := r.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// HealthHandler — /healthz.
func (r *Resources) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := r.Healthy(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// Close закрывает ресурсы.
func (r *Resources) Close() {
	if r.Broker != nil {
		if err := r.Broker.Close(); err != nil {
			r.logger.Warn("failed to close broker", "error", err)
		}
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.logger.Warn("failed to close redis", "error", err)
		}
	}
}
