// Package postgres — result backend поверх PostgreSQL (pgx/v5).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Courier/internal/backend"
	"github.com/shaiso/Courier/internal/retry"
)

const schema = `
	CREATE TABLE IF NOT EXISTS courier_results (
		task_id     TEXT PRIMARY KEY,
		task_name   TEXT NOT NULL,
		status      TEXT NOT NULL,
		result      JSONB,
		error       TEXT,
		kind        TEXT,
		attempts    INTEGER NOT NULL DEFAULT 0,
		finished_at TIMESTAMPTZ,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// NewPool создаёт пул соединений и проверяет доступность БД.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Backend — хранилище итогов в таблице courier_results.
type Backend struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.PendingMarker = (*Backend)(nil)

// New создаёт Backend. Пулом владеет вызывающий.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{pool: pool, logger: logger}
}

// Migrate создаёт таблицу итогов.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate courier_results: %w", err)
	}
	return nil
}

// Store сохраняет терминальный итог.
func (b *Backend) Store(ctx context.Context, o *backend.Outcome) error {
	query := `
		INSERT INTO courier_results (task_id, task_name, status, result, error, kind, attempts, finished_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (task_id) DO UPDATE
		SET task_name = EXCLUDED.task_name, status = EXCLUDED.status, result = EXCLUDED.result,
		    error = EXCLUDED.error, kind = EXCLUDED.kind, attempts = EXCLUDED.attempts,
		    finished_at = EXCLUDED.finished_at, updated_at = now()
	`
	_, err := b.pool.Exec(ctx, query,
		o.TaskID,
		o.TaskName,
		string(o.Status),
		nullJSON(o.Result),
		nullString(o.Error),
		nullString(string(o.Kind)),
		o.Attempts,
		o.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("store result %s: %w", o.TaskID, err)
	}

	b.logger.Debug("result stored", "task_id", o.TaskID, "status", o.Status)
	return nil
}

// MarkPending создаёт запись PENDING, если итога ещё нет.
func (b *Backend) MarkPending(ctx context.Context, taskID, taskName string) error {
	query := `
		INSERT INTO courier_results (task_id, task_name, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO NOTHING
	`
	if _, err := b.pool.Exec(ctx, query, taskID, taskName, string(backend.StatusPending)); err != nil {
		return fmt.Errorf("mark pending %s: %w", taskID, err)
	}
	return nil
}

// Fetch возвращает итог задачи.
func (b *Backend) Fetch(ctx context.Context, taskID string) (*backend.Outcome, error) {
	query := `
		SELECT task_id, task_name, status, result, error, kind, attempts, finished_at
		FROM courier_results
		WHERE task_id = $1
	`

	var (
		o          backend.Outcome
		status     string
		result     []byte
		errText    *string
		kind       *string
		finishedAt *time.Time
	)

	err := b.pool.QueryRow(ctx, query, taskID).Scan(
		&o.TaskID,
		&o.TaskName,
		&status,
		&result,
		&errText,
		&kind,
		&o.Attempts,
		&finishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("fetch result %s: %w", taskID, err)
	}

	o.Status = backend.Status(status)
	if o.Status == backend.StatusPending {
		return nil, fmt.Errorf("%w: %s", backend.ErrPending, taskID)
	}

	o.Result = result
	if errText != nil {
		o.Error = *errText
	}
	if kind != nil {
		o.Kind = retry.Kind(*kind)
	}
	if finishedAt != nil {
		o.FinishedAt = finishedAt.UTC()
	}

	return &o, nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullJSON возвращает nil для пустого результата.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
