package scheduler

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultLockKey — ключ advisory lock для beat.
const DefaultLockKey int64 = 424242

// Locker — блокировка лидера.
type Locker interface {
	// TryLock пытается стать лидером (или подтверждает лидерство).
	TryLock(ctx context.Context) (bool, error)

	// Unlock освобождает лидерство.
	Unlock(ctx context.Context) error
}

// PGLock — лидерство через pg_try_advisory_lock.
//
// Advisory lock привязан к сессии, поэтому держится на одном
// выделенном соединении пула.
type PGLock struct {
	pool *pgxpool.Pool
	key  int64

	conn *pgxpool.Conn
}

// NewPGLock создаёт PGLock.
func NewPGLock(pool *pgxpool.Pool, key int64) *PGLock {
	return &PGLock{pool: pool, key: key}
}

// TryLock пытается захватить блокировку.
func (l *PGLock) TryLock(ctx context.Context) (bool, error) {
	if l.conn != nil {
		// Проверяем, что сессия жива
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Unlock освобождает блокировку.
func (l *PGLock) Unlock(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()

	if _, err := l.conn.Exec(ctx, "select pg_advisory_unlock($1)", l.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
