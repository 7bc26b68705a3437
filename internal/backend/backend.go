// Package backend — хранилище итогов задач (result backend).
//
// Воркер вызывает Store только для терминальных состояний; корректность
// доставки от бэкенда не зависит. Реализации:
//   - memory.go         — in-process
//   - postgres/         — pgx/v5
//   - redis/            — go-redis/v9
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Courier/internal/retry"
)

// Ошибки бэкенда.
var (
	// ErrNotFound — итог задачи неизвестен.
	ErrNotFound = errors.New("result not found")

	// ErrPending — задача отправлена, но ещё не завершена.
	ErrPending = errors.New("result pending")
)

// Status — статус итога.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// IsTerminal проверяет, является ли статус финальным.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Outcome — итог выполнения задачи.
type Outcome struct {
	TaskID   string          `json:"task_id"`
	TaskName string          `json:"task_name"`
	Status   Status          `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Kind     retry.Kind      `json:"kind,omitempty"`

	// Attempts — количество выполненных попыток (retries + 1).
	Attempts int `json:"attempts"`

	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded создаёт успешный итог. Результат сериализуется в JSON.
func Succeeded(taskID, taskName string, attempts int, result any) (*Outcome, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result of %s: %w", taskName, err)
	}
	return &Outcome{
		TaskID:     taskID,
		TaskName:   taskName,
		Status:     StatusSuccess,
		Result:     data,
		Attempts:   attempts,
		FinishedAt: time.Now().UTC(),
	}, nil
}

// Failed создаёт итог терминального отказа.
func Failed(taskID, taskName string, attempts int, kind retry.Kind, cause error) *Outcome {
	o := &Outcome{
		TaskID:     taskID,
		TaskName:   taskName,
		Status:     StatusFailure,
		Kind:       kind,
		Attempts:   attempts,
		FinishedAt: time.Now().UTC(),
	}
	if cause != nil {
		o.Error = cause.Error()
	}
	return o
}

// Backend — хранилище итогов.
type Backend interface {
	// Store сохраняет терминальный итог (перезаписывает PENDING).
	Store(ctx context.Context, o *Outcome) error

	// Fetch возвращает итог. ErrPending — задача ещё выполняется,
	// ErrNotFound — итог неизвестен.
	Fetch(ctx context.Context, taskID string) (*Outcome, error)
}

// PendingMarker — бэкенд умеет помечать отправленные задачи.
//
// MarkPending не перезаписывает уже сохранённый терминальный итог.
type PendingMarker interface {
	MarkPending(ctx context.Context, taskID, taskName string) error
}

// Wait опрашивает бэкенд, пока итог не станет терминальным или не истечёт ctx.
func Wait(ctx context.Context, b Backend, taskID string, interval time.Duration) (*Outcome, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		o, err := b.Fetch(ctx, taskID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrPending) && !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", taskID, err)
		case <-ticker.C:
		}
	}
}
