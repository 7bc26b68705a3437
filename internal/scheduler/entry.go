package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shaiso/Courier/internal/task"
)

// Ошибки расписания.
var (
	// ErrInvalidEntry — запись расписания некорректна.
	ErrInvalidEntry = errors.New("invalid schedule entry")

	// ErrDuplicateEntry — имя записи уже используется.
	ErrDuplicateEntry = errors.New("duplicate schedule entry")
)

// Entry — запись расписания.
type Entry struct {
	// Name — уникальное имя записи.
	Name string `json:"name"`

	// Cron — cron-выражение (5 полей или @every/@hourly/...).
	Cron string `json:"cron,omitempty"`

	// IntervalSec — интервал в секундах (если Cron не задан).
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для Cron (default: UTC).
	Timezone string `json:"timezone,omitempty"`

	// Task — имя задачи.
	Task string `json:"task"`

	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`

	// Queue — очередь (default: по опциям задачи).
	Queue string `json:"queue,omitempty"`

	// ExpiresSec — срок годности вызова; обычно не больше периода.
	ExpiresSec int `json:"expires_sec,omitempty"`
}

// IsCron — запись задана cron-выражением.
func (e *Entry) IsCron() bool { return e.Cron != "" }

// IsInterval — запись задана интервалом.
func (e *Entry) IsInterval() bool { return e.Cron == "" && e.IntervalSec > 0 }

// Validate проверяет запись.
func (e *Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntry)
	}
	if e.Task == "" {
		return fmt.Errorf("%w: %s: task is required", ErrInvalidEntry, e.Name)
	}
	if !e.IsCron() && !e.IsInterval() {
		return fmt.Errorf("%w: %s: cron or interval_sec is required", ErrInvalidEntry, e.Name)
	}
	if e.IsCron() {
		if err := ValidateCronExpr(e.Cron); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidEntry, e.Name, err)
		}
	}
	if e.Timezone != "" {
		if _, err := time.LoadLocation(e.Timezone); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidEntry, e.Name, err)
		}
	}
	if e.ExpiresSec < 0 {
		return fmt.Errorf("%w: %s: expires_sec must be non-negative", ErrInvalidEntry, e.Name)
	}
	return nil
}

// Signature строит вызов для срабатывания.
func (e *Entry) Signature() (*task.Signature, error) {
	var opts []task.Option
	if e.Queue != "" {
		opts = append(opts, task.WithQueue(e.Queue))
	}

	sig, err := task.NewSignature(e.Task, e.Args, e.Kwargs, opts...)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.Name, err)
	}
	if e.ExpiresSec > 0 {
		sig.ExpiresIn = time.Duration(e.ExpiresSec) * time.Second
	}
	return sig, nil
}

// LoadEntries читает записи из JSON-файла (массив Entry).
func LoadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule %s: %w", path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse schedule %s: %w", path, err)
	}

	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
