package backend

import (
	"context"
	"fmt"
	"sync"
)

// Memory — in-process бэкенд. Хранит также историю вызовов Store.
type Memory struct {
	mu       sync.RWMutex
	outcomes map[string]*Outcome
	stored   []Outcome
}

var _ Backend = (*Memory)(nil)
var _ PendingMarker = (*Memory)(nil)

// NewMemory создаёт бэкенд в памяти.
func NewMemory() *Memory {
	return &Memory{outcomes: make(map[string]*Outcome)}
}

// Store сохраняет итог.
func (m *Memory) Store(_ context.Context, o *Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *o
	m.outcomes[o.TaskID] = &c
	m.stored = append(m.stored, c)
	return nil
}

// MarkPending создаёт запись PENDING, если итога ещё нет.
func (m *Memory) MarkPending(_ context.Context, taskID, taskName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.outcomes[taskID]; ok {
		return nil
	}
	m.outcomes[taskID] = &Outcome{TaskID: taskID, TaskName: taskName, Status: StatusPending}
	return nil
}

// Fetch возвращает итог.
func (m *Memory) Fetch(_ context.Context, taskID string) (*Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.outcomes[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if o.Status == StatusPending {
		return nil, fmt.Errorf("%w: %s", ErrPending, taskID)
	}
	c := *o
	return &c, nil
}

// Stored возвращает все вызовы Store в порядке поступления.
func (m *Memory) Stored() []Outcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Outcome(nil), m.stored...)
}
