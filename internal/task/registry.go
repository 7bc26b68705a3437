package task

import (
	"fmt"
	"log/slog"
	"sort"
)

// Builder собирает реестр при старте процесса.
// Не предназначен для конкурентного использования.
type Builder struct {
	tasks  map[string]Task
	logger *slog.Logger
}

// NewBuilder создаёт пустой Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		tasks:  make(map[string]Task),
		logger: logger,
	}
}

// Register добавляет задачу.
// Повторное имя — ошибка конфигурации сборки (ErrDuplicateTask).
func (b *Builder) Register(t Task) error {
	name := t.Name()
	if name == "" {
		return ErrInvalidName
	}
	if _, exists := b.tasks[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}

	b.tasks[name] = t
	b.logger.Debug("registered task", "task_name", name)
	return nil
}

// RegisterAll добавляет несколько задач, останавливаясь на первой ошибке.
func (b *Builder) RegisterAll(tasks ...Task) error {
	for _, t := range tasks {
		if err := b.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Build возвращает неизменяемый реестр.
// Последующие Register не влияют на уже собранный реестр.
func (b *Builder) Build() *Registry {
	tasks := make(map[string]Task, len(b.tasks))
	for name, t := range b.tasks {
		tasks[name] = t
	}
	return &Registry{tasks: tasks}
}

// Registry — неизменяемый реестр задач.
//
// После Build только читается, поэтому Lookup не требует блокировок.
type Registry struct {
	tasks map[string]Task
}

// Lookup возвращает задачу по имени.
func (r *Registry) Lookup(name string) (Task, error) {
	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return t, nil
}

// Has проверяет, зарегистрирована ли задача.
func (r *Registry) Has(name string) bool {
	_, ok := r.tasks[name]
	return ok
}

// Names возвращает отсортированный список имён задач.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len возвращает количество задач.
func (r *Registry) Len() int {
	return len(r.tasks)
}
