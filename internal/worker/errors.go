package worker

import "errors"

// Ошибки воркера.
var (
	// ErrNoBroker — не задан брокер.
	ErrNoBroker = errors.New("broker is required")

	// ErrNoRegistry — не задан реестр задач.
	ErrNoRegistry = errors.New("task registry is required")

	// ErrAlreadyStarted — Start вызван повторно.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrExecutionTimeout — выполнение задачи превысило таймаут.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrTaskPanicked — задача завершилась паникой.
	ErrTaskPanicked = errors.New("task panicked")
)
