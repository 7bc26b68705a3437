package task

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Courier/internal/retry"
)

// Ошибки реестра и задач.
var (
	// ErrUnknownTask — задача не зарегистрирована.
	ErrUnknownTask = errors.New("unknown task")

	// ErrDuplicateTask — задача с таким именем уже зарегистрирована.
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrInvalidArgs — аргументы не декодируются в типы задачи.
	ErrInvalidArgs = errors.New("invalid task arguments")

	// ErrInvalidName — пустое имя задачи.
	ErrInvalidName = errors.New("invalid task name")
)

// rejectError — неповторяемый отказ задачи.
type rejectError struct {
	err error
}

func (e *rejectError) Error() string { return e.err.Error() }
func (e *rejectError) Unwrap() error { return e.err }

// Reject помечает ошибку как неповторяемую: вызов завершится терминально
// независимо от оставшегося бюджета повторов.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &rejectError{err: err}
}

// retryError — явный запрос повтора с задержкой.
type retryError struct {
	err       error
	countdown time.Duration
}

func (e *retryError) Error() string { return e.err.Error() }
func (e *retryError) Unwrap() error { return e.err }

// Retry запрашивает повтор через countdown. Лимит повторов политики
// всё равно действует.
func Retry(err error, countdown time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryError{err: err, countdown: countdown}
}

// Classify определяет вид отказа по ошибке задачи.
func Classify(err error) retry.Failure {
	var rej *rejectError
	if errors.As(err, &rej) {
		return retry.Failure{Kind: retry.KindRejected, Err: err}
	}

	var rt *retryError
	if errors.As(err, &rt) {
		countdown := rt.countdown
		return retry.Failure{Kind: retry.KindApplication, Err: err, Countdown: &countdown}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Failure{Kind: retry.KindTimeout, Err: err}
	}

	if errors.Is(err, ErrInvalidArgs) {
		return retry.Failure{Kind: retry.KindDecode, Err: err}
	}

	return retry.Failure{Kind: retry.KindApplication, Err: err}
}
