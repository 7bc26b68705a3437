package retry

import (
	"time"

	"github.com/shaiso/Courier/internal/protocol"
)

// Failure — отказ при выполнении вызова.
type Failure struct {
	// Kind — вид отказа.
	Kind Kind

	// Err — исходная ошибка.
	Err error

	// Countdown — задержка, запрошенная самой задачей. nil — считает backoff.
	Countdown *time.Duration
}

// Error возвращает текст ошибки.
func (f Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return f.Err.Error()
}

// Action — решение движка.
type Action int

// Решения.
const (
	// GiveUp — терминальный отказ: ack оригинала, отчёт, без повторной публикации.
	GiveUp Action = iota

	// Requeue — повторная публикация копии с retries+1 и новым ETA, затем ack оригинала.
	Requeue
)

func (a Action) String() string {
	if a == Requeue {
		return "requeue"
	}
	return "give_up"
}

// Reason — причина терминального решения.
type Reason string

// Причины.
const (
	ReasonNone         Reason = ""
	ReasonExhausted    Reason = "retries exhausted"
	ReasonNonRetryable Reason = "non-retryable failure"
)

// Decision — результат Decide.
type Decision struct {
	Action Action
	Reason Reason

	// Delay — задержка до следующей попытки (только Requeue).
	Delay time.Duration

	// Next — конверт для повторной публикации (только Requeue).
	Next *protocol.Envelope
}

// Decide применяет таблицу решений к упавшему вызову.
//
//	retries >= max          → GiveUp (exhausted)
//	неповторяемый отказ     → GiveUp (non-retryable), независимо от остатка бюджета
//	иначе                   → Requeue: delay = backoff(retries+1), retries+1, eta = now+delay
//
// Исходный конверт не изменяется.
func Decide(env *protocol.Envelope, f Failure, p Policy, now time.Time) Decision {
	if p.Exhausted(env.Headers.Retries) {
		return Decision{Action: GiveUp, Reason: ReasonExhausted}
	}
	if !p.Allows(f.Kind) {
		return Decision{Action: GiveUp, Reason: ReasonNonRetryable}
	}

	var delay time.Duration
	if f.Countdown != nil {
		delay = *f.Countdown
	} else {
		delay = p.strategy().Delay(env.Headers.Retries + 1)
	}
	if delay < 0 {
		delay = 0
	}

	return Decision{
		Action: Requeue,
		Delay:  delay,
		Next:   env.NextAttempt(now.Add(delay)),
	}
}
