package retry

import "time"

// Unlimited — без ограничения количества повторов.
const Unlimited = -1

// Kind — вид отказа.
type Kind string

// Виды отказов.
const (
	// KindApplication — тело задачи вернуло ошибку.
	KindApplication Kind = "application"

	// KindTimeout — превышен таймаут выполнения.
	KindTimeout Kind = "timeout"

	// KindRejected — задача сама пометила ошибку как неповторяемую.
	KindRejected Kind = "rejected"

	// KindProtocol — некорректный конверт.
	KindProtocol Kind = "protocol"

	// KindUnknownTask — имени нет в реестре.
	KindUnknownTask Kind = "unknown_task"

	// KindDecode — аргументы не разобрались в типы задачи.
	KindDecode Kind = "decode"

	// KindExpired — вызов получен после expires.
	KindExpired Kind = "expired"
)

// Retryable сообщает, может ли отказ в принципе быть повторён.
// Ошибки протокола, реестра и аргументов не исправятся между попытками.
func (k Kind) Retryable() bool {
	switch k {
	case KindApplication, KindTimeout:
		return true
	default:
		return false
	}
}

// Policy — правила повторов задачи.
type Policy struct {
	// MaxRetries — максимум повторов (Unlimited — без ограничения).
	MaxRetries int

	// Backoff — стратегия задержки. nil — DefaultStrategy(0, time.Hour).
	Backoff Strategy

	// RetryOnTimeout — повторять ли при таймауте.
	RetryOnTimeout bool

	// RetryOn — дополнительный фильтр по виду отказа. nil — повторять всё повторяемое.
	RetryOn func(Kind) bool
}

// Allows проверяет, разрешает ли политика повтор для данного вида отказа.
func (p Policy) Allows(kind Kind) bool {
	if !kind.Retryable() {
		return false
	}
	if kind == KindTimeout && !p.RetryOnTimeout {
		return false
	}
	if p.RetryOn != nil {
		return p.RetryOn(kind)
	}
	return true
}

// Exhausted проверяет, исчерпан ли бюджет повторов.
func (p Policy) Exhausted(retries int) bool {
	if p.MaxRetries == Unlimited {
		return false
	}
	return retries >= p.MaxRetries
}

func (p Policy) strategy() Strategy {
	if p.Backoff != nil {
		return p.Backoff
	}
	return DefaultStrategy(0, time.Hour)
}
