// Package retry решает судьбу упавшего вызова: повторить или сдаться.
//
// Стратегии backoff не имеют состояния и безопасны для конкурентного использования.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy вычисляет задержку перед повтором.
type Strategy interface {
	// Delay возвращает задержку перед повтором номер attempt (с 1).
	Delay(attempt int) time.Duration
}

// Fixed — одинаковая задержка для всех попыток.
type Fixed struct {
	Interval time.Duration
}

// Delay возвращает Interval.
func (f Fixed) Delay(_ int) time.Duration {
	return f.Interval
}

// Exponential — удвоение задержки на каждой попытке.
//
//	delay = clamp(Base * 2^(attempt-1), Min, Max)
//
// Jitter > 0 добавляет случайное отклонение в пределах ±Jitter доли задержки
// (0.2 — ±20%), результат всё равно ограничен [Min, Max].
type Exponential struct {
	Base   time.Duration
	Min    time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay возвращает задержку для попытки attempt.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := e.Base
	if base <= 0 {
		base = time.Second
	}

	d := float64(base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if d > math.MaxInt64/2 {
		d = math.MaxInt64 / 2
	}

	if e.Jitter > 0 {
		j := math.Min(e.Jitter, 1)
		d = d * (1 - j + 2*j*rand.Float64()) //nolint:gosec // jitter не требует криптостойкости
	}

	delay := time.Duration(d)
	if e.Max > 0 && delay > e.Max {
		delay = e.Max
	}
	if delay < e.Min {
		delay = e.Min
	}
	return delay
}

// DefaultStrategy возвращает стратегию по умолчанию:
// экспонента от 1s, ограниченная [minDelay, maxDelay], с jitter ±20%.
func DefaultStrategy(minDelay, maxDelay time.Duration) Strategy {
	return Exponential{
		Base:   time.Second,
		Min:    minDelay,
		Max:    maxDelay,
		Jitter: 0.2,
	}
}
