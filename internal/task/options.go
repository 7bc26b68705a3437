package task

import (
	"time"

	"github.com/shaiso/Courier/internal/retry"
)

// Значения по умолчанию.
const (
	DefaultMinRetryDelay = 0
	DefaultMaxRetryDelay = time.Hour
)

// Options — политика задачи: очередь, таймаут, повторы.
//
// nil / пустое значение поля означает «не задано», поэтому Merge
// объединяет опции по полям: заданное поле верхнего уровня перекрывает нижнее.
type Options struct {
	// Queue — очередь по умолчанию.
	Queue string

	// Timeout — таймаут выполнения (0 — без таймаута).
	Timeout *time.Duration

	// MaxRetries — максимум повторов (retry.Unlimited — без ограничения).
	MaxRetries *int

	// MinRetryDelay / MaxRetryDelay — границы задержки по умолчанию.
	MinRetryDelay *time.Duration
	MaxRetryDelay *time.Duration

	// RetryOnTimeout — повторять ли при таймауте (по умолчанию да).
	RetryOnTimeout *bool

	// Backoff — стратегия задержки. Если задана, границы задержки не применяются.
	Backoff retry.Strategy

	// RetryOn — фильтр повторяемых видов отказа.
	RetryOn func(retry.Kind) bool
}

// Option настраивает Options.
type Option func(*Options)

// WithQueue задаёт очередь.
func WithQueue(queue string) Option {
	return func(o *Options) { o.Queue = queue }
}

// WithTimeout задаёт таймаут выполнения.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = &d }
}

// WithMaxRetries задаёт максимум повторов.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = &n }
}

// WithRetryDelay задаёт границы задержки между повторами.
func WithRetryDelay(minDelay, maxDelay time.Duration) Option {
	return func(o *Options) {
		o.MinRetryDelay = &minDelay
		o.MaxRetryDelay = &maxDelay
	}
}

// WithRetryOnTimeout включает или отключает повтор при таймауте.
func WithRetryOnTimeout(enabled bool) Option {
	return func(o *Options) { o.RetryOnTimeout = &enabled }
}

// WithBackoff задаёт стратегию задержки.
func WithBackoff(s retry.Strategy) Option {
	return func(o *Options) { o.Backoff = s }
}

// WithRetryOn задаёт фильтр повторяемых видов отказа.
func WithRetryOn(fn func(retry.Kind) bool) Option {
	return func(o *Options) { o.RetryOn = fn }
}

// NewOptions собирает Options из функциональных опций.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Merge возвращает опции, где заданные поля over перекрывают поля o.
func (o Options) Merge(over Options) Options {
	out := o
	if over.Queue != "" {
		out.Queue = over.Queue
	}
	if over.Timeout != nil {
		out.Timeout = over.Timeout
	}
	if over.MaxRetries != nil {
		out.MaxRetries = over.MaxRetries
	}
	if over.MinRetryDelay != nil {
		out.MinRetryDelay = over.MinRetryDelay
	}
	if over.MaxRetryDelay != nil {
		out.MaxRetryDelay = over.MaxRetryDelay
	}
	if over.RetryOnTimeout != nil {
		out.RetryOnTimeout = over.RetryOnTimeout
	}
	if over.Backoff != nil {
		out.Backoff = over.Backoff
	}
	if over.RetryOn != nil {
		out.RetryOn = over.RetryOn
	}
	return out
}

// TimeoutValue возвращает таймаут или 0, если не задан.
func (o Options) TimeoutValue() time.Duration {
	if o.Timeout == nil || *o.Timeout < 0 {
		return 0
	}
	return *o.Timeout
}

// Policy переводит опции в политику повторов.
//
// Не заданный MaxRetries означает отсутствие ограничения.
func (o Options) Policy() retry.Policy {
	p := retry.Policy{
		MaxRetries:     retry.Unlimited,
		Backoff:        o.Backoff,
		RetryOnTimeout: true,
		RetryOn:        o.RetryOn,
	}
	if o.MaxRetries != nil {
		p.MaxRetries = *o.MaxRetries
	}
	if o.RetryOnTimeout != nil {
		p.RetryOnTimeout = *o.RetryOnTimeout
	}
	if p.Backoff == nil {
		minDelay := time.Duration(DefaultMinRetryDelay)
		if o.MinRetryDelay != nil {
			minDelay = *o.MinRetryDelay
		}
		maxDelay := DefaultMaxRetryDelay
		if o.MaxRetryDelay != nil {
			maxDelay = *o.MaxRetryDelay
		}
		p.Backoff = retry.DefaultStrategy(minDelay, maxDelay)
	}
	return p
}
