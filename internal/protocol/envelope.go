package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope — сериализуемый вызов задачи.
//
// ID неизменяем после создания. Retries только растёт при повторных
// публикациях одного и того же логического вызова.
type Envelope struct {
	// ID — идентификатор вызова (UUID).
	ID string

	// Task — имя задачи в реестре.
	Task string

	// Args — позиционные аргументы.
	Args []json.RawMessage

	// Kwargs — именованные аргументы.
	Kwargs map[string]json.RawMessage

	// Headers — служебные заголовки.
	Headers Headers
}

// Headers — заголовки конверта.
type Headers struct {
	// Retries — количество уже выполненных повторов (0 для первой попытки).
	Retries int

	// MaxRetries — переопределение лимита повторов для этого вызова.
	// nil — используется политика задачи.
	MaxRetries *int

	// Timeout — переопределение таймаута выполнения. 0 — не задан.
	Timeout time.Duration

	// RetryOnTimeout — переопределение повтора при таймауте. nil — не задано.
	RetryOnTimeout *bool

	// MinRetryDelay / MaxRetryDelay — переопределение границ задержки.
	MinRetryDelay *time.Duration
	MaxRetryDelay *time.Duration

	// ETA — не выполнять раньше этого момента.
	ETA *time.Time

	// Expires — после этого момента вызов считается просроченным.
	Expires *time.Time

	// Origin — идентификатор отправителя / correlation id.
	Origin string

	// ReplyTo — куда отправлять ответ (если нужно).
	ReplyTo string
}

// New создаёт конверт с новым UUID и retries = 0.
func New(task string, args []json.RawMessage, kwargs map[string]json.RawMessage) *Envelope {
	if args == nil {
		args = []json.RawMessage{}
	}
	if kwargs == nil {
		kwargs = map[string]json.RawMessage{}
	}
	return &Envelope{
		ID:     uuid.NewString(),
		Task:   task,
		Args:   args,
		Kwargs: kwargs,
	}
}

// Clone возвращает копию конверта. Значения аргументов разделяются:
// json.RawMessage не изменяется после создания.
func (e *Envelope) Clone() *Envelope {
	c := *e

	c.Args = make([]json.RawMessage, len(e.Args))
	copy(c.Args, e.Args)

	c.Kwargs = make(map[string]json.RawMessage, len(e.Kwargs))
	for k, v := range e.Kwargs {
		c.Kwargs[k] = v
	}

	if e.Headers.MaxRetries != nil {
		v := *e.Headers.MaxRetries
		c.Headers.MaxRetries = &v
	}
	if e.Headers.RetryOnTimeout != nil {
		v := *e.Headers.RetryOnTimeout
		c.Headers.RetryOnTimeout = &v
	}
	if e.Headers.MinRetryDelay != nil {
		v := *e.Headers.MinRetryDelay
		c.Headers.MinRetryDelay = &v
	}
	if e.Headers.MaxRetryDelay != nil {
		v := *e.Headers.MaxRetryDelay
		c.Headers.MaxRetryDelay = &v
	}
	if e.Headers.ETA != nil {
		v := *e.Headers.ETA
		c.Headers.ETA = &v
	}
	if e.Headers.Expires != nil {
		v := *e.Headers.Expires
		c.Headers.Expires = &v
	}
	return &c
}

// NextAttempt возвращает копию для повторной публикации:
// тот же ID, retries + 1, новый ETA.
func (e *Envelope) NextAttempt(eta time.Time) *Envelope {
	next := e.Clone()
	next.Headers.Retries = e.Headers.Retries + 1
	eta = eta.UTC()
	next.Headers.ETA = &eta
	return next
}

// SetETA устанавливает ETA (в UTC).
func (e *Envelope) SetETA(t time.Time) {
	t = t.UTC()
	e.Headers.ETA = &t
}

// SetExpires устанавливает срок годности (в UTC).
func (e *Envelope) SetExpires(t time.Time) {
	t = t.UTC()
	e.Headers.Expires = &t
}

// Countdown возвращает оставшееся время до ETA.
// ETA в прошлом или не задан — 0, выполнять сразу.
func (e *Envelope) Countdown(now time.Time) time.Duration {
	if e.Headers.ETA == nil {
		return 0
	}
	d := e.Headers.ETA.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsExpired проверяет, истёк ли срок годности вызова.
func (e *Envelope) IsExpired(now time.Time) bool {
	return e.Headers.Expires != nil && now.After(*e.Headers.Expires)
}
