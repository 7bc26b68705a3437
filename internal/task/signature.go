package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Signature — вызов задачи со стороны отправителя.
//
// Для отправки достаточно имени и аргументов: исполнитель задачи
// в процессе-отправителе не нужен.
type Signature struct {
	// Name — имя задачи.
	Name string

	// Args, Kwargs — аргументы вызова.
	Args   []json.RawMessage
	Kwargs map[string]json.RawMessage

	// Options — переопределения политики на месте вызова: queue, timeout,
	// max_retries, retry_on_timeout, границы задержки. Backoff и RetryOn
	// не сериализуются, и App отклоняет их.
	Options Options

	// ID — идентификатор вызова; пустой — будет сгенерирован.
	ID string

	// Countdown — отложить выполнение на указанное время.
	Countdown time.Duration

	// ETA — не выполнять раньше этого момента (приоритетнее Countdown).
	ETA *time.Time

	// ExpiresIn / Expires — срок годности вызова (Expires приоритетнее).
	ExpiresIn time.Duration
	Expires   *time.Time

	// Origin, ReplyTo — попадают в заголовки конверта.
	Origin  string
	ReplyTo string
}

// NewSignature строит вызов из произвольных значений, сериализуемых в JSON.
func NewSignature(name string, args []any, kwargs map[string]any, opts ...Option) (*Signature, error) {
	sig := &Signature{
		Name:    name,
		Args:    make([]json.RawMessage, 0, len(args)),
		Kwargs:  make(map[string]json.RawMessage, len(kwargs)),
		Options: NewOptions(opts...),
	}

	for i, v := range args {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: args[%d]: %v", ErrInvalidArgs, i, err)
		}
		sig.Args = append(sig.Args, raw)
	}
	for k, v := range kwargs {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: kwargs[%s]: %v", ErrInvalidArgs, k, err)
		}
		sig.Kwargs[k] = raw
	}

	return sig, nil
}
