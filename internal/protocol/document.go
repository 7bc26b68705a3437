package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// document — самодостаточная форма конверта.
// Неизвестные поля игнорируются (forward compatibility).
type document struct {
	ID         string                     `json:"id"`
	Task       string                     `json:"task"`
	Args       []json.RawMessage          `json:"args"`
	Kwargs     map[string]json.RawMessage `json:"kwargs"`
	Retries    *int                       `json:"retries"`
	MaxRetries *int                       `json:"max_retries,omitempty"`
	TimeoutMs  int64                      `json:"timeout_ms,omitempty"`

	RetryOnTimeout  *bool  `json:"retry_on_timeout,omitempty"`
	MinRetryDelayMs *int64 `json:"min_retry_delay_ms,omitempty"`
	MaxRetryDelayMs *int64 `json:"max_retry_delay_ms,omitempty"`

	ETA     *time.Time `json:"eta,omitempty"`
	Expires *time.Time `json:"expires,omitempty"`
	Origin  string     `json:"origin,omitempty"`
	ReplyTo string     `json:"reply_to,omitempty"`
}

// Encode сериализует конверт целиком (заголовки + аргументы) в JSON.
//
// Используется брокерами без поддержки заголовков и для хранения конвертов.
func Encode(e *Envelope) ([]byte, error) {
	retries := e.Headers.Retries
	doc := document{
		ID:         e.ID,
		Task:       e.Task,
		Args:       e.Args,
		Kwargs:     e.Kwargs,
		Retries:    &retries,
		MaxRetries: e.Headers.MaxRetries,
		TimeoutMs:  e.Headers.Timeout.Milliseconds(),
		ETA:        e.Headers.ETA,
		Expires:    e.Headers.Expires,
		Origin:     e.Headers.Origin,
		ReplyTo:    e.Headers.ReplyTo,

		RetryOnTimeout:  e.Headers.RetryOnTimeout,
		MinRetryDelayMs: millis(e.Headers.MinRetryDelay),
		MaxRetryDelayMs: millis(e.Headers.MaxRetryDelay),
	}
	if doc.Args == nil {
		doc.Args = []json.RawMessage{}
	}
	if doc.Kwargs == nil {
		doc.Kwargs = map[string]json.RawMessage{}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, invalid("body", err)
	}
	return data, nil
}

// Decode разбирает самодостаточную форму конверта.
// Возвращает *Error с конкретным полем при некорректных данных.
func Decode(data []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, missing("body")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalid("body", err)
	}

	if doc.ID == "" {
		return nil, missing("id")
	}
	if doc.Task == "" {
		return nil, missing("task")
	}
	if doc.Retries == nil {
		return nil, missing("retries")
	}
	if *doc.Retries < 0 {
		return nil, &Error{Field: "retries", Reason: "negative"}
	}
	if doc.TimeoutMs < 0 {
		return nil, &Error{Field: "timeout_ms", Reason: "negative"}
	}

	env := &Envelope{
		ID:     doc.ID,
		Task:   doc.Task,
		Args:   doc.Args,
		Kwargs: doc.Kwargs,
		Headers: Headers{
			Retries:    *doc.Retries,
			MaxRetries: doc.MaxRetries,
			Timeout:    time.Duration(doc.TimeoutMs) * time.Millisecond,
			Origin:     doc.Origin,
			ReplyTo:    doc.ReplyTo,
		},
	}
	var err error
	if env.Headers.MinRetryDelay, err = fromMillis(doc.MinRetryDelayMs, HeaderMinRetryDelayMs); err != nil {
		return nil, err
	}
	if env.Headers.MaxRetryDelay, err = fromMillis(doc.MaxRetryDelayMs, HeaderMaxRetryDelayMs); err != nil {
		return nil, err
	}
	env.Headers.RetryOnTimeout = doc.RetryOnTimeout

	if doc.ETA != nil {
		env.SetETA(*doc.ETA)
	}
	if doc.Expires != nil {
		env.SetExpires(*doc.Expires)
	}
	if env.Args == nil {
		env.Args = []json.RawMessage{}
	}
	if env.Kwargs == nil {
		env.Kwargs = map[string]json.RawMessage{}
	}

	return env, nil
}

func millis(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}

func fromMillis(ms *int64, field string) (*time.Duration, error) {
	if ms == nil {
		return nil, nil
	}
	if *ms < 0 {
		return nil, &Error{Field: field, Reason: "negative"}
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d, nil
}
