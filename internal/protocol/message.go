package protocol

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Ключи заголовков в метаданных брокера.
const (
	HeaderID         = "id"
	HeaderTask       = "task"
	HeaderRetries    = "retries"
	HeaderMaxRetries = "max_retries"
	HeaderTimeoutMs  = "timeout_ms"

	HeaderRetryOnTimeout  = "retry_on_timeout"
	HeaderMinRetryDelayMs = "min_retry_delay_ms"
	HeaderMaxRetryDelayMs = "max_retry_delay_ms"

	HeaderETA     = "eta"
	HeaderExpires = "expires"
	HeaderOrigin  = "origin"
	HeaderReplyTo = "reply_to"
)

// Message — broker-native форма конверта: заголовки + тело.
type Message struct {
	// ContentType — формат тела.
	ContentType string

	// Headers — заголовки конверта. nil, если брокер не поддерживает заголовки:
	// тогда тело содержит самодостаточный документ (см. Encode).
	Headers map[string]any

	// Body — закодированное тело.
	Body []byte
}

// ToMessage переводит конверт в broker-native форму.
func ToMessage(e *Envelope, codec Codec) (*Message, error) {
	if codec == nil {
		codec = JSON
	}

	body, err := codec.Marshal(&Body{Args: e.Args, Kwargs: e.Kwargs})
	if err != nil {
		return nil, invalid("body", err)
	}

	return &Message{
		ContentType: codec.ContentType(),
		Headers:     HeadersOf(e),
		Body:        body,
	}, nil
}

// HeadersOf возвращает заголовки конверта в виде таблицы.
// Времена сериализуются строками RFC 3339 с наносекундами.
func HeadersOf(e *Envelope) map[string]any {
	h := map[string]any{
		HeaderID:      e.ID,
		HeaderTask:    e.Task,
		HeaderRetries: int64(e.Headers.Retries),
	}
	if e.Headers.MaxRetries != nil {
		h[HeaderMaxRetries] = int64(*e.Headers.MaxRetries)
	}
	if e.Headers.Timeout > 0 {
		h[HeaderTimeoutMs] = e.Headers.Timeout.Milliseconds()
	}
	if e.Headers.RetryOnTimeout != nil {
		h[HeaderRetryOnTimeout] = *e.Headers.RetryOnTimeout
	}
	if e.Headers.MinRetryDelay != nil {
		h[HeaderMinRetryDelayMs] = e.Headers.MinRetryDelay.Milliseconds()
	}
	if e.Headers.MaxRetryDelay != nil {
		h[HeaderMaxRetryDelayMs] = e.Headers.MaxRetryDelay.Milliseconds()
	}
	if e.Headers.ETA != nil {
		h[HeaderETA] = e.Headers.ETA.UTC().Format(time.RFC3339Nano)
	}
	if e.Headers.Expires != nil {
		h[HeaderExpires] = e.Headers.Expires.UTC().Format(time.RFC3339Nano)
	}
	if e.Headers.Origin != "" {
		h[HeaderOrigin] = e.Headers.Origin
	}
	if e.Headers.ReplyTo != "" {
		h[HeaderReplyTo] = e.Headers.ReplyTo
	}
	return h
}

// FromMessage восстанавливает конверт из broker-native формы.
//
// Если заголовков нет, тело разбирается как самодостаточный документ.
func FromMessage(m *Message) (*Envelope, error) {
	if _, ok := m.Headers[HeaderTask]; !ok {
		return Decode(m.Body)
	}

	id, err := stringHeader(m.Headers, HeaderID, true)
	if err != nil {
		return nil, err
	}
	name, err := stringHeader(m.Headers, HeaderTask, true)
	if err != nil {
		return nil, err
	}
	retries, ok, err := intHeader(m.Headers, HeaderRetries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing(HeaderRetries)
	}
	if retries < 0 {
		return nil, &Error{Field: HeaderRetries, Reason: "negative"}
	}

	env := &Envelope{
		ID:   id,
		Task: name,
		Headers: Headers{
			Retries: int(retries),
		},
	}

	if v, ok, err := intHeader(m.Headers, HeaderMaxRetries); err != nil {
		return nil, err
	} else if ok {
		n := int(v)
		env.Headers.MaxRetries = &n
	}
	if v, ok, err := intHeader(m.Headers, HeaderTimeoutMs); err != nil {
		return nil, err
	} else if ok {
		if v < 0 {
			return nil, &Error{Field: HeaderTimeoutMs, Reason: "negative"}
		}
		env.Headers.Timeout = time.Duration(v) * time.Millisecond
	}
	if v, ok, err := boolHeader(m.Headers, HeaderRetryOnTimeout); err != nil {
		return nil, err
	} else if ok {
		env.Headers.RetryOnTimeout = &v
	}
	if env.Headers.MinRetryDelay, err = delayHeader(m.Headers, HeaderMinRetryDelayMs); err != nil {
		return nil, err
	}
	if env.Headers.MaxRetryDelay, err = delayHeader(m.Headers, HeaderMaxRetryDelayMs); err != nil {
		return nil, err
	}
	if t, ok, err := timeHeader(m.Headers, HeaderETA); err != nil {
		return nil, err
	} else if ok {
		env.SetETA(t)
	}
	if t, ok, err := timeHeader(m.Headers, HeaderExpires); err != nil {
		return nil, err
	} else if ok {
		env.SetExpires(t)
	}
	if env.Headers.Origin, err = stringHeader(m.Headers, HeaderOrigin, false); err != nil {
		return nil, err
	}
	if env.Headers.ReplyTo, err = stringHeader(m.Headers, HeaderReplyTo, false); err != nil {
		return nil, err
	}

	codec, err := CodecFor(m.ContentType)
	if err != nil {
		return nil, err
	}
	var body Body
	if err := codec.Unmarshal(m.Body, &body); err != nil {
		return nil, invalid("body", err)
	}
	env.Args = body.Args
	env.Kwargs = body.Kwargs

	return env, nil
}

func stringHeader(h map[string]any, key string, required bool) (string, error) {
	v, ok := h[key]
	if !ok || v == nil {
		if required {
			return "", missing(key)
		}
		return "", nil
	}

	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return "", &Error{Field: key, Reason: fmt.Sprintf("unexpected type %T", v)}
	}
	if required && s == "" {
		return "", missing(key)
	}
	return s, nil
}

// intHeader разбирает целочисленный заголовок.
// Брокеры возвращают целые числа разной разрядности, поэтому принимаем все.
func intHeader(h map[string]any, key string) (int64, bool, error) {
	v, ok := h[key]
	if !ok || v == nil {
		return 0, false, nil
	}

	switch x := v.(type) {
	case int:
		return int64(x), true, nil
	case int8:
		return int64(x), true, nil
	case int16:
		return int64(x), true, nil
	case int32:
		return int64(x), true, nil
	case int64:
		return x, true, nil
	case uint8:
		return int64(x), true, nil
	case uint16:
		return int64(x), true, nil
	case uint32:
		return int64(x), true, nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, false, &Error{Field: key, Reason: "overflow"}
		}
		return int64(x), true, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, false, &Error{Field: key, Reason: "not an integer"}
		}
		return int64(x), true, nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, false, invalid(key, err)
		}
		return n, true, nil
	default:
		return 0, false, &Error{Field: key, Reason: fmt.Sprintf("unexpected type %T", v)}
	}
}

func boolHeader(h map[string]any, key string) (bool, bool, error) {
	v, ok := h[key]
	if !ok || v == nil {
		return false, false, nil
	}

	switch x := v.(type) {
	case bool:
		return x, true, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, false, invalid(key, err)
		}
		return b, true, nil
	default:
		return false, false, &Error{Field: key, Reason: fmt.Sprintf("unexpected type %T", v)}
	}
}

// delayHeader разбирает неотрицательную задержку в миллисекундах.
func delayHeader(h map[string]any, key string) (*time.Duration, error) {
	v, ok, err := intHeader(h, key)
	if err != nil || !ok {
		return nil, err
	}
	if v < 0 {
		return nil, &Error{Field: key, Reason: "negative"}
	}
	d := time.Duration(v) * time.Millisecond
	return &d, nil
}

func timeHeader(h map[string]any, key string) (time.Time, bool, error) {
	v, ok := h[key]
	if !ok || v == nil {
		return time.Time{}, false, nil
	}

	switch x := v.(type) {
	case time.Time:
		return x, true, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, false, invalid(key, err)
		}
		return t, true, nil
	default:
		return time.Time{}, false, &Error{Field: key, Reason: fmt.Sprintf("unexpected type %T", v)}
	}
}
