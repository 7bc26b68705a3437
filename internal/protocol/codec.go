package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// Content types тела сообщения.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/x-msgpack"
)

// Body — тело сообщения: только аргументы вызова.
type Body struct {
	Args   []json.RawMessage          `json:"args"`
	Kwargs map[string]json.RawMessage `json:"kwargs"`
}

// Codec кодирует тело сообщения.
type Codec interface {
	ContentType() string
	Marshal(b *Body) ([]byte, error)
	Unmarshal(data []byte, b *Body) error
}

// Кодеки тела.
var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// CodecFor возвращает кодек по content type.
// Пустой content type трактуется как JSON.
func CodecFor(contentType string) (Codec, error) {
	switch contentType {
	case "", ContentTypeJSON:
		return JSON, nil
	case ContentTypeMsgpack:
		return Msgpack, nil
	default:
		return nil, &Error{Field: "content_type", Reason: fmt.Sprintf("unsupported %q", contentType)}
	}
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return ContentTypeJSON }

func (jsonCodec) Marshal(b *Body) ([]byte, error) {
	return json.Marshal(normalizeBody(b))
}

func (jsonCodec) Unmarshal(data []byte, b *Body) error {
	if err := json.Unmarshal(data, b); err != nil {
		return err
	}
	*b = *normalizeBody(b)
	return nil
}

// msgpackCodec переводит json.RawMessage в обобщённые значения и обратно.
// Целые числа сохраняются как int64, дробные — как float64. Числа, которые
// нельзя восстановить из них в исходном виде, передаются текстом в ext-типе.
type msgpackCodec struct{}

type msgpackBody struct {
	Args   []any          `msgpack:"args"`
	Kwargs map[string]any `msgpack:"kwargs"`
}

func (msgpackCodec) ContentType() string { return ContentTypeMsgpack }

func (msgpackCodec) Marshal(b *Body) ([]byte, error) {
	b = normalizeBody(b)
	mb := msgpackBody{
		Args:   make([]any, 0, len(b.Args)),
		Kwargs: make(map[string]any, len(b.Kwargs)),
	}
	for i, raw := range b.Args {
		v, err := fromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		mb.Args = append(mb.Args, v)
	}
	for k, raw := range b.Kwargs {
		v, err := fromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("kwargs[%s]: %w", k, err)
		}
		mb.Kwargs[k] = v
	}
	return msgpack.Marshal(&mb)
}

func (msgpackCodec) Unmarshal(data []byte, b *Body) error {
	var mb msgpackBody
	if err := msgpack.Unmarshal(data, &mb); err != nil {
		return err
	}

	b.Args = make([]json.RawMessage, 0, len(mb.Args))
	for i, v := range mb.Args {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("args[%d]: %w", i, err)
		}
		b.Args = append(b.Args, raw)
	}

	b.Kwargs = make(map[string]json.RawMessage, len(mb.Kwargs))
	for k, v := range mb.Kwargs {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("kwargs[%s]: %w", k, err)
		}
		b.Kwargs[k] = raw
	}
	return nil
}

func normalizeBody(b *Body) *Body {
	out := &Body{Args: b.Args, Kwargs: b.Kwargs}
	if out.Args == nil {
		out.Args = []json.RawMessage{}
	}
	if out.Kwargs == nil {
		out.Kwargs = map[string]json.RawMessage{}
	}
	return out
}

// fromJSON разбирает JSON-значение, сохраняя целые числа как int64.
func fromJSON(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return convertNumbers(v), nil
}

func convertNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		text := x.String()
		if i, err := x.Int64(); err == nil && strconv.FormatInt(i, 10) == text {
			return i
		}
		if f, err := x.Float64(); err == nil {
			if b, err := json.Marshal(f); err == nil && string(b) == text {
				return f
			}
		}
		return &exactNumber{text: text}
	case []any:
		for i := range x {
			x[i] = convertNumbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = convertNumbers(x[k])
		}
		return x
	default:
		return v
	}
}

// exactNumberExt — ext-тип msgpack для чисел в исходной JSON-записи.
const exactNumberExt int8 = 1

func init() {
	msgpack.RegisterExt(exactNumberExt, (*exactNumber)(nil))
}

// exactNumber — JSON-число, которое теряет точность или запись в int64/float64.
type exactNumber struct {
	text string
}

func (n *exactNumber) MarshalMsgpack() ([]byte, error) {
	return []byte(n.text), nil
}

func (n *exactNumber) UnmarshalMsgpack(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("invalid number %q: %w", data, err)
	}
	n.text = string(data)
	return nil
}

func (n *exactNumber) MarshalJSON() ([]byte, error) {
	return []byte(n.text), nil
}
