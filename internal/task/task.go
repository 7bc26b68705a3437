package task

import (
	"context"
	"encoding/json"
	"fmt"
)

// Call — вызов задачи с уже декодированными аргументами.
type Call func(ctx context.Context) (any, error)

// Task — задача в реестре.
//
// Реестр и воркер работают только с этим интерфейсом и не знают
// конкретных типов аргументов.
type Task interface {
	// Name возвращает уникальное имя задачи.
	Name() string

	// Options возвращает политику задачи по умолчанию.
	Options() Options

	// Bind декодирует аргументы и возвращает готовый к выполнению вызов.
	// Ошибка оборачивает ErrInvalidArgs.
	Bind(args []json.RawMessage, kwargs map[string]json.RawMessage) (Call, error)
}

// Handler — типизированное тело задачи.
type Handler[A, R any] func(ctx context.Context, args A) (R, error)

// Definition — типизированная задача: тело + кодек аргументов + политика.
type Definition[A, R any] struct {
	name    string
	handler Handler[A, R]
	codec   ArgsCodec[A]
	opts    Options
}

// New объявляет задачу с позиционными аргументами:
// args конверта декодируются как JSON-массив в A (например, [2]int или struct с UnmarshalJSON).
func New[A, R any](name string, handler func(ctx context.Context, args A) (R, error), opts ...Option) *Definition[A, R] {
	return NewWithCodec[A, R](name, handler, Positional[A]{}, opts...)
}

// NewKeyword объявляет задачу с именованными аргументами:
// kwargs конверта декодируются как JSON-объект в A.
func NewKeyword[A, R any](name string, handler func(ctx context.Context, args A) (R, error), opts ...Option) *Definition[A, R] {
	return NewWithCodec[A, R](name, handler, Keyword[A]{}, opts...)
}

// NewWithCodec объявляет задачу с произвольным кодеком аргументов.
func NewWithCodec[A, R any](name string, handler func(ctx context.Context, args A) (R, error), codec ArgsCodec[A], opts ...Option) *Definition[A, R] {
	return &Definition[A, R]{
		name:    name,
		handler: handler,
		codec:   codec,
		opts:    NewOptions(opts...),
	}
}

// Name возвращает имя задачи.
func (d *Definition[A, R]) Name() string { return d.name }

// Options возвращает политику задачи.
func (d *Definition[A, R]) Options() Options { return d.opts }

// Bind декодирует аргументы через кодек задачи.
func (d *Definition[A, R]) Bind(args []json.RawMessage, kwargs map[string]json.RawMessage) (Call, error) {
	a, err := d.codec.Decode(args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("%w: task %q: %v", ErrInvalidArgs, d.name, err)
	}

	return func(ctx context.Context) (any, error) {
		r, err := d.handler(ctx, a)
		if err != nil {
			return nil, err
		}
		return r, nil
	}, nil
}

// Signature строит вызов задачи с типизированными аргументами.
func (d *Definition[A, R]) Signature(a A, opts ...Option) (*Signature, error) {
	args, kwargs, err := d.codec.Encode(a)
	if err != nil {
		return nil, fmt.Errorf("%w: task %q: %v", ErrInvalidArgs, d.name, err)
	}

	return &Signature{
		Name:    d.name,
		Args:    args,
		Kwargs:  kwargs,
		Options: NewOptions(opts...),
	}, nil
}

// ArgsCodec переводит аргументы конверта в тип A и обратно.
type ArgsCodec[A any] interface {
	Decode(args []json.RawMessage, kwargs map[string]json.RawMessage) (A, error)
	Encode(a A) ([]json.RawMessage, map[string]json.RawMessage, error)
}

// Positional — кодек позиционных аргументов: A ↔ JSON-массив args.
type Positional[A any] struct{}

// Decode собирает args в JSON-массив и декодирует в A.
func (Positional[A]) Decode(args []json.RawMessage, _ map[string]json.RawMessage) (A, error) {
	var a A
	if args == nil {
		args = []json.RawMessage{}
	}

	data, err := json.Marshal(args)
	if err != nil {
		return a, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("unmarshal args: %w", err)
	}
	return a, nil
}

// Encode кодирует A как JSON-массив и разбивает его на элементы.
func (Positional[A]) Encode(a A) ([]json.RawMessage, map[string]json.RawMessage, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal args: %w", err)
	}

	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, nil, fmt.Errorf("positional args must encode as a JSON array: %w", err)
	}
	if args == nil {
		args = []json.RawMessage{}
	}
	return args, map[string]json.RawMessage{}, nil
}

// Keyword — кодек именованных аргументов: A ↔ JSON-объект kwargs.
type Keyword[A any] struct{}

// Decode собирает kwargs в JSON-объект и декодирует в A.
func (Keyword[A]) Decode(_ []json.RawMessage, kwargs map[string]json.RawMessage) (A, error) {
	var a A
	if kwargs == nil {
		kwargs = map[string]json.RawMessage{}
	}

	data, err := json.Marshal(kwargs)
	if err != nil {
		return a, fmt.Errorf("marshal kwargs: %w", err)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("unmarshal kwargs: %w", err)
	}
	return a, nil
}

// Encode кодирует A как JSON-объект и разбивает его на поля.
func (Keyword[A]) Encode(a A) ([]json.RawMessage, map[string]json.RawMessage, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal kwargs: %w", err)
	}

	var kwargs map[string]json.RawMessage
	if err := json.Unmarshal(data, &kwargs); err != nil {
		return nil, nil, fmt.Errorf("keyword args must encode as a JSON object: %w", err)
	}
	if kwargs == nil {
		kwargs = map[string]json.RawMessage{}
	}
	return []json.RawMessage{}, kwargs, nil
}
