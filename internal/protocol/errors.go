package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocol — базовая ошибка протокола. Все *Error совпадают с ней через errors.Is.
var ErrProtocol = errors.New("protocol error")

// Error — некорректное сообщение: битое тело или отсутствующий обязательный заголовок.
//
// Field указывает конкретное поле. Значения по умолчанию для обязательных
// полей никогда не подставляются — иначе сломается подсчёт попыток.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: field %q: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: field %q: %s", e.Field, e.Reason)
}

// Is позволяет сравнивать с ErrProtocol.
func (e *Error) Is(target error) bool {
	return target == ErrProtocol
}

func (e *Error) Unwrap() error {
	return e.Err
}

func missing(field string) *Error {
	return &Error{Field: field, Reason: "missing"}
}

func invalid(field string, err error) *Error {
	return &Error{Field: field, Reason: "invalid", Err: err}
}
