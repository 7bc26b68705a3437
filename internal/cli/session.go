package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaiso/Courier/internal/app"
	"github.com/shaiso/Courier/internal/task"
)

// Session — ресурсы одной команды.
type Session struct {
	App      *app.App
	Registry *task.Registry

	// Close освобождает ресурсы (может быть nil).
	Close func()
}

// SessionFunc открывает Session.
type SessionFunc func(ctx context.Context) (*Session, error)

// withSession открывает сессию, выполняет fn и закрывает сессию.
func withSession(ctx context.Context, open SessionFunc, fn func(*Session) error) error {
	s, err := open(ctx)
	if err != nil {
		return err
	}
	if s.Close != nil {
		defer s.Close()
	}
	return fn(s)
}

// parseValue разбирает значение как JSON, иначе возвращает строку.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// parseArgs разбирает позиционные аргументы.
func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		out[i] = parseValue(s)
	}
	return out
}

// parseKwargs разбирает KEY=VALUE.
func parseKwargs(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid kwarg format %q, expected KEY=VALUE", kv)
		}
		out[parts[0]] = parseValue(parts[1])
	}
	return out, nil
}
