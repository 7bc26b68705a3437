package builtin

import (
	"context"

	"github.com/shaiso/Courier/internal/task"
)

// EchoTask создаёт задачу courier.echo: kwargs возвращаются как результат.
func EchoTask() task.Task {
	return task.NewKeyword(EchoTaskName, func(_ context.Context, kwargs map[string]any) (map[string]any, error) {
		if kwargs == nil {
			kwargs = make(map[string]any)
		}
		return kwargs, nil
	})
}
