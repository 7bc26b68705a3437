package builtin

import (
	"context"
	"time"

	"github.com/shaiso/Courier/internal/task"
)

// SleepArgs — аргументы courier.sleep.
type SleepArgs struct {
	// DurationSec — длительность в секундах (default: 1).
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// SleepResult — результат courier.sleep.
type SleepResult struct {
	DelayedSec float64 `json:"delayed_sec"`
}

// SleepTask создаёт задачу courier.sleep. Поддерживает отмену через context.
func SleepTask() task.Task {
	return task.NewKeyword(SleepTaskName, sleep)
}

func sleep(ctx context.Context, args SleepArgs) (SleepResult, error) {
	durationSec := args.DurationSec
	if durationSec <= 0 {
		durationSec = 1
	}

	timer := time.NewTimer(time.Duration(durationSec * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return SleepResult{DelayedSec: durationSec}, nil
	case <-ctx.Done():
		return SleepResult{}, ctx.Err()
	}
}
