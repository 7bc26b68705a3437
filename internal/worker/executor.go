package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
)

// errAbandoned — выполнение брошено при остановке.
var errAbandoned = errors.New("abandoned")

type callResult struct {
	value any
	err   error
}

// execute выполняет вызов с таймаутом.
//
// По истечении таймаута или при Abandon горутина вызова не дожидается:
// результат будет отброшен.
func (w *Worker) execute(inv *invocation, call task.Call) (any, error) {
	base := context.WithoutCancel(w.runCtx)
	if w.cancelOnShutdown {
		base = w.runCtx
	}
	base = telemetry.WithLogger(base, inv.logger)

	ctx, cancel := context.WithCancel(base)
	defer cancel()

	var deadline <-chan time.Time
	if timeout := inv.opts.TimeoutValue(); timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C

		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		defer cancelTimeout()
	}

	name := inv.task.Name()
	telemetry.TasksInFlight.Inc()
	defer telemetry.TasksInFlight.Dec()

	started := time.Now()
	defer func() {
		telemetry.TaskDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				inv.logger.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
				done <- callResult{err: fmt.Errorf("%w: %v", ErrTaskPanicked, r)}
			}
		}()

		v, err := call(ctx)
		done <- callResult{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && w.cancelOnShutdown && w.shuttingDown() && errors.Is(r.err, context.Canceled) {
			return nil, errAbandoned
		}
		return r.value, r.err

	case <-deadline:
		return nil, fmt.Errorf("%w: task %s exceeded %s", ErrExecutionTimeout, name, inv.opts.TimeoutValue())

	case <-w.abandon:
		return nil, errAbandoned
	}
}
