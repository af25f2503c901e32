// Package executor runs a unit of work under a hard wall-clock deadline
// with best-effort, cooperative cancellation. A timed-out task is
// abandoned, never forcibly terminated; its eventual result is discarded.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/request"
)

// Finalizer is a zero-arg side-effecting callback run after the task
// outcome is decided, regardless of success, timeout, or error.
type Finalizer func()

type outcome[T any] struct {
	value T
	err   error
}

// Run executes task with a deadline-derived context and waits up to
// timeout for it to finish. It returns (result, true) on success and
// (zero, false) on timeout or error. Classified request failures are
// logged at Info; anything unexpected at Error. Run never panics out and
// never propagates an error to the caller; finalizers run exactly once.
func Run[T any](
	ctx context.Context,
	logger *zap.Logger,
	name string,
	timeout time.Duration,
	task func(ctx context.Context) (T, error),
	finalizers ...Finalizer,
) (T, bool) {
	var zero T
	if logger == nil {
		logger = zap.NewNop()
	}

	defer func() {
		for _, fn := range finalizers {
			fn()
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned task can still deliver and exit.
	results := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- outcome[T]{err: fmt.Errorf("task panic: %v", r)}
			}
		}()
		value, err := task(taskCtx)
		results <- outcome[T]{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		logger.Info("aborting due to timeout",
			zap.String("task", name),
			zap.Duration("timeout", timeout),
		)
		return zero, false

	case <-ctx.Done():
		logger.Info("aborting due to canceled run", zap.String("task", name))
		return zero, false

	case res := <-results:
		if res.err == nil {
			return res.value, true
		}
		if _, classified := request.KindOf(res.err); classified {
			logger.Info("aborting due to unavailable request",
				zap.String("task", name),
				zap.Error(res.err),
			)
		} else {
			logger.Error("unexpected task failure",
				zap.String("task", name),
				zap.Error(res.err),
			)
		}
		return zero, false
	}
}
