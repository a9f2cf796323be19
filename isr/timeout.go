package isr

import (
	"context"
	"time"

	"github.com/saiset-co/sai-isr/types"
)

// Execute races op against timeout. The operation is not cancelled when the
// deadline fires; it may complete later and its side effects may still land.
// The result channel is buffered so a late completion never blocks the
// abandoned goroutine.
func Execute[T any](ctx context.Context, timeout time.Duration, failureMessage string, op func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)

	go func() {
		value, err := op(ctx)
		done <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T

	select {
	case result := <-done:
		if result.err != nil {
			return zero, result.err
		}
		return result.value, nil
	case <-timer.C:
		return zero, types.Errorf(types.ErrTimeout, "%s after %s", failureMessage, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
