// Package async provides safe goroutine helpers. Use SafeGo instead of a
// bare `go func()` for fire-and-forget work so a panic or a forgotten
// timeout cannot take the process down or leak goroutines.
package async

import (
	"context"
	"time"

	"github.com/xceleratortech/communitiesx/pkg/observability"
)

// SafeGo executes fn in a goroutine with panic recovery, a timeout, and
// error logging. The context passed to fn carries the parent's values
// but not its cancellation, so request-scoped work (notification
// dispatch after a post) survives the request ending.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithField("task", taskName).WithError(err).Error("background task failed")
		}
	}()
}

// SafeGoNoError is SafeGo for functions that do not return an error.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, logger, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
