package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/guildhall-io/guildhall/pkg/observability"
)

// SafeGo runs fn in a goroutine with panic recovery and a bounded
// timeout. The context is detached from the parent's cancellation so
// background work survives the originating request finishing, but
// inherits nothing else.
//
//	async.SafeGo(logger, 5*time.Second, "audit entry", func(ctx context.Context) error {
//	    return auditLog.Log(ctx, event)
//	})
func SafeGo(logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// SafeGoNoError is SafeGo for functions without an error return.
func SafeGoNoError(logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(logger, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
