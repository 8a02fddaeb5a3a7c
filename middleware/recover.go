package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/conveyor/job"
)

// Recover returns middleware that recovers from panics in the consumer.
// Panics are converted to errors (and therefore to a failed transition) and
// logged with a stack trace, so a panicking consumer never stalls the queue.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("consumer panicked",
					slog.String("queue", j.Queue),
					slog.Int64("job_id", j.ID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in job %d: %v", j.ID, r)
			}
		}()
		return next(ctx)
	}
}
