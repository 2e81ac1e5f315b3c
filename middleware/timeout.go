package middleware

import (
	"context"
	"time"

	"github.com/journeyhq/journey/command"
)

// Timeout returns middleware that bounds a single handle call. A zero
// duration disables the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *command.Command, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
