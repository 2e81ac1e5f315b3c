package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/journeyhq/journey/command"
)

// Recover returns middleware that converts panics in the handling chain
// into errors, logged with a stack trace. Handler panics are already
// absorbed by the step executor; this guards the orchestration code
// itself.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, cmd *command.Command, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("command handling panicked",
					slog.String("instance_id", cmd.InstanceID.String()),
					slog.String("action", string(cmd.Action)),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic handling %s on %s: %v", cmd.Action, cmd.InstanceID, r)
			}
		}()
		return next(ctx)
	}
}
