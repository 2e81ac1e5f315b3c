package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/journeyhq/journey/command"
)

// Logging returns middleware that logs command handling start and
// completion. Validation failures log at WARN since they are expected
// caller errors, not engine faults.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, cmd *command.Command, next Handler) error {
		logger.Debug("handling command",
			slog.String("instance_id", cmd.InstanceID.String()),
			slog.String("action", string(cmd.Action)),
			slog.String("actor", string(cmd.Actor)),
			slog.String("request_id", cmd.RequestID),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("command rejected",
				slog.String("instance_id", cmd.InstanceID.String()),
				slog.String("action", string(cmd.Action)),
				slog.String("request_id", cmd.RequestID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("command handled",
				slog.String("instance_id", cmd.InstanceID.String()),
				slog.String("action", string(cmd.Action)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
