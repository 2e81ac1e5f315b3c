// Package middleware provides composable middleware around command
// handling. Middleware wraps the orchestrator's handle call and can
// short-circuit, decorate the context, or observe the outcome.
package middleware

import (
	"context"

	"github.com/journeyhq/journey/command"
)

// Handler is the terminal function that handles a command.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the command being handled, and the next handler to
// call. Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, cmd *command.Command, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, cmd *command.Command, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, cmd, prev)
			}
		}
		return h(ctx)
	}
}
