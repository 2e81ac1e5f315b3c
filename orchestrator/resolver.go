package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/rules"
)

// Resolver maps (flowVersion, currentState, action) to a transition rule
// and checks its guard conditions against the instance's context data.
// Resolution is pure: the same instance snapshot and action always
// resolve identically.
type Resolver struct {
	table  *flow.Table
	engine *rules.Engine
	logger *slog.Logger
}

// NewResolver creates a resolver over the given table.
func NewResolver(table *flow.Table, engine *rules.Engine, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{table: table, engine: engine, logger: logger}
}

// Resolve returns the rule for the instance's current position and the
// requested action. No rule yields ErrInvalidTransition; an unmet guard
// condition yields a PreconditionError naming it.
func (r *Resolver) Resolve(inst *instance.Instance, action flow.Action) (flow.Rule, error) {
	rule, ok := r.table.Lookup(inst.FlowVersion, inst.CurrentState, action)
	if !ok {
		return flow.Rule{}, fmt.Errorf("no transition for (%s, %s, %s): %w",
			inst.FlowVersion, inst.CurrentState, action, journey.ErrInvalidTransition)
	}

	if len(rule.Conditions) > 0 {
		if unmet, ok := r.engine.EvaluateAll(rule.Conditions, inst.Context); !ok {
			r.logger.Debug("guard condition unmet",
				slog.String("instance_id", inst.ID.String()),
				slog.String("action", string(action)),
				slog.String("condition", unmet))
			return flow.Rule{}, &journey.PreconditionError{Condition: unmet}
		}
	}

	return rule, nil
}
