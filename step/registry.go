package step

import (
	"context"
	"fmt"
	"sync"

	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/instance"
)

// Execution is the input handed to a handler: the locked instance, the
// triggering command, and the resolved rule.
type Execution struct {
	Instance *instance.Instance
	Command  *command.Command
	Rule     flow.Rule
}

// Handler performs the business work for commands fired out of one
// state. Return nil for success, a classified *Error to steer retry and
// escalation, or any other error to fail as SYSTEM.
type Handler func(ctx context.Context, exec *Execution) error

// Noop is a handler that always succeeds. Wire it to states whose
// transitions carry no side effects.
func Noop(context.Context, *Execution) error { return nil }

// Registry maps states to their forward handlers and, optionally, to
// compensating handlers run in reverse order when a later step fails
// terminally.
//
// Registration happens at startup before Validate; afterwards the
// registry is read-only and safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	handlers      map[flow.State]Handler
	compensations map[flow.State]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:      make(map[flow.State]Handler),
		compensations: make(map[flow.State]Handler),
	}
}

// Register binds the forward handler for a state. Re-registration
// replaces the previous binding.
func (r *Registry) Register(state flow.State, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[state] = h
}

// RegisterCompensation binds the compensating handler run when a step
// after state fails terminally and the journey unwinds.
func (r *Registry) RegisterCompensation(state flow.State, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensations[state] = h
}

// Handler returns the forward handler for state.
func (r *Registry) Handler(state flow.State) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[state]
	return h, ok
}

// Compensation returns the compensating handler for state, if any.
func (r *Registry) Compensation(state flow.State) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.compensations[state]
	return h, ok
}

// Validate checks that every state that sources a transition in the
// table has a registered handler, so missing wiring is caught at startup
// instead of surfacing as SYSTEM incidents at runtime.
func (r *Registry) Validate(table *flow.Table) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, version := range table.Versions() {
		for _, state := range table.FromStates(version) {
			if _, ok := r.handlers[state]; !ok {
				return fmt.Errorf("step: no handler registered for state %s (flow %s)", state, version)
			}
		}
	}
	return nil
}
