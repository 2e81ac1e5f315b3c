// Package flow defines journey flow definitions: the states an instance
// can occupy, the actions that move it between them, and the transition
// rules (with actor allow-lists, guard conditions, and retry budgets)
// that govern each move.
//
// Definitions are immutable after registration in a Table. Instances
// record the definition version they were started under and are resolved
// against that version for their whole lifetime, so new versions never
// strand in-flight journeys.
package flow

import "time"

// State is a named position in a flow definition.
type State string

// Action is a named trigger that may move an instance between states.
type Action string

// Actor identifies the category of caller submitting a command.
type Actor string

// Actor categories.
const (
	ActorUser     Actor = "USER"
	ActorAdmin    Actor = "ADMIN"
	ActorSystem   Actor = "SYSTEM"
	ActorCallback Actor = "CALLBACK"
)

// Well-known actions synthesized by the sweepers. Definitions wire these
// into rules like any other action.
const (
	ActionRetry   Action = "RETRY"
	ActionTimeout Action = "TIMEOUT"
)

// Rule describes a single permitted transition within a flow version.
type Rule struct {
	// Version of the definition this rule belongs to.
	Version string

	// From is the state the instance must currently be in.
	From State

	// Action triggers this rule.
	Action Action

	// To is the state the instance moves to when the transition's step
	// work succeeds.
	To State

	// Async marks the transition's step work as deferrable. The
	// orchestrator still executes synchronously today; the flag is
	// carried for routing by callers.
	Async bool

	// AllowedActors restricts who may fire this transition. Empty means
	// any actor.
	AllowedActors []Actor

	// MaxRetry is the retry budget for transient step failures on this
	// transition. Zero means no retries.
	MaxRetry int

	// Conditions are guard expressions of the form "field op literal"
	// evaluated against the instance's context data. All must hold.
	Conditions []string
}

// AllowsActor reports whether the rule permits the given actor. An empty
// allow-list permits everyone.
func (r Rule) AllowsActor(a Actor) bool {
	if len(r.AllowedActors) == 0 {
		return true
	}
	for _, allowed := range r.AllowedActors {
		if allowed == a {
			return true
		}
	}
	return false
}

// SelfLoop reports whether the rule re-enters its own source state.
func (r Rule) SelfLoop() bool { return r.From == r.To }

// Definition is one immutable version of a flow: its state space,
// entry point, terminal set, per-state timeouts, and transition rules.
type Definition struct {
	// Version uniquely names this definition within a Table.
	Version string

	// Initial is the state new instances start in.
	Initial State

	// States is the full declared state space.
	States []State

	// Terminal states end the journey. Entering one completes the
	// instance; no further transitions resolve from it.
	Terminal []State

	// Timeouts maps waiting states to their maximum dwell time. An
	// instance sitting in a keyed state longer than its duration becomes
	// eligible for a synthesized TIMEOUT command.
	Timeouts map[State]time.Duration

	// Rules is the transition set for this version.
	Rules []Rule
}

// IsTerminal reports whether s is in the definition's terminal set.
func (d *Definition) IsTerminal(s State) bool {
	for _, t := range d.Terminal {
		if t == s {
			return true
		}
	}
	return false
}

// HasState reports whether s is declared in the definition.
func (d *Definition) HasState(s State) bool {
	for _, st := range d.States {
		if st == s {
			return true
		}
	}
	return false
}
