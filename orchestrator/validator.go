package orchestrator

import (
	"fmt"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/instance"
)

// Validator enforces the action-level rules that resolution alone cannot
// see: actor authorization and the SYSTEM-only restriction on same-state
// transitions. Completed instances are rejected by the orchestrator
// before resolution, so the rule handed in here always targets a live
// instance.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator { return &Validator{} }

// Validate rejects the command or lets it through to execution.
func (v *Validator) Validate(inst *instance.Instance, cmd *command.Command, rule flow.Rule) error {
	if !rule.AllowsActor(cmd.Actor) {
		return &journey.ForbiddenError{
			Actor:  string(cmd.Actor),
			Action: string(cmd.Action),
		}
	}

	// Self-loops exist for system retries only; letting users fire them
	// would burn retry budget on redundant triggers.
	if rule.SelfLoop() && cmd.Actor != flow.ActorSystem {
		return &journey.InvalidStateError{
			Reason: fmt.Sprintf("same-state action %s requires the SYSTEM actor", cmd.Action),
		}
	}

	return nil
}
