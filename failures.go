package journey

import "fmt"

// PreconditionError reports the first guard condition a transition
// resolution found unmet. It unwraps to ErrPreconditionFailed so callers
// can branch with errors.Is and still surface the offending condition.
type PreconditionError struct {
	// Condition is the unmet guard expression, verbatim from the rule.
	Condition string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("journey: guard condition not satisfied: %q", e.Condition)
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionFailed }

// ForbiddenError reports an actor outside a transition's allowed set.
type ForbiddenError struct {
	Actor  string
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("journey: actor %s not allowed to perform %s", e.Actor, e.Action)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// InvalidStateError reports an instance whose status or transition shape
// does not permit the requested action.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "journey: " + e.Reason
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }
