package journey

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("journey: no store configured")
	ErrStoreClosed     = errors.New("journey: store closed")
	ErrMigrationFailed = errors.New("journey: migration failed")

	// Not found errors.
	ErrInstanceNotFound = errors.New("journey: instance not found")
	ErrStepNotFound     = errors.New("journey: step execution record not found")
	ErrIncidentNotFound = errors.New("journey: incident not found")
	ErrOutboxNotFound   = errors.New("journey: outbox record not found")

	// Command validation failures. None of these mutate state.
	ErrInvalidCommand     = errors.New("journey: invalid command")
	ErrInvalidTransition  = errors.New("journey: no transition for action in current state")
	ErrPreconditionFailed = errors.New("journey: guard condition not satisfied")
	ErrForbidden          = errors.New("journey: actor not allowed for transition")
	ErrInvalidState       = errors.New("journey: instance state does not permit action")

	// Conflict errors.
	ErrInstanceExists = errors.New("journey: instance already exists")
	ErrStepExists     = errors.New("journey: step execution record already exists")

	// Flow definition errors.
	ErrUnknownFlow = errors.New("journey: unknown flow version")
)
