package instance

import (
	"context"
	"time"

	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
)

// Store persists instances.
//
// Implementations return journey.ErrInstanceNotFound when an id does not
// exist and journey.ErrInstanceExists on duplicate creation.
type Store interface {
	// CreateInstance inserts a new instance.
	CreateInstance(ctx context.Context, inst *Instance) error

	// GetInstance fetches an instance without locking.
	GetInstance(ctx context.Context, instanceID id.ID) (*Instance, error)

	// GetInstanceForUpdate fetches an instance with an exclusive row
	// lock inside the current transaction. Concurrent commands against
	// the same instance serialize here.
	GetInstanceForUpdate(ctx context.Context, instanceID id.ID) (*Instance, error)

	// UpdateInstance persists the instance and bumps its Revision.
	UpdateInstance(ctx context.Context, inst *Instance) error

	// ListOverdue returns up to limit ACTIVE instances of the given flow
	// version sitting in state since before cutoff, ordered oldest
	// first.
	ListOverdue(ctx context.Context, version string, state flow.State, cutoff time.Time, limit int) ([]*Instance, error)

	// SetContextValue upserts a single context entry on the instance.
	SetContextValue(ctx context.Context, instanceID id.ID, key, value string) error
}
