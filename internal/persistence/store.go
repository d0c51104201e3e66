package persistence

import (
	"context"

	"github.com/tmattila/stagegate/pkg/api"
)

// Mutator is applied by CompareAndSwap to a copy of the current instance
// state. It mutates the copy in place and returns the single audit event
// describing the change. The store assigns the event ID and commits the
// instance write and the event append in one transaction.
type Mutator func(inst *api.WorkflowInstance) (*api.WorkflowEvent, error)

// InstanceStore owns WorkflowInstance state per project.
//
// CompareAndSwap is the sole mutation path after creation: it persists the
// mutated copy with version+1 only if expectedVersion still matches,
// returning api.ErrVersionConflict otherwise. Callers (the engine) never
// retry internally; a losing writer re-reads and re-applies.
//
// Stores return api sentinel errors directly (api.ErrInstanceNotFound,
// api.ErrDuplicateInstance, api.ErrVersionConflict) so the taxonomy is
// uniform across backends.
type InstanceStore interface {
	// CreateInstance persists a fresh instance (version 0) together with
	// its INSTANCE_CREATED event (assigned event ID 1) atomically.
	CreateInstance(ctx context.Context, inst *api.WorkflowInstance, created api.WorkflowEvent) error

	// GetInstance returns a snapshot copy of the instance.
	GetInstance(ctx context.Context, projectID string) (*api.WorkflowInstance, error)

	// ListInstances returns snapshot copies matching the filter.
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*api.WorkflowInstance, error)

	// CompareAndSwap applies mutate to a copy of the current state and
	// commits it with version expectedVersion+1, appending the returned
	// event with the next gapless event ID in the same transaction. A
	// mutate error aborts the transaction and is returned unchanged.
	CompareAndSwap(ctx context.Context, projectID string, expectedVersion int64, mutate Mutator) (*api.WorkflowInstance, error)
}

// EventStore reads the append-only audit history of an instance. Appends
// happen only inside InstanceStore write transactions, so there is no
// public append: an event cannot exist without its state change, nor the
// reverse.
type EventStore interface {
	// ListEvents returns events with ID greater than sinceID, ordered by
	// ID. The sinceID cursor makes consumption restartable.
	ListEvents(ctx context.Context, projectID string, sinceID int64) ([]api.WorkflowEvent, error)
}

// InstanceFilter is used to select instances from the store.
// Empty fields mean "no filter".
type InstanceFilter struct {
	TemplateID string
	Status     api.InstanceStatus
}

func matchesFilter(inst *api.WorkflowInstance, filter InstanceFilter) bool {
	if filter.TemplateID != "" && inst.TemplateID != filter.TemplateID {
		return false
	}
	if filter.Status != "" && inst.Status != filter.Status {
		return false
	}
	return true
}
