package api

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	StatusActive    InstanceStatus = "ACTIVE"
	StatusBlocked   InstanceStatus = "BLOCKED"
	StatusCompleted InstanceStatus = "COMPLETED"
)

// GateStatus is the decision state of a single gate on an instance.
type GateStatus string

const (
	GatePending  GateStatus = "PENDING"
	GateApproved GateStatus = "APPROVED"
	GateRejected GateStatus = "REJECTED"
)

// Decision is a reviewer's verdict on a gate.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// GateState is the current decision recorded for one gate on one instance.
// Re-deciding a gate overwrites the whole GateState; past decisions remain
// visible only in the event history.
type GateState struct {
	Status    GateStatus
	DecidedBy string
	DecidedAt time.Time

	// Comment is required (non-empty) when Status is REJECTED and
	// optional when APPROVED.
	Comment string
}

// WorkflowInstance is the live workflow state for one project against one
// template. Instances are never deleted; terminal ones are marked
// COMPLETED and retention is an external concern.
//
// All mutation goes through the engine, which funnels every write through
// the instance store's CompareAndSwap. Version increments by exactly one
// per accepted mutation and is the optimistic-concurrency token.
type WorkflowInstance struct {
	ProjectID       string
	TemplateID      string
	TemplateVersion string

	CurrentStageID string
	Gates          map[string]GateState
	Status         InstanceStatus
	Version        int64
}

// Clone returns a deep copy. Stores hand out and mutate copies so callers
// never alias persisted state.
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	cp := *i
	cp.Gates = make(map[string]GateState, len(i.Gates))
	for id, gs := range i.Gates {
		cp.Gates[id] = gs
	}
	return &cp
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// TemplateID, if non-empty, limits results to instances of the given template.
	TemplateID string

	// Status, if non-empty, limits results to instances with the given status.
	Status InstanceStatus
}
