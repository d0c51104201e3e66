package api

import "time"

// EventType identifies a workflow audit event.
type EventType string

const (
	EventInstanceCreated EventType = "INSTANCE_CREATED"
	EventStageAdvanced   EventType = "STAGE_ADVANCED"
	EventGateApproved    EventType = "GATE_APPROVED"
	EventGateRejected    EventType = "GATE_REJECTED"
	EventManualOverride  EventType = "MANUAL_OVERRIDE"
)

// WorkflowEvent is one record in the append-only audit history of an
// instance. Exactly one event exists per accepted mutation, and event IDs
// are strictly increasing per instance with no gaps, starting at 1 with
// the INSTANCE_CREATED event.
//
// Events are never rewritten. Together with the template, the full event
// list of an instance replays to its exact current state (see Replay).
type WorkflowEvent struct {
	// ID is assigned by the store inside the same transaction that
	// commits the state change the event describes.
	ID        int64
	ProjectID string
	Type      EventType

	// FromState / ToState capture the before/after value the event
	// changed: stage IDs for stage events, gate statuses for gate events.
	FromState string
	ToState   string

	// GateID is set on GATE_APPROVED / GATE_REJECTED events.
	GateID string

	Actor string

	// Reason holds the override reason on MANUAL_OVERRIDE and the
	// reviewer comment on gate events.
	Reason string

	// CorrelationID ties the event to the request that produced it, for
	// log correlation in the calling service.
	CorrelationID string

	At time.Time
}
