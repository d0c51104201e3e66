package api

import "context"

// Engine is the high-level workflow progression API.
//
// Every mutation is a short synchronous operation serialized per project
// through a single optimistic compare-and-swap write path. Concurrent
// callers targeting the same project may receive ErrVersionConflict; the
// engine never retries on their behalf, so that event appends cannot be
// duplicated by blind re-execution.
type Engine interface {
	// RegisterTemplate registers a validated template by id + version.
	// Registering the same id+version twice is an error.
	RegisterTemplate(t *WorkflowTemplate) error

	// GetTemplate returns a registered template.
	// Returns ErrTemplateNotFound if the id/version is unknown.
	GetTemplate(id, version string) (*WorkflowTemplate, error)

	// CreateInstance creates the workflow instance for a project against a
	// registered template: current stage set to the template's start
	// stage, every gate PENDING, version 0. The INSTANCE_CREATED event is
	// appended in the same transaction. Returns ErrDuplicateInstance if
	// the project already has an instance.
	CreateInstance(ctx context.Context, projectID, templateID, templateVersion, actor string) (*WorkflowInstance, error)

	// GetInstance returns a snapshot of the project's instance.
	GetInstance(ctx context.Context, projectID string) (*WorkflowInstance, error)

	// ListInstances returns instance snapshots matching the given options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*WorkflowInstance, error)

	// AdvanceStage moves the instance along an allowed template edge,
	// provided every gate guarding the current stage is APPROVED. Emits a
	// STAGE_ADVANCED event; advancing into a stage with no outgoing edges
	// marks the instance COMPLETED.
	AdvanceStage(ctx context.Context, projectID, targetStageID, actor string) (*WorkflowInstance, error)

	// ManualOverride moves the instance along an allowed template edge
	// without consulting gates. A non-empty reason is mandatory. Emits a
	// MANUAL_OVERRIDE event so audits can tell forced progression from
	// normal advancement.
	ManualOverride(ctx context.Context, projectID, targetStageID, actor, reason string) (*WorkflowInstance, error)

	// DecideGate records a reviewer decision on a gate guarding the
	// instance's current stage. REJECT requires a non-empty comment.
	// Decisions overwrite: re-deciding a gate replaces its GateState and
	// appends a new event, never rewriting history.
	DecideGate(ctx context.Context, projectID, gateID string, decision Decision, actor, comment string) (*WorkflowInstance, error)

	// DetectBlocked reports whether the instance is blocked: at least one
	// gate on the current stage is REJECTED and none is PENDING. Blocked
	// is recoverable; a later re-approval clears it.
	DetectBlocked(ctx context.Context, projectID string) (bool, error)

	// ListEvents returns the instance's events with ID greater than
	// sinceID, in event-ID order. Pass 0 for the full history.
	ListEvents(ctx context.Context, projectID string, sinceID int64) ([]WorkflowEvent, error)
}
