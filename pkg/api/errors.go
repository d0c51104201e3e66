package api

import (
	"errors"
	"fmt"
)

var (
	// ErrInstanceNotFound is returned when no instance exists for a project.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrTemplateNotFound is returned when a template id/version is unknown.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrGateNotFound is returned when a gate id is not part of the
	// instance's template.
	ErrGateNotFound = errors.New("gate not found")

	// ErrDuplicateInstance is returned when a project already has an instance.
	ErrDuplicateInstance = errors.New("workflow instance already exists")

	// ErrVersionConflict is returned by the CompareAndSwap mutation path
	// when the expected instance version no longer matches. It is the one
	// error a caller is expected to handle by re-reading and retrying.
	ErrVersionConflict = errors.New("workflow instance version conflict")

	// ErrMalformedTemplate covers structural template defects: missing or
	// duplicate ids, dangling references, cyclic gate dependencies.
	ErrMalformedTemplate = errors.New("malformed workflow template")

	// ErrTemplateValidation covers contradictory stage ordering: no unique
	// start stage, or stages unreachable from it.
	ErrTemplateValidation = errors.New("workflow template validation failed")

	// ErrCommentRequired is returned when a gate is rejected without a comment.
	ErrCommentRequired = errors.New("comment is required when rejecting a gate")

	// ErrReasonRequired is returned when a manual override carries no reason.
	ErrReasonRequired = errors.New("reason is required for manual override")

	// ErrActorRequired is returned when a mutation carries no actor identity.
	ErrActorRequired = errors.New("actor is required")
)

// GateNotSatisfiedError reports a stage advance attempted while a gate
// guarding the current stage is not approved, or a gate decision attempted
// before one of its dependency gates is approved.
type GateNotSatisfiedError struct {
	GateID string
	Status GateStatus
}

func (e *GateNotSatisfiedError) Error() string {
	return fmt.Sprintf("gate %q is not satisfied (status %s)", e.GateID, e.Status)
}

// IsGateNotSatisfied returns the unmet gate id if err indicates an
// unsatisfied gate.
func IsGateNotSatisfied(err error) (string, bool) {
	var e *GateNotSatisfiedError
	if errors.As(err, &e) {
		return e.GateID, true
	}
	return "", false
}

// GateNotActiveError reports a decision on a gate that does not guard the
// instance's current stage. Gates for future or past stages cannot be
// decided out of order.
type GateNotActiveError struct {
	GateID       string
	GateStageID  string
	CurrentStage string
}

func (e *GateNotActiveError) Error() string {
	return fmt.Sprintf("gate %q guards stage %q, but the instance is in stage %q",
		e.GateID, e.GateStageID, e.CurrentStage)
}

// IsGateNotActive returns the gate id if err indicates an inactive gate.
func IsGateNotActive(err error) (string, bool) {
	var e *GateNotActiveError
	if errors.As(err, &e) {
		return e.GateID, true
	}
	return "", false
}

// IllegalTransitionError reports a stage transition that is not an allowed
// edge of the template.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from stage %q to stage %q", e.From, e.To)
}

// IsIllegalTransition reports whether err indicates a disallowed stage edge.
func IsIllegalTransition(err error) bool {
	var e *IllegalTransitionError
	return errors.As(err, &e)
}
