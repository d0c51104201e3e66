package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmattila/stagegate/pkg/api"
)

// Gate review coordination. Decisions are only accepted for gates guarding
// the instance's current stage, after any dependency gates have been
// approved. Authorization (who may review) is the caller's concern; the
// engine only requires a non-empty actor identity.

func (e *engineImpl) DecideGate(ctx context.Context, projectID, gateID string, decision api.Decision, actor, comment string) (*api.WorkflowInstance, error) {
	if actor == "" {
		return nil, api.ErrActorRequired
	}
	switch decision {
	case api.DecisionApprove, api.DecisionReject:
	default:
		return nil, fmt.Errorf("unknown decision %q", decision)
	}
	if decision == api.DecisionReject && comment == "" {
		return nil, api.ErrCommentRequired
	}

	inst, tpl, err := e.instanceAndTemplate(ctx, projectID)
	if err != nil {
		return nil, err
	}

	gate, ok := tpl.GateByID(gateID)
	if !ok {
		return nil, fmt.Errorf("%w: %q in template %q", api.ErrGateNotFound, gateID, tpl.ID)
	}

	wasBlocked := inst.Status == api.StatusBlocked

	updated, err := e.instances.CompareAndSwap(ctx, projectID, inst.Version, func(cur *api.WorkflowInstance) (*api.WorkflowEvent, error) {
		if gate.StageID != cur.CurrentStageID {
			return nil, &api.GateNotActiveError{
				GateID:       gateID,
				GateStageID:  gate.StageID,
				CurrentStage: cur.CurrentStageID,
			}
		}
		for _, dep := range gate.DependsOn {
			if gs := cur.Gates[dep]; gs.Status != api.GateApproved {
				return nil, &api.GateNotSatisfiedError{GateID: dep, Status: gs.Status}
			}
		}

		from := cur.Gates[gateID].Status

		// One clock read: the event timestamp and DecidedAt must agree
		// so that replaying the history reproduces the exact GateState.
		at := e.now()

		next := api.GateState{
			DecidedBy: actor,
			DecidedAt: at,
			Comment:   comment,
		}
		evType := api.EventGateApproved
		if decision == api.DecisionApprove {
			next.Status = api.GateApproved
		} else {
			next.Status = api.GateRejected
			evType = api.EventGateRejected
		}

		// Overwrite semantics: the previous decision survives only in
		// the event history.
		cur.Gates[gateID] = next
		cur.Status = deriveStatus(tpl, cur)

		return &api.WorkflowEvent{
			ProjectID:     projectID,
			Type:          evType,
			FromState:     string(from),
			ToState:       string(next.Status),
			GateID:        gateID,
			Actor:         actor,
			Reason:        comment,
			CorrelationID: uuid.NewString(),
			At:            at,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.observer.OnGateDecided(ctx, updated, gateID, decision)
	if updated.Status == api.StatusBlocked && !wasBlocked {
		e.observer.OnInstanceBlocked(ctx, updated)
	}
	return updated, nil
}

func (e *engineImpl) DetectBlocked(ctx context.Context, projectID string) (bool, error) {
	inst, tpl, err := e.instanceAndTemplate(ctx, projectID)
	if err != nil {
		return false, err
	}
	if inst.Status == api.StatusCompleted {
		return false, nil
	}
	return stageBlocked(tpl, inst), nil
}
