package engine

import (
	"fmt"

	"github.com/tmattila/stagegate/pkg/api"
)

// Replay folds a full event history over a fresh instance and returns the
// state it produces. Replaying the complete history of a live instance
// against its template reproduces the instance exactly: stage, gate
// states (including reviewer, timestamp and comment), lifecycle status
// and version.
//
// The history must be complete and intact: event IDs 1..n with no gaps,
// starting with the INSTANCE_CREATED event.
func Replay(tpl *api.WorkflowTemplate, projectID string, events []api.WorkflowEvent) (*api.WorkflowInstance, error) {
	if tpl == nil {
		return nil, fmt.Errorf("%w: nil template", api.ErrMalformedTemplate)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("cannot replay %q: empty event history", projectID)
	}
	for i, ev := range events {
		if ev.ID != int64(i+1) {
			return nil, fmt.Errorf("cannot replay %q: event history has a gap at id %d", projectID, ev.ID)
		}
	}
	if events[0].Type != api.EventInstanceCreated {
		return nil, fmt.Errorf("cannot replay %q: history does not start with %s", projectID, api.EventInstanceCreated)
	}

	gates := make(map[string]api.GateState, len(tpl.Gates))
	for _, g := range tpl.Gates {
		gates[g.ID] = api.GateState{Status: api.GatePending}
	}

	inst := &api.WorkflowInstance{
		ProjectID:       projectID,
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		CurrentStageID:  tpl.Start,
		Gates:           gates,
	}

	for _, ev := range events[1:] {
		switch ev.Type {
		case api.EventStageAdvanced, api.EventManualOverride:
			inst.CurrentStageID = ev.ToState
		case api.EventGateApproved:
			inst.Gates[ev.GateID] = api.GateState{
				Status:    api.GateApproved,
				DecidedBy: ev.Actor,
				DecidedAt: ev.At,
				Comment:   ev.Reason,
			}
		case api.EventGateRejected:
			inst.Gates[ev.GateID] = api.GateState{
				Status:    api.GateRejected,
				DecidedBy: ev.Actor,
				DecidedAt: ev.At,
				Comment:   ev.Reason,
			}
		case api.EventInstanceCreated:
			return nil, fmt.Errorf("cannot replay %q: duplicate %s event %d", projectID, ev.Type, ev.ID)
		default:
			return nil, fmt.Errorf("cannot replay %q: unknown event type %q", projectID, ev.Type)
		}
	}

	// Creation is version 0 with event 1; each later event is one mutation.
	inst.Version = int64(len(events) - 1)
	inst.Status = deriveStatus(tpl, inst)

	return inst, nil
}
