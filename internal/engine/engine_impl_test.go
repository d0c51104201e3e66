package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmattila/stagegate/internal/persistence"
	"github.com/tmattila/stagegate/pkg/api"
)

func newMemoryPersistence() persistence.Persistence {
	mem := persistence.NewInMemoryStore()
	return persistence.Persistence{Instances: mem, Events: mem}
}

// deliveryTemplate is a four-stage delivery pipeline with a review gate
// on the first two stages and a rework edge back from build to design.
func deliveryTemplate() *api.WorkflowTemplate {
	return &api.WorkflowTemplate{
		ID:      "delivery",
		Version: "v1",
		Stages: []api.Stage{
			{ID: "qualification", Name: "Qualification", Next: []string{"design"}},
			{ID: "design", Name: "Design", Next: []string{"build"}},
			{ID: "build", Name: "Build", Next: []string{"deliver", "design"}},
			{ID: "deliver", Name: "Deliver"},
		},
		Gates: []api.Gate{
			{ID: "qual-review", Name: "Qualification Review", StageID: "qualification"},
			{ID: "design-review", Name: "Design Review", StageID: "design"},
		},
	}
}

func newTestEngine(t *testing.T) api.Engine {
	t.Helper()
	eng := NewInMemoryEngine()
	if err := eng.RegisterTemplate(deliveryTemplate()); err != nil {
		t.Fatalf("RegisterTemplate failed: %v", err)
	}
	return eng
}

func approveGate(t *testing.T, eng api.Engine, projectID, gateID string) {
	t.Helper()
	if _, err := eng.DecideGate(context.Background(), projectID, gateID, api.DecisionApprove, "reviewer", ""); err != nil {
		t.Fatalf("approving %s failed: %v", gateID, err)
	}
}

func TestCreateInstanceStartsAtInitialStage(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	inst, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice")
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	if inst.CurrentStageID != "qualification" {
		t.Fatalf("current stage = %q, want qualification", inst.CurrentStageID)
	}
	if inst.Status != api.StatusActive {
		t.Fatalf("status = %q, want ACTIVE", inst.Status)
	}
	if inst.Version != 0 {
		t.Fatalf("version = %d, want 0", inst.Version)
	}
	for id, gs := range inst.Gates {
		if gs.Status != api.GatePending {
			t.Fatalf("gate %s = %q, want PENDING", id, gs.Status)
		}
	}
	if len(inst.Gates) != 2 {
		t.Fatalf("got %d gates, want 2", len(inst.Gates))
	}

	events, err := eng.ListEvents(ctx, "proj-1", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ID != 1 || events[0].Type != api.EventInstanceCreated {
		t.Fatalf("first event = %d/%s", events[0].ID, events[0].Type)
	}
	if events[0].ToState != "qualification" || events[0].Actor != "alice" {
		t.Fatalf("creation event = %+v", events[0])
	}
}

func TestCreateInstanceRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	_, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice")
	if !errors.Is(err, api.ErrDuplicateInstance) {
		t.Fatalf("error = %v, want ErrDuplicateInstance", err)
	}
}

func TestCreateInstanceUnknownTemplate(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.CreateInstance(context.Background(), "proj-1", "nope", "v1", "alice")
	if !errors.Is(err, api.ErrTemplateNotFound) {
		t.Fatalf("error = %v, want ErrTemplateNotFound", err)
	}
}

func TestAdvanceStageRequiresApprovedGates(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	_, err := eng.AdvanceStage(ctx, "proj-1", "design", "alice")
	var notSatisfied *api.GateNotSatisfiedError
	if !errors.As(err, &notSatisfied) {
		t.Fatalf("error = %v, want GateNotSatisfiedError", err)
	}
	if notSatisfied.GateID != "qual-review" || notSatisfied.Status != api.GatePending {
		t.Fatalf("unexpected detail: %+v", notSatisfied)
	}

	// The failed advance must leave no trace.
	inst, err := eng.GetInstance(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if inst.CurrentStageID != "qualification" || inst.Version != 0 {
		t.Fatalf("failed advance mutated instance: stage=%s version=%d", inst.CurrentStageID, inst.Version)
	}
	events, _ := eng.ListEvents(ctx, "proj-1", 0)
	if len(events) != 1 {
		t.Fatalf("failed advance appended events: %d", len(events))
	}
}

func TestAdvanceStageHappyPath(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	approveGate(t, eng, "proj-1", "qual-review")

	inst, err := eng.AdvanceStage(ctx, "proj-1", "design", "alice")
	if err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}
	if inst.CurrentStageID != "design" {
		t.Fatalf("current stage = %q, want design", inst.CurrentStageID)
	}
	if inst.Version != 2 {
		t.Fatalf("version = %d, want 2 (approval + advance)", inst.Version)
	}
	if inst.Status != api.StatusActive {
		t.Fatalf("status = %q, want ACTIVE", inst.Status)
	}

	events, _ := eng.ListEvents(ctx, "proj-1", 0)
	last := events[len(events)-1]
	if last.Type != api.EventStageAdvanced || last.FromState != "qualification" || last.ToState != "design" {
		t.Fatalf("advance event = %+v", last)
	}
}

func TestAdvanceStageRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	approveGate(t, eng, "proj-1", "qual-review")

	_, err := eng.AdvanceStage(ctx, "proj-1", "deliver", "alice")
	var illegal *api.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("error = %v, want IllegalTransitionError", err)
	}
	if illegal.From != "qualification" || illegal.To != "deliver" {
		t.Fatalf("unexpected detail: %+v", illegal)
	}
}

func TestAdvanceIntoTerminalStageCompletes(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	approveGate(t, eng, "proj-1", "qual-review")
	if _, err := eng.AdvanceStage(ctx, "proj-1", "design", "alice"); err != nil {
		t.Fatalf("advance to design failed: %v", err)
	}
	approveGate(t, eng, "proj-1", "design-review")
	if _, err := eng.AdvanceStage(ctx, "proj-1", "build", "alice"); err != nil {
		t.Fatalf("advance to build failed: %v", err)
	}
	inst, err := eng.AdvanceStage(ctx, "proj-1", "deliver", "alice")
	if err != nil {
		t.Fatalf("advance to deliver failed: %v", err)
	}

	if inst.Status != api.StatusCompleted {
		t.Fatalf("status = %q, want COMPLETED", inst.Status)
	}
	if inst.CurrentStageID != "deliver" {
		t.Fatalf("current stage = %q, want deliver", inst.CurrentStageID)
	}
}

func TestBackwardEdgeAllowsRework(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	approveGate(t, eng, "proj-1", "qual-review")
	if _, err := eng.AdvanceStage(ctx, "proj-1", "design", "alice"); err != nil {
		t.Fatalf("advance to design failed: %v", err)
	}
	approveGate(t, eng, "proj-1", "design-review")
	if _, err := eng.AdvanceStage(ctx, "proj-1", "build", "alice"); err != nil {
		t.Fatalf("advance to build failed: %v", err)
	}

	// build has no gates, so the backward edge is immediately usable.
	inst, err := eng.AdvanceStage(ctx, "proj-1", "design", "alice")
	if err != nil {
		t.Fatalf("rework transition failed: %v", err)
	}
	if inst.CurrentStageID != "design" {
		t.Fatalf("current stage = %q, want design", inst.CurrentStageID)
	}
	// The design gate keeps its earlier approval; re-review is a policy
	// choice made through a fresh DecideGate call, not an automatic reset.
	if inst.Gates["design-review"].Status != api.GateApproved {
		t.Fatalf("design-review = %q after rework", inst.Gates["design-review"].Status)
	}
}

func TestManualOverrideSkipsGatesAndRecordsReason(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	if _, err := eng.ManualOverride(ctx, "proj-1", "design", "ops", ""); !errors.Is(err, api.ErrReasonRequired) {
		t.Fatalf("error = %v, want ErrReasonRequired", err)
	}

	inst, err := eng.ManualOverride(ctx, "proj-1", "design", "ops", "deadline waiver approved by steering")
	if err != nil {
		t.Fatalf("ManualOverride failed: %v", err)
	}
	if inst.CurrentStageID != "design" {
		t.Fatalf("current stage = %q, want design", inst.CurrentStageID)
	}
	if inst.Gates["qual-review"].Status != api.GatePending {
		t.Fatalf("override must not touch gate state, got %q", inst.Gates["qual-review"].Status)
	}

	events, _ := eng.ListEvents(ctx, "proj-1", 0)
	last := events[len(events)-1]
	if last.Type != api.EventManualOverride {
		t.Fatalf("event type = %s, want MANUAL_OVERRIDE", last.Type)
	}
	if last.Actor != "ops" || last.Reason != "deadline waiver approved by steering" {
		t.Fatalf("override event = %+v", last)
	}
}

func TestManualOverrideStillRespectsEdges(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	_, err := eng.ManualOverride(ctx, "proj-1", "deliver", "ops", "attempting to skip the pipeline")
	var illegal *api.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("error = %v, want IllegalTransitionError", err)
	}
}

func TestActorRequiredEverywhere(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	if _, err := eng.CreateInstance(ctx, "proj-2", "delivery", "v1", ""); !errors.Is(err, api.ErrActorRequired) {
		t.Fatalf("CreateInstance: %v, want ErrActorRequired", err)
	}
	if _, err := eng.AdvanceStage(ctx, "proj-1", "design", ""); !errors.Is(err, api.ErrActorRequired) {
		t.Fatalf("AdvanceStage: %v, want ErrActorRequired", err)
	}
	if _, err := eng.ManualOverride(ctx, "proj-1", "design", "", "reason"); !errors.Is(err, api.ErrActorRequired) {
		t.Fatalf("ManualOverride: %v, want ErrActorRequired", err)
	}
	if _, err := eng.DecideGate(ctx, "proj-1", "qual-review", api.DecisionApprove, "", ""); !errors.Is(err, api.ErrActorRequired) {
		t.Fatalf("DecideGate: %v, want ErrActorRequired", err)
	}
}

func TestGetInstanceNotFound(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.GetInstance(context.Background(), "ghost")
	if !errors.Is(err, api.ErrInstanceNotFound) {
		t.Fatalf("error = %v, want ErrInstanceNotFound", err)
	}
}

func TestListEventsSince(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	approveGate(t, eng, "proj-1", "qual-review")
	if _, err := eng.AdvanceStage(ctx, "proj-1", "design", "alice"); err != nil {
		t.Fatalf("AdvanceStage failed: %v", err)
	}

	all, err := eng.ListEvents(ctx, "proj-1", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	for i, ev := range all {
		if ev.ID != int64(i+1) {
			t.Fatalf("event %d has id %d, want gapless sequence", i, ev.ID)
		}
		if ev.CorrelationID == "" {
			t.Fatalf("event %d has no correlation id", ev.ID)
		}
	}

	tail, err := eng.ListEvents(ctx, "proj-1", 2)
	if err != nil {
		t.Fatalf("ListEvents(since=2) failed: %v", err)
	}
	if len(tail) != 1 || tail[0].ID != 3 {
		t.Fatalf("since=2 returned %d events, first id %d", len(tail), tail[0].ID)
	}
}

func TestEngineTimestampsUseInjectedClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	mem := newMemoryPersistence()
	eng := NewEngineWithConfig(Config{
		Persistence: mem,
		Now:         func() time.Time { return fixed },
	})
	if err := eng.RegisterTemplate(deliveryTemplate()); err != nil {
		t.Fatalf("RegisterTemplate failed: %v", err)
	}
	if _, err := eng.CreateInstance(ctx, "proj-1", "delivery", "v1", "alice"); err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	inst, err := eng.DecideGate(ctx, "proj-1", "qual-review", api.DecisionApprove, "rev", "ok")
	if err != nil {
		t.Fatalf("DecideGate failed: %v", err)
	}

	if got := inst.Gates["qual-review"].DecidedAt; !got.Equal(fixed) {
		t.Fatalf("DecidedAt = %v, want pinned clock %v", got, fixed)
	}
	events, _ := eng.ListEvents(ctx, "proj-1", 0)
	for _, ev := range events {
		if !ev.At.Equal(fixed) {
			t.Fatalf("event %d timestamp = %v, want pinned clock", ev.ID, ev.At)
		}
	}
}
