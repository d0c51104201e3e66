package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tmattila/stagegate/internal/persistence"
	"github.com/tmattila/stagegate/pkg/api"
)

// engineImpl is a synchronous, in-process progression engine. Every
// mutation funnels through the instance store's CompareAndSwap, so all
// writes to one project form a single linear timeline and the audit log
// stays gapless. Losing writers get api.ErrVersionConflict; the engine
// never retries on their behalf.
type engineImpl struct {
	templates *templateRegistry
	instances persistence.InstanceStore
	events    persistence.EventStore
	observer  api.Observer
	now       func() time.Time
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence persistence.Persistence
	Observer    api.Observer

	// Now overrides the clock used for event and decision timestamps.
	// Tests pin this for deterministic histories.
	Now func() time.Time
}

func NewInMemoryEngine() api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngine(persistence.Persistence{
		Instances: mem,
		Events:    mem,
	})
}

func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Instances: mem, Events: mem},
		Observer:    obs,
	})
}

func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(persistence.Persistence{
		Instances: store,
		Events:    store,
	}), nil
}

func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Instances: store, Events: store},
		Observer:    obs,
	}), nil
}

func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(persistence.Persistence{
		Instances: store,
		Events:    store,
	}), nil
}

func NewPostgresEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Instances: store, Events: store},
		Observer:    obs,
	}), nil
}

func NewRedisEngine(client *redis.Client) api.Engine {
	store := persistence.NewRedisStore(client, "stagegate:")
	return NewEngine(persistence.Persistence{
		Instances: store,
		Events:    store,
	})
}

func NewRedisEngineWithObserver(client *redis.Client, obs api.Observer) api.Engine {
	store := persistence.NewRedisStore(client, "stagegate:")
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Instances: store, Events: store},
		Observer:    obs,
	})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &engineImpl{
		templates: newTemplateRegistry(),
		instances: cfg.Persistence.Instances,
		events:    cfg.Persistence.Events,
		observer:  obs,
		now:       now,
	}
}

// NewEngine returns an Engine backed by the given persistence. External
// users access this via the stagegate package constructors.
func NewEngine(p persistence.Persistence) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
	})
}

func (e *engineImpl) RegisterTemplate(t *api.WorkflowTemplate) error {
	if t == nil {
		return fmt.Errorf("%w: nil template", api.ErrMalformedTemplate)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	return e.templates.Register(t)
}

func (e *engineImpl) GetTemplate(id, version string) (*api.WorkflowTemplate, error) {
	return e.templates.Get(id, version)
}

func (e *engineImpl) CreateInstance(ctx context.Context, projectID, templateID, templateVersion, actor string) (*api.WorkflowInstance, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if actor == "" {
		return nil, api.ErrActorRequired
	}

	tpl, err := e.templates.Get(templateID, templateVersion)
	if err != nil {
		return nil, err
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
		Version:         0,
	}
	inst.Status = deriveStatus(tpl, inst)

	created := api.WorkflowEvent{
		ProjectID:     projectID,
		Type:          api.EventInstanceCreated,
		ToState:       tpl.Start,
		Actor:         actor,
		CorrelationID: uuid.NewString(),
		At:            e.now(),
	}

	if err := e.instances.CreateInstance(ctx, inst, created); err != nil {
		return nil, err
	}

	e.observer.OnInstanceCreated(ctx, inst)
	return inst, nil
}

func (e *engineImpl) GetInstance(ctx context.Context, projectID string) (*api.WorkflowInstance, error) {
	return e.instances.GetInstance(ctx, projectID)
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	filter := persistence.InstanceFilter{
		TemplateID: opts.TemplateID,
		Status:     opts.Status,
	}
	return e.instances.ListInstances(ctx, filter)
}

func (e *engineImpl) AdvanceStage(ctx context.Context, projectID, targetStageID, actor string) (*api.WorkflowInstance, error) {
	if actor == "" {
		return nil, api.ErrActorRequired
	}

	inst, tpl, err := e.instanceAndTemplate(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var from string
	updated, err := e.instances.CompareAndSwap(ctx, projectID, inst.Version, func(cur *api.WorkflowInstance) (*api.WorkflowEvent, error) {
		if !tpl.HasEdge(cur.CurrentStageID, targetStageID) {
			return nil, &api.IllegalTransitionError{From: cur.CurrentStageID, To: targetStageID}
		}
		for _, g := range tpl.GatesFor(cur.CurrentStageID) {
			if gs := cur.Gates[g.ID]; gs.Status != api.GateApproved {
				return nil, &api.GateNotSatisfiedError{GateID: g.ID, Status: gs.Status}
			}
		}

		from = cur.CurrentStageID
		cur.CurrentStageID = targetStageID
		cur.Status = deriveStatus(tpl, cur)

		return &api.WorkflowEvent{
			ProjectID:     projectID,
			Type:          api.EventStageAdvanced,
			FromState:     from,
			ToState:       targetStageID,
			Actor:         actor,
			CorrelationID: uuid.NewString(),
			At:            e.now(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.observer.OnStageAdvanced(ctx, updated, from, targetStageID, false)
	if updated.Status == api.StatusCompleted {
		e.observer.OnInstanceCompleted(ctx, updated)
	}
	return updated, nil
}

func (e *engineImpl) ManualOverride(ctx context.Context, projectID, targetStageID, actor, reason string) (*api.WorkflowInstance, error) {
	if actor == "" {
		return nil, api.ErrActorRequired
	}
	if reason == "" {
		return nil, api.ErrReasonRequired
	}

	inst, tpl, err := e.instanceAndTemplate(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var from string
	updated, err := e.instances.CompareAndSwap(ctx, projectID, inst.Version, func(cur *api.WorkflowInstance) (*api.WorkflowEvent, error) {
		if !tpl.HasEdge(cur.CurrentStageID, targetStageID) {
			return nil, &api.IllegalTransitionError{From: cur.CurrentStageID, To: targetStageID}
		}

		// Gate checks are deliberately skipped; that is the point of an
		// override, and the distinct event type keeps audits honest.
		from = cur.CurrentStageID
		cur.CurrentStageID = targetStageID
		cur.Status = deriveStatus(tpl, cur)

		return &api.WorkflowEvent{
			ProjectID:     projectID,
			Type:          api.EventManualOverride,
			FromState:     from,
			ToState:       targetStageID,
			Actor:         actor,
			Reason:        reason,
			CorrelationID: uuid.NewString(),
			At:            e.now(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.observer.OnStageAdvanced(ctx, updated, from, targetStageID, true)
	if updated.Status == api.StatusCompleted {
		e.observer.OnInstanceCompleted(ctx, updated)
	}
	return updated, nil
}

func (e *engineImpl) ListEvents(ctx context.Context, projectID string, sinceID int64) ([]api.WorkflowEvent, error) {
	return e.events.ListEvents(ctx, projectID, sinceID)
}

func (e *engineImpl) instanceAndTemplate(ctx context.Context, projectID string) (*api.WorkflowInstance, *api.WorkflowTemplate, error) {
	inst, err := e.instances.GetInstance(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	tpl, err := e.templates.Get(inst.TemplateID, inst.TemplateVersion)
	if err != nil {
		return nil, nil, err
	}
	return inst, tpl, nil
}

// deriveStatus recomputes the lifecycle status from the template and the
// current stage/gate state. It is shared with Replay so that replayed
// histories land on the same status as the live engine.
func deriveStatus(tpl *api.WorkflowTemplate, inst *api.WorkflowInstance) api.InstanceStatus {
	if tpl.IsTerminal(inst.CurrentStageID) {
		return api.StatusCompleted
	}
	if stageBlocked(tpl, inst) {
		return api.StatusBlocked
	}
	return api.StatusActive
}

// stageBlocked reports whether every undecided path out of the current
// stage is cut off: at least one guarding gate is REJECTED and none is
// still PENDING.
func stageBlocked(tpl *api.WorkflowTemplate, inst *api.WorkflowInstance) bool {
	rejected := false
	for _, g := range tpl.GatesFor(inst.CurrentStageID) {
		switch inst.Gates[g.ID].Status {
		case api.GateRejected:
			rejected = true
		case api.GatePending:
			return false
		}
	}
	return rejected
}
