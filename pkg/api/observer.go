package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay workflow mutations. Observers are
// notified after the state change has been committed.
type Observer interface {
	// OnInstanceCreated is called once when an instance is created.
	OnInstanceCreated(ctx context.Context, inst *WorkflowInstance)

	// OnStageAdvanced is called after a successful AdvanceStage or
	// ManualOverride. override distinguishes the two.
	OnStageAdvanced(ctx context.Context, inst *WorkflowInstance, from, to string, override bool)

	// OnGateDecided is called after a gate decision is committed.
	OnGateDecided(ctx context.Context, inst *WorkflowInstance, gateID string, decision Decision)

	// OnInstanceCompleted is called when an instance reaches a terminal
	// stage and transitions to StatusCompleted.
	OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance)

	// OnInstanceBlocked is called when a gate decision leaves the
	// instance with only rejected gates on its current stage.
	OnInstanceBlocked(ctx context.Context, inst *WorkflowInstance)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {}
func (NoopObserver) OnStageAdvanced(ctx context.Context, inst *WorkflowInstance, from, to string, override bool) {
}
func (NoopObserver) OnGateDecided(ctx context.Context, inst *WorkflowInstance, gateID string, decision Decision) {
}
func (NoopObserver) OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance) {}
func (NoopObserver) OnInstanceBlocked(ctx context.Context, inst *WorkflowInstance)   {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceCreated(ctx, inst)
	}
}

func (c *CompositeObserver) OnStageAdvanced(ctx context.Context, inst *WorkflowInstance, from, to string, override bool) {
	for _, o := range c.observers {
		o.OnStageAdvanced(ctx, inst, from, to, override)
	}
}

func (c *CompositeObserver) OnGateDecided(ctx context.Context, inst *WorkflowInstance, gateID string, decision Decision) {
	for _, o := range c.observers {
		o.OnGateDecided(ctx, inst, gateID, decision)
	}
}

func (c *CompositeObserver) OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceBlocked(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceBlocked(ctx, inst)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs instance lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "instance_created",
		slog.String("project_id", inst.ProjectID),
		slog.String("template", inst.TemplateID),
		slog.String("stage", inst.CurrentStageID),
	)
}

func (o *LoggingObserver) OnStageAdvanced(ctx context.Context, inst *WorkflowInstance, from, to string, override bool) {
	o.Logger.InfoContext(ctx, "stage_advanced",
		slog.String("project_id", inst.ProjectID),
		slog.String("from", from),
		slog.String("to", to),
		slog.Bool("override", override),
		slog.Int64("version", inst.Version),
	)
}

func (o *LoggingObserver) OnGateDecided(ctx context.Context, inst *WorkflowInstance, gateID string, decision Decision) {
	o.Logger.InfoContext(ctx, "gate_decided",
		slog.String("project_id", inst.ProjectID),
		slog.String("gate", gateID),
		slog.String("decision", string(decision)),
		slog.Int64("version", inst.Version),
	)
}

func (o *LoggingObserver) OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "instance_completed",
		slog.String("project_id", inst.ProjectID),
		slog.String("stage", inst.CurrentStageID),
	)
}

func (o *LoggingObserver) OnInstanceBlocked(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.WarnContext(ctx, "instance_blocked",
		slog.String("project_id", inst.ProjectID),
		slog.String("stage", inst.CurrentStageID),
	)
}

// BasicMetrics collects simple lifecycle counters. It implements Observer
// and can be combined with LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	instancesCreated   atomic.Int64
	stagesAdvanced     atomic.Int64
	overrides          atomic.Int64
	gatesApproved      atomic.Int64
	gatesRejected      atomic.Int64
	instancesCompleted atomic.Int64
	instancesBlocked   atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	InstancesCreated   int64
	StagesAdvanced     int64
	ManualOverrides    int64
	GatesApproved      int64
	GatesRejected      int64
	InstancesCompleted int64
	InstancesBlocked   int64
}

func (m *BasicMetrics) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {
	m.instancesCreated.Add(1)
}

func (m *BasicMetrics) OnStageAdvanced(ctx context.Context, inst *WorkflowInstance, from, to string, override bool) {
	if override {
		m.overrides.Add(1)
	} else {
		m.stagesAdvanced.Add(1)
	}
}

func (m *BasicMetrics) OnGateDecided(ctx context.Context, inst *WorkflowInstance, gateID string, decision Decision) {
	if decision == DecisionApprove {
		m.gatesApproved.Add(1)
	} else {
		m.gatesRejected.Add(1)
	}
}

func (m *BasicMetrics) OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance) {
	m.instancesCompleted.Add(1)
}

func (m *BasicMetrics) OnInstanceBlocked(ctx context.Context, inst *WorkflowInstance) {
	m.instancesBlocked.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		InstancesCreated:   m.instancesCreated.Load(),
		StagesAdvanced:     m.stagesAdvanced.Load(),
		ManualOverrides:    m.overrides.Load(),
		GatesApproved:      m.gatesApproved.Load(),
		GatesRejected:      m.gatesRejected.Load(),
		InstancesCompleted: m.instancesCompleted.Load(),
		InstancesBlocked:   m.instancesBlocked.Load(),
	}
}
