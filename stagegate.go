package stagegate

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/tmattila/stagegate/internal/engine"
	"github.com/tmattila/stagegate/internal/templates"
	"github.com/tmattila/stagegate/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	WorkflowTemplate     = api.WorkflowTemplate
	Stage                = api.Stage
	Gate                 = api.Gate
	WorkflowInstance     = api.WorkflowInstance
	GateState            = api.GateState
	WorkflowEvent        = api.WorkflowEvent
	EventType            = api.EventType
	InstanceStatus       = api.InstanceStatus
	GateStatus           = api.GateStatus
	Decision             = api.Decision
	InstanceListOptions  = api.InstanceListOptions
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status and decision values for convenience.

const (
	StatusActive    = api.StatusActive
	StatusBlocked   = api.StatusBlocked
	StatusCompleted = api.StatusCompleted

	GatePending  = api.GatePending
	GateApproved = api.GateApproved
	GateRejected = api.GateRejected

	DecisionApprove = api.DecisionApprove
	DecisionReject  = api.DecisionReject
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists workflow instances and
// events in a SQLite database. Templates are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// NewPostgresEngine returns an Engine that persists instances and events in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewPostgresEngineWithObserver(db, obs)
}

// NewRedisEngine returns an Engine that persists instances and events in Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return engine.NewRedisEngineWithObserver(client, obs)
}

// LoadTemplate parses a YAML workflow template definition and validates
// the resulting stage graph. See the package documentation for the
// definition format.
func LoadTemplate(src []byte) (*WorkflowTemplate, error) {
	return templates.Load(src)
}

// Replay rebuilds a workflow instance from its full event history. The
// events must start at ID 1 and be gapless; the rebuilt instance matches
// the stored one field for field.
func Replay(tpl *WorkflowTemplate, projectID string, events []WorkflowEvent) (*WorkflowInstance, error) {
	return engine.Replay(tpl, projectID, events)
}

// Convenience helpers that just forward to the underlying Engine.

// CreateInstance starts a workflow for projectID from a registered template.
func CreateInstance(ctx context.Context, eng Engine, projectID, templateID, templateVersion, actor string) (*WorkflowInstance, error) {
	return eng.CreateInstance(ctx, projectID, templateID, templateVersion, actor)
}

// GetInstance fetches an instance by project ID.
func GetInstance(ctx context.Context, eng Engine, projectID string) (*WorkflowInstance, error) {
	return eng.GetInstance(ctx, projectID)
}

// ListInstances lists workflow instances according to the given options.
func ListInstances(ctx context.Context, eng Engine, opts InstanceListOptions) ([]*WorkflowInstance, error) {
	return eng.ListInstances(ctx, opts)
}

// Approve records an approval on a gate of the instance's current stage.
func Approve(ctx context.Context, eng Engine, projectID, gateID, actor, comment string) (*WorkflowInstance, error) {
	return eng.DecideGate(ctx, projectID, gateID, DecisionApprove, actor, comment)
}

// Reject records a rejection on a gate of the instance's current stage.
// The comment is mandatory for rejections.
func Reject(ctx context.Context, eng Engine, projectID, gateID, actor, comment string) (*WorkflowInstance, error) {
	return eng.DecideGate(ctx, projectID, gateID, DecisionReject, actor, comment)
}
