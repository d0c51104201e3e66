package persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/tmattila/stagegate/pkg/api"
)

// PostgresStore is an InstanceStore and EventStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

// Ensure PostgresStore implements the interfaces.
var _ InstanceStore = (*PostgresStore)(nil)

var _ EventStore = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_instances (
			project_id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			template_version TEXT NOT NULL,
			current_stage TEXT NOT NULL,
			status TEXT NOT NULL,
			gates BYTEA NOT NULL,
			version BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS workflow_events (
			project_id TEXT NOT NULL,
			event_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			from_state TEXT NOT NULL DEFAULT '',
			to_state TEXT NOT NULL DEFAULT '',
			gate_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			correlation_id TEXT NOT NULL DEFAULT '',
			at BIGINT NOT NULL,
			PRIMARY KEY (project_id, event_id)
		);
	`)
	return err
}

func (s *PostgresStore) CreateInstance(ctx context.Context, inst *api.WorkflowInstance, created api.WorkflowEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	gates, err := encodeGates(inst.Gates)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_instances (project_id, template_id, template_version, current_stage, status, gates, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (project_id) DO NOTHING`,
		inst.ProjectID,
		inst.TemplateID,
		inst.TemplateVersion,
		inst.CurrentStageID,
		string(inst.Status),
		gates,
		inst.Version,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrDuplicateInstance
	}

	created.ID = 1
	if err := insertEventPostgres(ctx, tx, created); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) GetInstance(ctx context.Context, projectID string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, template_id, template_version, current_stage, status, gates, version
		FROM workflow_instances
		WHERE project_id = $1`,
		projectID,
	)
	return scanInstance(row)
}

func (s *PostgresStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	query := `
		SELECT project_id, template_id, template_version, current_stage, status, gates, version
		FROM workflow_instances`
	var args []any
	var clauses []string

	if filter.TemplateID != "" {
		args = append(args, filter.TemplateID)
		clauses = append(clauses, "template_id = $1")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		if len(args) == 2 {
			clauses = append(clauses, "status = $2")
		} else {
			clauses = append(clauses, "status = $1")
		}
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.WorkflowInstance

	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, projectID string, expectedVersion int64, mutate Mutator) (*api.WorkflowInstance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Row lock serializes concurrent writers on the same project so the
	// version comparison below is race free.
	row := tx.QueryRowContext(ctx, `
		SELECT project_id, template_id, template_version, current_stage, status, gates, version
		FROM workflow_instances
		WHERE project_id = $1
		FOR UPDATE`,
		projectID,
	)
	inst, err := scanInstance(row)
	if err != nil {
		return nil, err
	}
	if inst.Version != expectedVersion {
		return nil, api.ErrVersionConflict
	}

	ev, err := mutate(inst)
	if err != nil {
		return nil, err
	}
	inst.Version = expectedVersion + 1

	gates, err := encodeGates(inst.Gates)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE workflow_instances
		SET current_stage = $1, status = $2, gates = $3, version = $4
		WHERE project_id = $5 AND version = $6`,
		inst.CurrentStageID,
		string(inst.Status),
		gates,
		inst.Version,
		projectID,
		expectedVersion,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, api.ErrVersionConflict
	}

	var nextID int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(event_id), 0) + 1 FROM workflow_events WHERE project_id = $1`,
		projectID,
	).Scan(&nextID)
	if err != nil {
		return nil, err
	}
	ev.ID = nextID

	if err := insertEventPostgres(ctx, tx, *ev); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return inst, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, projectID string, sinceID int64) ([]api.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, event_id, type, from_state, to_state, gate_id, actor, reason, correlation_id, at
		FROM workflow_events
		WHERE project_id = $1 AND event_id > $2
		ORDER BY event_id ASC`,
		projectID, sinceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func insertEventPostgres(ctx context.Context, tx *sql.Tx, ev api.WorkflowEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_events (project_id, event_id, type, from_state, to_state, gate_id, actor, reason, correlation_id, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ProjectID,
		ev.ID,
		string(ev.Type),
		ev.FromState,
		ev.ToState,
		ev.GateID,
		ev.Actor,
		ev.Reason,
		ev.CorrelationID,
		at.UnixNano(),
	)
	return err
}
