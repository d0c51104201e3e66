package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/tmattila/stagegate/pkg/api"
)

// SQLiteStore is an InstanceStore and EventStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var _ InstanceStore = (*SQLiteStore)(nil)

var _ EventStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_instances (
			project_id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			template_version TEXT NOT NULL,
			current_stage TEXT NOT NULL,
			status TEXT NOT NULL,
			gates BLOB NOT NULL,
			version INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS workflow_events (
			project_id TEXT NOT NULL,
			event_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			from_state TEXT NOT NULL DEFAULT '',
			to_state TEXT NOT NULL DEFAULT '',
			gate_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			correlation_id TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL,
			PRIMARY KEY (project_id, event_id)
		);
	`)
	return err
}

func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *api.WorkflowInstance, created api.WorkflowEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM workflow_instances WHERE project_id = ?`, inst.ProjectID,
	).Scan(&exists)
	if err == nil {
		return api.ErrDuplicateInstance
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	gates, err := encodeGates(inst.Gates)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_instances (project_id, template_id, template_version, current_stage, status, gates, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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

	created.ID = 1
	if err := insertEventSQLite(ctx, tx, created); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetInstance(ctx context.Context, projectID string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, template_id, template_version, current_stage, status, gates, version
		FROM workflow_instances
		WHERE project_id = ?`,
		projectID,
	)
	return scanInstance(row)
}

func (s *SQLiteStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	query := `
		SELECT project_id, template_id, template_version, current_stage, status, gates, version
		FROM workflow_instances`
	var args []any
	var clauses []string

	if filter.TemplateID != "" {
		clauses = append(clauses, "template_id = ?")
		args = append(args, filter.TemplateID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
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

func (s *SQLiteStore) CompareAndSwap(ctx context.Context, projectID string, expectedVersion int64, mutate Mutator) (*api.WorkflowInstance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT project_id, template_id, template_version, current_stage, status, gates, version
		FROM workflow_instances
		WHERE project_id = ?`,
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
		SET current_stage = ?, status = ?, gates = ?, version = ?
		WHERE project_id = ? AND version = ?`,
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
		`SELECT COALESCE(MAX(event_id), 0) + 1 FROM workflow_events WHERE project_id = ?`,
		projectID,
	).Scan(&nextID)
	if err != nil {
		return nil, err
	}
	ev.ID = nextID

	if err := insertEventSQLite(ctx, tx, *ev); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return inst, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, projectID string, sinceID int64) ([]api.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, event_id, type, from_state, to_state, gate_id, actor, reason, correlation_id, at
		FROM workflow_events
		WHERE project_id = ? AND event_id > ?
		ORDER BY event_id ASC`,
		projectID, sinceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// rowScanner lets scanInstance work on both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*api.WorkflowInstance, error) {
	var inst api.WorkflowInstance
	var status string
	var gates []byte

	err := row.Scan(
		&inst.ProjectID,
		&inst.TemplateID,
		&inst.TemplateVersion,
		&inst.CurrentStageID,
		&status,
		&gates,
		&inst.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrInstanceNotFound
		}
		return nil, err
	}

	inst.Status = api.InstanceStatus(status)
	inst.Gates, err = decodeGates(gates)
	if err != nil {
		return nil, err
	}

	return &inst, nil
}

func scanEvents(rows *sql.Rows) ([]api.WorkflowEvent, error) {
	var out []api.WorkflowEvent
	for rows.Next() {
		var ev api.WorkflowEvent
		var typ string
		var atN int64

		err := rows.Scan(
			&ev.ProjectID,
			&ev.ID,
			&typ,
			&ev.FromState,
			&ev.ToState,
			&ev.GateID,
			&ev.Actor,
			&ev.Reason,
			&ev.CorrelationID,
			&atN,
		)
		if err != nil {
			return nil, err
		}
		ev.Type = api.EventType(typ)
		ev.At = time.Unix(0, atN)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func insertEventSQLite(ctx context.Context, tx *sql.Tx, ev api.WorkflowEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_events (project_id, event_id, type, from_state, to_state, gate_id, actor, reason, correlation_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
