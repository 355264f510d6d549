package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/proact/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/proact.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Cycles ---

const cycleColumns = `id, session_id, parent_cycle_id, branch_point, branch_label, is_root, status, current_step, version, created_at, updated_at`

// CreateCycle inserts a new cycle with all its components at version 1.
func (s *LibSQLStore) CreateCycle(ctx context.Context, rec *CycleRecord, events []*Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec.Version = 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cycles (`+cycleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, nullStr(rec.ParentCycleID), nullStr(string(rec.BranchPoint)),
		nullStr(rec.BranchLabel), rec.IsRoot, string(rec.Status), string(rec.CurrentStep),
		rec.Version, timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "cycle %q already exists", rec.ID).WithCause(err)
		}
		return fmt.Errorf("insert cycle: %w", err)
	}

	if err := upsertComponents(ctx, tx, rec); err != nil {
		return err
	}
	if err := appendEvents(ctx, tx, rec.ID, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		rec.Version = 0
		return fmt.Errorf("commit cycle: %w", err)
	}
	return nil
}

// GetCycle loads a cycle and its components ordered by stage position.
func (s *LibSQLStore) GetCycle(ctx context.Context, id string) (*CycleRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)
	rec, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("cycle", id)
	}
	if err != nil {
		return nil, err
	}
	if rec.Components, err = loadComponents(ctx, s.db, id); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateCycle overwrites a cycle whose stored version equals expectedVersion and
// bumps the version. A mismatch is a CONFLICT; a missing row is NOT_FOUND.
func (s *LibSQLStore) UpdateCycle(ctx context.Context, rec *CycleRecord, expectedVersion int64, events []*Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE cycles SET status = ?, current_step = ?, branch_label = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(rec.Status), string(rec.CurrentStep), nullStr(rec.BranchLabel), timeOrNow(rec.UpdatedAt),
		rec.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM cycles WHERE id = ?`, rec.ID).Scan(&current)
		if err == sql.ErrNoRows {
			return storeNotFound("cycle", rec.ID)
		}
		if err != nil {
			return err
		}
		return schema.NewErrorf(schema.ErrCodeConflict,
			"cycle %q was modified concurrently: expected version %d, found %d", rec.ID, expectedVersion, current).
			WithDetails(map[string]any{"cycle_id": rec.ID, "expected_version": expectedVersion, "version": current})
	}

	if err := upsertComponents(ctx, tx, rec); err != nil {
		return err
	}
	if err := appendEvents(ctx, tx, rec.ID, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}
	rec.Version = expectedVersion + 1
	return nil
}

// ListCycles returns cycles matching the filter, most recently updated first.
func (s *LibSQLStore) ListCycles(ctx context.Context, filter CycleFilter) ([]*CycleRecord, error) {
	var where []string
	var args []any

	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ParentCycleID != "" {
		where = append(where, "parent_cycle_id = ?")
		args = append(args, filter.ParentCycleID)
	}
	if filter.UpdatedBefore != nil {
		where = append(where, "updated_at < ?")
		args = append(args, *filter.UpdatedBefore)
	}

	query := "SELECT " + cycleColumns + " FROM cycles"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var cycles []*CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cycles = append(cycles, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The pool holds a single connection: release it before loading components.
	rows.Close()

	for _, rec := range cycles {
		if rec.Components, err = loadComponents(ctx, s.db, rec.ID); err != nil {
			return nil, err
		}
	}
	return cycles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*CycleRecord, error) {
	rec := &CycleRecord{}
	var (
		parentID, branchPoint, label sql.NullString
		status, currentStep          string
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &parentID, &branchPoint, &label, &rec.IsRoot,
		&status, &currentStep, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.ParentCycleID = parentID.String
	rec.BranchPoint = schema.ComponentType(branchPoint.String)
	rec.BranchLabel = label.String
	rec.Status = schema.CycleStatus(status)
	rec.CurrentStep = schema.ComponentType(currentStep)
	return rec, nil
}

// --- Components ---

func upsertComponents(ctx context.Context, q querier, rec *CycleRecord) error {
	for _, c := range rec.Components {
		_, err := q.ExecContext(ctx,
			`INSERT INTO components (id, cycle_id, component_type, position, status, revision_reason, output, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(cycle_id, component_type) DO UPDATE SET
			   status=excluded.status, revision_reason=excluded.revision_reason,
			   output=excluded.output, updated_at=excluded.updated_at`,
			c.ID, rec.ID, string(c.Type), c.Type.Index(), string(c.Status),
			nullStr(c.RevisionReason), nullRaw(c.Output),
			timeOrNow(c.CreatedAt), timeOrNow(c.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert component %s: %w", c.Type, err)
		}
		c.CycleID = rec.ID
	}
	return nil
}

func loadComponents(ctx context.Context, q querier, cycleID string) ([]*ComponentRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, cycle_id, component_type, status, revision_reason, output, created_at, updated_at
		 FROM components WHERE cycle_id = ? ORDER BY position ASC`, cycleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comps []*ComponentRecord
	for rows.Next() {
		c := &ComponentRecord{}
		var (
			ctype, status  string
			reason, output sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.CycleID, &ctype, &status, &reason, &output, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Type = schema.ComponentType(ctype)
		c.Status = schema.ComponentStatus(status)
		c.RevisionReason = reason.String
		c.Output = rawOrNil(output)
		comps = append(comps, c)
	}
	return comps, rows.Err()
}

// --- Events ---

// AppendEvent appends a single event outside of a cycle write.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := appendEvents(ctx, tx, event.CycleID, []*Event{event}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// appendEvents assigns consecutive sequence numbers and inserts the events.
func appendEvents(ctx context.Context, q querier, cycleID string, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	var seq int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE cycle_id = ?`, cycleID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}

	for _, e := range events {
		seq++
		e.CycleID = cycleID
		e.Sequence = seq
		e.Timestamp = timeOrNow(e.Timestamp)
		res, err := q.ExecContext(ctx,
			`INSERT INTO events (cycle_id, component_type, event_type, payload, timestamp, sequence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			cycleID, nullStr(string(e.Component)), e.Type, nullRaw(e.Payload), e.Timestamp, seq,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			e.ID = id
		}
	}
	return nil
}

// GetEvents returns events for a cycle with sequence > since, ordered by sequence.
func (s *LibSQLStore) GetEvents(ctx context.Context, cycleID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cycle_id, component_type, event_type, payload, timestamp, sequence
		 FROM events WHERE cycle_id = ? AND sequence > ? ORDER BY sequence ASC`,
		cycleID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsByType returns events of one type, newest first.
func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	where := []string{"event_type = ?"}
	args := []any{eventType}

	if filter.CycleID != "" {
		where = append(where, "cycle_id = ?")
		args = append(args, filter.CycleID)
	}
	if filter.Component != "" {
		where = append(where, "component_type = ?")
		args = append(args, string(filter.Component))
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, cycle_id, component_type, event_type, payload, timestamp, sequence FROM events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var component, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.CycleID, &component, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Component = schema.ComponentType(component.String)
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.ProactError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
