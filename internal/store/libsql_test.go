package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/proact/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func newCycleRecord(sessionID string) *CycleRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &CycleRecord{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		IsRoot:      true,
		Status:      schema.CycleStatusActive,
		CurrentStep: schema.ComponentIssueRaising,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, ct := range schema.ComponentTypes() {
		rec.Components = append(rec.Components, &ComponentRecord{
			ID:        uuid.New().String(),
			Type:      ct,
			Status:    schema.ComponentStatusNotStarted,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return rec
}

func seedCycle(t *testing.T, s *LibSQLStore, sessionID string) *CycleRecord {
	t.Helper()
	rec := newCycleRecord(sessionID)
	require.NoError(t, s.CreateCycle(context.Background(), rec, []*Event{
		{Type: schema.EventCycleCreated},
	}))
	return rec
}

func requireStoreCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, code), "expected %s, got %v", code, err)
}

// --- Migrations ---

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion(), v)
}

func TestSplitStatements_SkipsComments(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n-- only a comment\n;\nCREATE TABLE b (y INT);")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Equal(t, "CREATE TABLE b (y INT)", stmts[1])
}

// --- Cycles ---

func TestCreateAndGetCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newCycleRecord("session-1")
	rec.Components[0].Status = schema.ComponentStatusInProgress
	rec.Components[0].Output = json.RawMessage(`{"potential_decisions":["relocate"]}`)
	require.NoError(t, s.CreateCycle(ctx, rec, nil))
	assert.Equal(t, int64(1), rec.Version)

	got, err := s.GetCycle(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "session-1", got.SessionID)
	assert.True(t, got.IsRoot)
	assert.Equal(t, schema.CycleStatusActive, got.Status)
	assert.Equal(t, schema.ComponentIssueRaising, got.CurrentStep)
	assert.Equal(t, int64(1), got.Version)
	assert.Empty(t, got.ParentCycleID)

	require.Len(t, got.Components, schema.ComponentCount)
	for i, c := range got.Components {
		assert.Equal(t, schema.ComponentTypes()[i], c.Type)
		assert.Equal(t, rec.ID, c.CycleID)
	}
	assert.Equal(t, schema.ComponentStatusInProgress, got.Components[0].Status)
	assert.JSONEq(t, `{"potential_decisions":["relocate"]}`, string(got.Components[0].Output))
	assert.Nil(t, got.Components[1].Output)
}

func TestCreateCycle_Duplicate(t *testing.T) {
	s := newTestStore(t)
	rec := seedCycle(t, s, "s")

	dup := newCycleRecord("s")
	dup.ID = rec.ID
	requireStoreCode(t, s.CreateCycle(context.Background(), dup, nil), schema.ErrCodeConflict)
}

func TestGetCycle_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCycle(context.Background(), "nonexistent")
	requireStoreCode(t, err, schema.ErrCodeNotFound)
}

func TestCreateCycle_Branch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := seedCycle(t, s, "s")

	branch := newCycleRecord("s")
	branch.ParentCycleID = parent.ID
	branch.BranchPoint = schema.ComponentObjectives
	branch.BranchLabel = "cheaper"
	branch.IsRoot = false
	require.NoError(t, s.CreateCycle(ctx, branch, nil))

	got, err := s.GetCycle(ctx, branch.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, got.ParentCycleID)
	assert.Equal(t, schema.ComponentObjectives, got.BranchPoint)
	assert.Equal(t, "cheaper", got.BranchLabel)
	assert.False(t, got.IsRoot)
}

func TestUpdateCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedCycle(t, s, "s")

	rec.Components[0].Status = schema.ComponentStatusNeedsRevision
	rec.Components[0].RevisionReason = "rethink"
	rec.CurrentStep = schema.ComponentIssueRaising
	require.NoError(t, s.UpdateCycle(ctx, rec, 1, []*Event{
		{Type: schema.EventComponentMarkedForRevision, Component: schema.ComponentIssueRaising},
	}))
	assert.Equal(t, int64(2), rec.Version)

	got, err := s.GetCycle(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, schema.ComponentStatusNeedsRevision, got.Components[0].Status)
	assert.Equal(t, "rethink", got.Components[0].RevisionReason)

	events, err := s.GetEvents(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[1].Sequence)
}

func TestUpdateCycle_VersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedCycle(t, s, "s")

	first := *rec
	require.NoError(t, s.UpdateCycle(ctx, &first, 1, nil))

	stale := *rec
	stale.Status = schema.CycleStatusArchived
	err := s.UpdateCycle(ctx, &stale, 1, []*Event{{Type: schema.EventCycleArchived}})
	requireStoreCode(t, err, schema.ErrCodeConflict)

	// the rejected write left no trace
	got, err := s.GetCycle(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.CycleStatusActive, got.Status)
	events, err := s.GetEvents(ctx, rec.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestUpdateCycle_NotFound(t *testing.T) {
	s := newTestStore(t)
	rec := newCycleRecord("s")
	requireStoreCode(t, s.UpdateCycle(context.Background(), rec, 1, nil), schema.ErrCodeNotFound)
}

func TestUpdateCycle_ConcurrentWritersOneWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedCycle(t, s, "s")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *rec
			err := s.UpdateCycle(ctx, &cp, 1, nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if schema.HasCode(err, schema.ErrCodeConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 4, conflicts)
}

func TestListCycles_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedCycle(t, s, "alpha")
	seedCycle(t, s, "alpha")
	seedCycle(t, s, "beta")

	a.Status = schema.CycleStatusCompleted
	require.NoError(t, s.UpdateCycle(ctx, a, 1, nil))

	all, err := s.ListCycles(ctx, CycleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, c := range all {
		assert.Len(t, c.Components, schema.ComponentCount)
	}

	alpha, err := s.ListCycles(ctx, CycleFilter{SessionID: "alpha"})
	require.NoError(t, err)
	assert.Len(t, alpha, 2)

	completed := schema.CycleStatusCompleted
	done, err := s.ListCycles(ctx, CycleFilter{Status: &completed})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, a.ID, done[0].ID)

	limited, err := s.ListCycles(ctx, CycleFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListCycles_UpdatedBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := newCycleRecord("s")
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	old.UpdatedAt = old.CreatedAt
	require.NoError(t, s.CreateCycle(ctx, old, nil))
	seedCycle(t, s, "s")

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	got, err := s.ListCycles(ctx, CycleFilter{UpdatedBefore: &cutoff})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old.ID, got[0].ID)
}

// --- Events ---

func TestAppendEvent_Sequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedCycle(t, s, "s")

	for i := 0; i < 3; i++ {
		e := &Event{CycleID: rec.ID, Type: schema.EventCycleNavigated, Component: schema.ComponentIssueRaising}
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.Equal(t, int64(i+2), e.Sequence)
		assert.NotZero(t, e.ID)
	}

	since, err := s.GetEvents(ctx, rec.ID, 2)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, int64(3), since[0].Sequence)
	assert.Equal(t, schema.ComponentIssueRaising, since[0].Component)
}

func TestGetEventsByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedCycle(t, s, "s")
	b := seedCycle(t, s, "s")

	require.NoError(t, s.AppendEvent(ctx, &Event{
		CycleID: a.ID, Type: schema.EventComponentStarted, Component: schema.ComponentIssueRaising,
		Payload: json.RawMessage(`{"k":"v"}`),
	}))
	require.NoError(t, s.AppendEvent(ctx, &Event{
		CycleID: b.ID, Type: schema.EventComponentStarted, Component: schema.ComponentIssueRaising,
	}))

	created, err := s.GetEventsByType(ctx, schema.EventCycleCreated, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	started, err := s.GetEventsByType(ctx, schema.EventComponentStarted, EventFilter{CycleID: a.ID})
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.JSONEq(t, `{"k":"v"}`, string(started[0].Payload))

	limited, err := s.GetEventsByType(ctx, schema.EventComponentStarted, EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}
