package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/proact/pkg/schema"
)

func newTestEventLog(t *testing.T) (*EventLog, *LibSQLStore) {
	t.Helper()
	s := newTestStore(t)
	return NewEventLog(s), s
}

func appendAll(t *testing.T, s *LibSQLStore, cycleID string, events ...*Event) {
	t.Helper()
	for _, e := range events {
		e.CycleID = cycleID
		require.NoError(t, s.AppendEvent(context.Background(), e))
	}
}

func TestEventLog_ReplayFreshCycle(t *testing.T) {
	el, s := newTestEventLog(t)
	rec := seedCycle(t, s, "s")

	state, err := el.ReplayEvents(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.CycleStatusActive, state.Status)
	assert.Equal(t, schema.ComponentIssueRaising, state.CurrentStep)
	assert.Len(t, state.Components, schema.ComponentCount)
	assert.Equal(t, int64(1), state.LastSeq)
}

func TestEventLog_ReplayLifecycle(t *testing.T) {
	el, s := newTestEventLog(t)
	rec := seedCycle(t, s, "s")

	appendAll(t, s, rec.ID,
		&Event{Type: schema.EventComponentStarted, Component: schema.ComponentIssueRaising},
		&Event{Type: schema.EventComponentOutputUpdated, Component: schema.ComponentIssueRaising},
		&Event{Type: schema.EventComponentCompleted, Component: schema.ComponentIssueRaising},
		&Event{Type: schema.EventComponentStarted, Component: schema.ComponentProblemFrame},
		&Event{Type: schema.EventComponentMarkedForRevision, Component: schema.ComponentIssueRaising},
		&Event{Type: schema.EventCycleNavigated, Component: schema.ComponentProblemFrame},
		&Event{Type: schema.EventCycleArchived},
	)

	state, err := el.ReplayEvents(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.CycleStatusArchived, state.Status)
	assert.Equal(t, schema.ComponentProblemFrame, state.CurrentStep)
	assert.Equal(t, schema.ComponentStatusNeedsRevision, state.Components[schema.ComponentIssueRaising])
	assert.Equal(t, schema.ComponentStatusInProgress, state.Components[schema.ComponentProblemFrame])
	assert.Equal(t, schema.ComponentStatusNotStarted, state.Components[schema.ComponentObjectives])
	assert.Equal(t, int64(8), state.LastSeq)
}

func TestEventLog_ReplayBranchSeedsStatuses(t *testing.T) {
	el, s := newTestEventLog(t)
	rec := newCycleRecord("s")
	payload, err := json.Marshal(map[string]any{
		"parent_cycle_id": "parent",
		"statuses": map[string]string{
			"issue_raising": "complete",
			"problem_frame": "needs_revision",
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.CreateCycle(context.Background(), rec, []*Event{
		{Type: schema.EventCycleBranched, Component: schema.ComponentProblemFrame, Payload: payload},
	}))

	state, err := el.ReplayEvents(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ComponentProblemFrame, state.CurrentStep)
	assert.Equal(t, schema.ComponentStatusComplete, state.Components[schema.ComponentIssueRaising])
	assert.Equal(t, schema.ComponentStatusNeedsRevision, state.Components[schema.ComponentProblemFrame])
}

func TestEventLog_ReplayDetectsGap(t *testing.T) {
	el, s := newTestEventLog(t)
	rec := seedCycle(t, s, "s")
	appendAll(t, s, rec.ID,
		&Event{Type: schema.EventComponentStarted, Component: schema.ComponentIssueRaising},
		&Event{Type: schema.EventComponentCompleted, Component: schema.ComponentIssueRaising},
	)

	_, err := s.DB().ExecContext(context.Background(),
		`DELETE FROM events WHERE cycle_id = ? AND sequence = 2`, rec.ID)
	require.NoError(t, err)

	_, err = el.ReplayEvents(context.Background(), rec.ID)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
	assert.Contains(t, err.Error(), "sequence gap")
}

func TestEventLog_GetEventsDelegates(t *testing.T) {
	el, s := newTestEventLog(t)
	rec := seedCycle(t, s, "s")

	events, err := el.GetEvents(context.Background(), rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventCycleCreated, events[0].Type)
}
