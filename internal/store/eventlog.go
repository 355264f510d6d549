package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/proact/pkg/schema"
)

// EventLog provides event-sourcing reads on top of a Store.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to provide replay.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// ReplayState is the cycle state reconstructed purely from its event log.
type ReplayState struct {
	CycleID     string                                          `json:"cycle_id"`
	Status      schema.CycleStatus                              `json:"status"`
	CurrentStep schema.ComponentType                            `json:"current_step"`
	Components  map[schema.ComponentType]schema.ComponentStatus `json:"components"`
	LastSeq     int64                                           `json:"last_sequence"`
}

// GetEvents returns events for a cycle with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, cycleID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, cycleID, since)
}

// ReplayEvents folds all events of a cycle into a ReplayState.
// Returns a STORE_ERROR if sequence gaps are detected.
func (el *EventLog) ReplayEvents(ctx context.Context, cycleID string) (*ReplayState, error) {
	events, err := el.store.GetEvents(ctx, cycleID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in cycle %s: expected %d, got %d", cycleID, expected, e.Sequence)
		}
	}

	state := &ReplayState{
		CycleID:     cycleID,
		Status:      schema.CycleStatusActive,
		CurrentStep: schema.ComponentIssueRaising,
		Components:  make(map[schema.ComponentType]schema.ComponentStatus, schema.ComponentCount),
	}
	for _, ct := range schema.ComponentTypes() {
		state.Components[ct] = schema.ComponentStatusNotStarted
	}

	for _, e := range events {
		state.LastSeq = e.Sequence
		switch e.Type {
		case schema.EventComponentStarted:
			state.Components[e.Component] = schema.ComponentStatusInProgress
			state.CurrentStep = e.Component

		case schema.EventComponentCompleted:
			state.Components[e.Component] = schema.ComponentStatusComplete

		case schema.EventComponentMarkedForRevision:
			state.Components[e.Component] = schema.ComponentStatusNeedsRevision
			state.CurrentStep = e.Component

		case schema.EventCycleNavigated:
			state.CurrentStep = e.Component

		case schema.EventCycleBranched:
			var p struct {
				Statuses map[schema.ComponentType]schema.ComponentStatus `json:"statuses"`
			}
			if len(e.Payload) > 0 {
				if err := json.Unmarshal(e.Payload, &p); err != nil {
					return nil, schema.NewErrorf(schema.ErrCodeStore,
						"decode branch payload at sequence %d: %s", e.Sequence, err.Error()).WithCause(err)
				}
			}
			for ct, st := range p.Statuses {
				state.Components[ct] = st
			}
			state.CurrentStep = e.Component

		case schema.EventCycleCompleted:
			state.Status = schema.CycleStatusCompleted

		case schema.EventCycleArchived:
			state.Status = schema.CycleStatusArchived

		case schema.EventCycleCreated, schema.EventComponentOutputUpdated:
			// no status change
		}
	}

	return state, nil
}
