package engine

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/proact/internal/cycle"
	"github.com/rendis/proact/internal/store"
	"github.com/rendis/proact/pkg/schema"
)

// toRecord flattens a cycle into its persisted form. Outputs become JSON.
func toRecord(c *cycle.Cycle) (*store.CycleRecord, error) {
	snap := c.Snapshot()
	rec := &store.CycleRecord{
		ID:            snap.ID,
		SessionID:     snap.SessionID,
		ParentCycleID: snap.ParentCycleID,
		BranchPoint:   snap.BranchPoint,
		BranchLabel:   snap.Branch.Label,
		IsRoot:        snap.Branch.IsRoot,
		Status:        snap.Status,
		CurrentStep:   snap.CurrentStep,
		Version:       snap.Version,
		CreatedAt:     snap.CreatedAt,
		UpdatedAt:     snap.UpdatedAt,
		Components:    make([]*store.ComponentRecord, 0, len(snap.Components)),
	}
	for _, cs := range snap.Components {
		raw, err := json.Marshal(cs.Output)
		if err != nil {
			return nil, fmt.Errorf("marshal %s output: %w", cs.Type, err)
		}
		rec.Components = append(rec.Components, &store.ComponentRecord{
			ID:             cs.ID,
			CycleID:        snap.ID,
			Type:           cs.Type,
			Status:         cs.Status,
			RevisionReason: cs.RevisionReason,
			Output:         raw,
			CreatedAt:      cs.CreatedAt,
			UpdatedAt:      cs.UpdatedAt,
		})
	}
	return rec, nil
}

// fromRecord rebuilds the aggregate from a stored record.
func fromRecord(rec *store.CycleRecord) (*cycle.Cycle, error) {
	snap := cycle.Snapshot{
		ID:            rec.ID,
		SessionID:     rec.SessionID,
		ParentCycleID: rec.ParentCycleID,
		BranchPoint:   rec.BranchPoint,
		Branch:        cycle.BranchInfo{Label: rec.BranchLabel, IsRoot: rec.IsRoot},
		Status:        rec.Status,
		CurrentStep:   rec.CurrentStep,
		Version:       rec.Version,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		Components:    make([]cycle.ComponentSnapshot, 0, len(rec.Components)),
	}
	for _, cr := range rec.Components {
		out, err := schema.DecodeOutput(cr.Type, cr.Output)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "stored %s output of cycle %s is corrupt", cr.Type, rec.ID).
				WithComponent(cr.Type).WithCause(err)
		}
		snap.Components = append(snap.Components, cycle.ComponentSnapshot{
			ComponentBase: cycle.ComponentBase{
				ID:             cr.ID,
				Type:           cr.Type,
				Status:         cr.Status,
				CreatedAt:      cr.CreatedAt,
				UpdatedAt:      cr.UpdatedAt,
				RevisionReason: cr.RevisionReason,
			},
			Output: out,
		})
	}
	return cycle.Restore(snap)
}

// toStoreEvents converts drained domain events into log entries.
func toStoreEvents(events []cycle.Event) ([]*store.Event, error) {
	out := make([]*store.Event, 0, len(events))
	for _, e := range events {
		var payload json.RawMessage
		if len(e.Data) > 0 {
			raw, err := json.Marshal(e.Data)
			if err != nil {
				return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
			}
			payload = raw
		}
		out = append(out, &store.Event{
			CycleID:   e.CycleID,
			Component: e.Component,
			Type:      e.Type,
			Payload:   payload,
			Timestamp: e.OccurredAt,
		})
	}
	return out, nil
}
