package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/proact/pkg/schema"
)

// CycleRecord is the persisted representation of a decision cycle.
type CycleRecord struct {
	ID            string               `json:"id"`
	SessionID     string               `json:"session_id"`
	ParentCycleID string               `json:"parent_cycle_id,omitempty"`
	BranchPoint   schema.ComponentType `json:"branch_point,omitempty"`
	BranchLabel   string               `json:"branch_label,omitempty"`
	IsRoot        bool                 `json:"is_root"`
	Status        schema.CycleStatus   `json:"status"`
	CurrentStep   schema.ComponentType `json:"current_step"`
	Version       int64                `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Components    []*ComponentRecord   `json:"components"`
}

// ComponentRecord is the persisted representation of one stage instance.
// Output holds the stage payload as JSON.
type ComponentRecord struct {
	ID             string                 `json:"id"`
	CycleID        string                 `json:"cycle_id"`
	Type           schema.ComponentType   `json:"component_type"`
	Status         schema.ComponentStatus `json:"status"`
	RevisionReason string                 `json:"revision_reason,omitempty"`
	Output         json.RawMessage        `json:"output,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Event is an immutable entry in the cycle event log.
type Event struct {
	ID        int64                `json:"id"`
	CycleID   string               `json:"cycle_id"`
	Component schema.ComponentType `json:"component,omitempty"`
	Type      string               `json:"event_type"`
	Payload   json.RawMessage      `json:"payload,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Sequence  int64                `json:"sequence"`
}

// CycleFilter narrows ListCycles results. Zero values are ignored.
type CycleFilter struct {
	SessionID     string
	Status        *schema.CycleStatus
	ParentCycleID string
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}

// EventFilter narrows GetEventsByType results.
type EventFilter struct {
	CycleID   string
	Component schema.ComponentType
	Since     *time.Time
	Limit     int
}
