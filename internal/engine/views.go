package engine

import (
	"time"

	"github.com/rendis/proact/internal/cycle"
	"github.com/rendis/proact/internal/store"
	"github.com/rendis/proact/pkg/schema"
)

// CycleView is the full document of a cycle returned to callers.
type CycleView struct {
	cycle.Snapshot
	Progress cycle.Progress `json:"progress"`
}

func newCycleView(c *cycle.Cycle) *CycleView {
	return &CycleView{Snapshot: c.Snapshot(), Progress: c.Progress()}
}

// CycleSummary is the listing form of a cycle: lineage, status and progress
// without stage outputs.
type CycleSummary struct {
	ID            string               `json:"id"`
	SessionID     string               `json:"session_id"`
	ParentCycleID string               `json:"parent_cycle_id,omitempty"`
	BranchPoint   schema.ComponentType `json:"branch_point,omitempty"`
	BranchLabel   string               `json:"branch_label,omitempty"`
	IsRoot        bool                 `json:"is_root"`
	Status        schema.CycleStatus   `json:"status"`
	CurrentStep   schema.ComponentType `json:"current_step"`
	Version       int64                `json:"version"`
	Progress      cycle.Progress       `json:"progress"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func summaryFromRecord(rec *store.CycleRecord) *CycleSummary {
	statuses := make(map[schema.ComponentType]schema.ComponentStatus, len(rec.Components))
	for _, cr := range rec.Components {
		statuses[cr.Type] = cr.Status
	}
	return &CycleSummary{
		ID:            rec.ID,
		SessionID:     rec.SessionID,
		ParentCycleID: rec.ParentCycleID,
		BranchPoint:   rec.BranchPoint,
		BranchLabel:   rec.BranchLabel,
		IsRoot:        rec.IsRoot,
		Status:        rec.Status,
		CurrentStep:   rec.CurrentStep,
		Version:       rec.Version,
		Progress:      cycle.NewProgress(statuses),
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func summaryFromCycle(c *cycle.Cycle) *CycleSummary {
	parent, _ := c.ParentCycleID()
	bp, _ := c.BranchPoint()
	return &CycleSummary{
		ID:            c.ID(),
		SessionID:     c.SessionID(),
		ParentCycleID: parent,
		BranchPoint:   bp,
		BranchLabel:   c.Branch().Label,
		IsRoot:        c.Branch().IsRoot,
		Status:        c.Status(),
		CurrentStep:   c.CurrentStep(),
		Version:       c.Version(),
		Progress:      c.Progress(),
		CreatedAt:     c.CreatedAt(),
		UpdatedAt:     c.UpdatedAt(),
	}
}

// ListOptions narrows ListCycles. Where is an optional Expr boolean evaluated
// against each CycleSummary, e.g. `progress.percent_complete >= 50`.
type ListOptions struct {
	SessionID     string
	Status        schema.CycleStatus
	ParentCycleID string
	Where         string
	Limit         int
	Offset        int
}

// DiagramFormat selects the rendering returned by Diagram.
type DiagramFormat string

const (
	DiagramMermaid DiagramFormat = "mermaid"
	DiagramASCII   DiagramFormat = "ascii"
	DiagramPNG     DiagramFormat = "png"
	DiagramSVG     DiagramFormat = "svg"
)

// IsText reports whether the format renders to text rather than image bytes.
func (f DiagramFormat) IsText() bool {
	return f == DiagramMermaid || f == DiagramASCII || f == ""
}
