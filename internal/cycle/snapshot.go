package cycle

import (
	"time"

	"github.com/rendis/proact/pkg/schema"
)

// ComponentSnapshot is the persisted form of one stage.
type ComponentSnapshot struct {
	ComponentBase
	Output schema.Output `json:"output"`
}

// Snapshot is the persisted form of a cycle. It carries no pending events.
type Snapshot struct {
	ID            string               `json:"id"`
	SessionID     string               `json:"session_id"`
	ParentCycleID string               `json:"parent_cycle_id,omitempty"`
	BranchPoint   schema.ComponentType `json:"branch_point,omitempty"`
	Branch        BranchInfo           `json:"branch"`
	Status        schema.CycleStatus   `json:"status"`
	CurrentStep   schema.ComponentType `json:"current_step"`
	Components    []ComponentSnapshot  `json:"components"`
	Version       int64                `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Snapshot captures the cycle's state in sequence order.
func (c *Cycle) Snapshot() Snapshot {
	s := Snapshot{
		ID:            c.id,
		SessionID:     c.sessionID,
		ParentCycleID: c.parentCycleID,
		BranchPoint:   c.branchPoint,
		Branch:        c.branch,
		Status:        c.status,
		CurrentStep:   c.currentStep,
		Version:       c.version,
		CreatedAt:     c.createdAt,
		UpdatedAt:     c.updatedAt,
	}
	for _, comp := range c.Components() {
		s.Components = append(s.Components, ComponentSnapshot{
			ComponentBase: comp.ComponentBase,
			Output:        comp.output,
		})
	}
	return s
}

// Restore rebuilds a cycle from a snapshot. All nine stages must be present
// with valid statuses and matching output types. A nil output restores as
// the stage's empty output.
func Restore(s Snapshot) (*Cycle, error) {
	if !s.Status.IsValid() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cycle status %q", s.Status).
			WithField("status").
			WithDetails(map[string]any{"cycle_id": s.ID})
	}
	if !s.CurrentStep.IsValid() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid current step %q", s.CurrentStep).
			WithField("current_step").
			WithDetails(map[string]any{"cycle_id": s.ID})
	}

	c := &Cycle{
		id:            s.ID,
		sessionID:     s.SessionID,
		parentCycleID: s.ParentCycleID,
		branchPoint:   s.BranchPoint,
		branch:        s.Branch,
		status:        s.Status,
		currentStep:   s.CurrentStep,
		components:    make(map[schema.ComponentType]*Component, schema.ComponentCount),
		version:       s.Version,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
	}

	for _, cs := range s.Components {
		if !cs.Type.IsValid() {
			return nil, schema.NewErrorf(schema.ErrCodeComponentNotFound, "unknown component %q", cs.Type).
				WithComponent(cs.Type).
				WithDetails(map[string]any{"cycle_id": s.ID})
		}
		if _, dup := c.components[cs.Type]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "snapshot lists component %s more than once", cs.Type).
				WithComponent(cs.Type).
				WithDetails(map[string]any{"cycle_id": s.ID})
		}
		if !cs.Status.IsValid() {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid component status %q", cs.Status).
				WithComponent(cs.Type).WithField("status")
		}
		out := cs.Output
		if out == nil {
			empty, err := schema.NewOutput(cs.Type)
			if err != nil {
				return nil, err
			}
			out = empty
		}
		if out.ComponentType() != cs.Type {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"output of type %s does not belong to component %s", out.ComponentType(), cs.Type).
				WithComponent(cs.Type).WithField("output")
		}
		c.components[cs.Type] = &Component{ComponentBase: cs.ComponentBase, output: out}
	}

	for _, ct := range schema.ComponentTypes() {
		if _, ok := c.components[ct]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeComponentNotFound, "snapshot is missing component %s", ct).
				WithComponent(ct).
				WithDetails(map[string]any{"cycle_id": s.ID})
		}
	}
	return c, nil
}
