package cycle

import (
	"time"

	"github.com/rendis/proact/pkg/schema"
)

// ComponentBase holds the lifecycle fields shared by every stage.
type ComponentBase struct {
	ID        string                 `json:"id"`
	Type      schema.ComponentType   `json:"component_type"`
	Status    schema.ComponentStatus `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	// RevisionReason is set only while Status is needs_revision.
	RevisionReason string `json:"revision_reason,omitempty"`
}

// Component is one stage instance: a lifecycle record plus the stage's output.
// It knows nothing about other stages or its owning cycle.
type Component struct {
	ComponentBase
	output schema.Output
}

func newComponent(ct schema.ComponentType, at time.Time) *Component {
	out, _ := schema.NewOutput(ct)
	return &Component{
		ComponentBase: ComponentBase{
			ID:        newID(),
			Type:      ct,
			Status:    schema.ComponentStatusNotStarted,
			CreatedAt: at,
			UpdatedAt: at,
		},
		output: out,
	}
}

// Output returns the stage's structured output. It is never nil.
func (c Component) Output() schema.Output {
	return c.output
}

func (c *Component) start(at time.Time) error {
	if c.Status != schema.ComponentStatusNotStarted {
		return invalidComponentTransition(c.Type, c.Status, schema.ComponentStatusInProgress)
	}
	c.Status = schema.ComponentStatusInProgress
	c.UpdatedAt = at
	return nil
}

func (c *Component) complete(at time.Time) error {
	if !CanTransitionComponent(c.Status, schema.ComponentStatusComplete) {
		return invalidComponentTransition(c.Type, c.Status, schema.ComponentStatusComplete)
	}
	c.Status = schema.ComponentStatusComplete
	c.UpdatedAt = at
	return nil
}

// markForRevision is allowed from in_progress as well as complete: reopening
// an unfinished stage for rework is a revision, not a table edge.
func (c *Component) markForRevision(reason string, at time.Time) error {
	if c.Status != schema.ComponentStatusInProgress && c.Status != schema.ComponentStatusComplete {
		return invalidComponentTransition(c.Type, c.Status, schema.ComponentStatusNeedsRevision)
	}
	c.Status = schema.ComponentStatusNeedsRevision
	c.RevisionReason = reason
	c.UpdatedAt = at
	return nil
}

func (c *Component) reopen(at time.Time) error {
	if c.Status != schema.ComponentStatusNeedsRevision {
		return invalidComponentTransition(c.Type, c.Status, schema.ComponentStatusInProgress)
	}
	c.Status = schema.ComponentStatusInProgress
	c.RevisionReason = ""
	c.UpdatedAt = at
	return nil
}

func (c *Component) setOutput(out schema.Output, at time.Time) error {
	if out == nil {
		return schema.NewError(schema.ErrCodeValidation, "output is required").
			WithComponent(c.Type).WithField("output")
	}
	if out.ComponentType() != c.Type {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"output of type %s does not belong to component %s", out.ComponentType(), c.Type).
			WithComponent(c.Type).WithField("output")
	}
	c.output = out
	c.UpdatedAt = at
	return nil
}

// clone returns a deep copy keeping identity and timestamps.
func (c *Component) clone() (*Component, error) {
	out, err := schema.CloneOutput(c.output)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "clone %s output: %s", c.Type, err.Error()).
			WithComponent(c.Type).WithCause(err)
	}
	return &Component{ComponentBase: c.ComponentBase, output: out}, nil
}
