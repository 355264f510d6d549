package cycle

import (
	"time"

	"github.com/rendis/proact/pkg/schema"
)

// Event is a domain event recorded by a Cycle mutation.
// Type is one of the schema.Event* constants.
type Event struct {
	Type       string               `json:"event_type"`
	CycleID    string               `json:"cycle_id"`
	Component  schema.ComponentType `json:"component,omitempty"`
	Data       map[string]any       `json:"data,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func (c *Cycle) record(eventType string, ct schema.ComponentType, data map[string]any) {
	c.events = append(c.events, Event{
		Type:       eventType,
		CycleID:    c.id,
		Component:  ct,
		Data:       data,
		OccurredAt: c.updatedAt,
	})
}

// PendingEvents returns a copy of the events not yet drained.
func (c *Cycle) PendingEvents() []Event {
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// DrainEvents returns and clears the pending events.
func (c *Cycle) DrainEvents() []Event {
	out := c.events
	c.events = nil
	return out
}
