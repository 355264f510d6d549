package streaming

import (
	"context"
	"time"
)

// StreamEvent is a cycle event pushed to live subscribers after it has been
// persisted.
type StreamEvent struct {
	CycleID   string    `json:"cycle_id"`
	SessionID string    `json:"session_id,omitempty"`
	Component string    `json:"component,omitempty"`
	EventType string    `json:"event_type"`
	Sequence  int64     `json:"sequence"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	CycleID    string   `json:"cycle_id,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	Components []string `json:"components,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time cycle events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
