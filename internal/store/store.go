package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Cycles. Create and update also append the given events in the same
	// transaction, assigning their sequence numbers.
	CreateCycle(ctx context.Context, rec *CycleRecord, events []*Event) error
	GetCycle(ctx context.Context, id string) (*CycleRecord, error)
	UpdateCycle(ctx context.Context, rec *CycleRecord, expectedVersion int64, events []*Event) error
	ListCycles(ctx context.Context, filter CycleFilter) ([]*CycleRecord, error)

	// Event Sourcing (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, cycleID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
