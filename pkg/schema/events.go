package schema

// Event type constants for the cycle event log.
const (
	EventCycleCreated   = "cycle.created"
	EventCycleBranched  = "cycle.branched"
	EventCycleNavigated = "cycle.navigated"
	EventCycleCompleted = "cycle.completed"
	EventCycleArchived  = "cycle.archived"

	EventComponentStarted           = "component.started"
	EventComponentCompleted         = "component.completed"
	EventComponentOutputUpdated     = "component.output_updated"
	EventComponentMarkedForRevision = "component.marked_for_revision"
)

// IsEventType reports whether t is one of the event types above.
func IsEventType(t string) bool {
	switch t {
	case EventCycleCreated, EventCycleBranched, EventCycleNavigated, EventCycleCompleted, EventCycleArchived,
		EventComponentStarted, EventComponentCompleted, EventComponentOutputUpdated, EventComponentMarkedForRevision:
		return true
	}
	return false
}

// CycleStatus represents the lifecycle state of a decision cycle.
type CycleStatus string

const (
	CycleStatusActive    CycleStatus = "active"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusArchived  CycleStatus = "archived"
)

// IsMutable reports whether stages of a cycle in this status may change.
func (s CycleStatus) IsMutable() bool {
	return s == CycleStatusActive
}

// IsValid reports whether s is a known cycle status.
func (s CycleStatus) IsValid() bool {
	switch s {
	case CycleStatusActive, CycleStatusCompleted, CycleStatusArchived:
		return true
	}
	return false
}

// ComponentStatus represents the lifecycle state of a single stage.
type ComponentStatus string

const (
	ComponentStatusNotStarted    ComponentStatus = "not_started"
	ComponentStatusInProgress    ComponentStatus = "in_progress"
	ComponentStatusComplete      ComponentStatus = "complete"
	ComponentStatusNeedsRevision ComponentStatus = "needs_revision"
)

// IsStarted reports whether the stage has ever been started.
func (s ComponentStatus) IsStarted() bool {
	return s == ComponentStatusInProgress || s == ComponentStatusComplete || s == ComponentStatusNeedsRevision
}

// AcceptsOutput reports whether the stage may receive output or be completed.
func (s ComponentStatus) AcceptsOutput() bool {
	return s == ComponentStatusInProgress || s == ComponentStatusNeedsRevision
}

// IsValid reports whether s is a known component status.
func (s ComponentStatus) IsValid() bool {
	switch s {
	case ComponentStatusNotStarted, ComponentStatusInProgress, ComponentStatusComplete, ComponentStatusNeedsRevision:
		return true
	}
	return false
}
