package cycle

import (
	"github.com/rendis/proact/pkg/schema"
)

// ValidComponentTransitions defines the allowed status transitions for a stage.
var ValidComponentTransitions = map[schema.ComponentStatus][]schema.ComponentStatus{
	schema.ComponentStatusNotStarted:    {schema.ComponentStatusInProgress},
	schema.ComponentStatusInProgress:    {schema.ComponentStatusComplete},
	schema.ComponentStatusComplete:      {schema.ComponentStatusNeedsRevision},
	schema.ComponentStatusNeedsRevision: {schema.ComponentStatusInProgress},
}

// ValidCycleTransitions defines the allowed status transitions for a cycle.
var ValidCycleTransitions = map[schema.CycleStatus][]schema.CycleStatus{
	schema.CycleStatusActive:    {schema.CycleStatusCompleted, schema.CycleStatusArchived},
	schema.CycleStatusCompleted: {schema.CycleStatusArchived},
	schema.CycleStatusArchived:  {},
}

// CanTransitionComponent reports whether a stage may move from one status to another.
func CanTransitionComponent(from, to schema.ComponentStatus) bool {
	allowed, ok := ValidComponentTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

// CanTransitionCycle reports whether a cycle may move from one status to another.
func CanTransitionCycle(from, to schema.CycleStatus) bool {
	allowed, ok := ValidCycleTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func invalidComponentTransition(ct schema.ComponentType, from, to schema.ComponentStatus) *schema.ProactError {
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid component transition: %s -> %s", from, to).
		WithComponent(ct).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func invalidCycleTransition(cycleID string, from, to schema.CycleStatus) *schema.ProactError {
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid cycle transition: %s -> %s", from, to).
		WithDetails(map[string]any{"cycle_id": cycleID, "from": string(from), "to": string(to)})
}
