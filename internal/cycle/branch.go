package cycle

import (
	"fmt"

	"github.com/rendis/proact/pkg/schema"
)

// BranchRevisionReason is the revision reason set on a branch's branch-point stage.
const BranchRevisionReason = "Branched for alternative exploration"

// branchTreatment says what happens to a stage when a cycle is branched.
type branchTreatment int

const (
	branchCopy  branchTreatment = iota // before the branch point: copied unchanged
	branchPatch                        // the branch point: copied, forced to needs_revision
	branchFresh                        // after the branch point: new, not started
)

func treatmentFor(ct, branchPoint schema.ComponentType) branchTreatment {
	switch {
	case ct.Before(branchPoint):
		return branchCopy
	case ct == branchPoint:
		return branchPatch
	default:
		return branchFresh
	}
}

// BranchAt forks a new active cycle from this one at branchPoint. The source
// cycle is read, never mutated, and records no events.
func (c *Cycle) BranchAt(branchPoint schema.ComponentType, label string) (*Cycle, error) {
	if err := c.ensureActive(); err != nil {
		return nil, err
	}
	bp, err := c.component(branchPoint)
	if err != nil {
		return nil, err
	}
	if !bp.Status.IsStarted() {
		return nil, schema.NewErrorf(schema.ErrCodeCannotBranch,
			"cannot branch at %s: component was never started", branchPoint).
			WithComponent(branchPoint).
			WithDetails(map[string]any{"cycle_id": c.id, "status": string(bp.Status)})
	}
	if label == "" {
		label = fmt.Sprintf("Branch from %s", branchPoint.Label())
	}

	at := now()
	components := make(map[schema.ComponentType]*Component, schema.ComponentCount)
	for _, ct := range schema.ComponentTypes() {
		src, err := c.component(ct)
		if err != nil {
			return nil, err
		}
		switch treatmentFor(ct, branchPoint) {
		case branchCopy:
			copied, err := src.clone()
			if err != nil {
				return nil, err
			}
			copied.ID = newID()
			components[ct] = copied
		case branchPatch:
			patched, err := src.clone()
			if err != nil {
				return nil, err
			}
			patched.ID = newID()
			patched.Status = schema.ComponentStatusNeedsRevision
			patched.RevisionReason = BranchRevisionReason
			patched.UpdatedAt = at
			components[ct] = patched
		case branchFresh:
			components[ct] = newComponent(ct, at)
		}
	}

	branch := &Cycle{
		id:            newID(),
		sessionID:     c.sessionID,
		parentCycleID: c.id,
		branchPoint:   branchPoint,
		branch:        BranchInfo{Label: label, IsRoot: false},
		status:        schema.CycleStatusActive,
		currentStep:   branchPoint,
		components:    components,
		createdAt:     at,
		updatedAt:     at,
	}
	statuses := make(map[string]any, len(components))
	for ct, comp := range components {
		statuses[string(ct)] = string(comp.Status)
	}
	branch.record(schema.EventCycleBranched, branchPoint, map[string]any{
		"parent_cycle_id": c.id,
		"label":           label,
		"statuses":        statuses,
	})
	return branch, nil
}
