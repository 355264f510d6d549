// Package cycle implements the decision cycle aggregate: nine ordered PrOACT
// stages, each with its own lifecycle, governed by one Cycle that enforces
// ordering, revision, branching and completion rules.
//
// A Cycle is a plain value with no internal locking. Callers load it, apply a
// single operation, persist it and forward the drained events. Every operation
// validates fully before mutating, so a failed call leaves the Cycle unchanged.
package cycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/rendis/proact/pkg/schema"
)

var (
	now   = func() time.Time { return time.Now().UTC() }
	newID = uuid.NewString
)

// BranchInfo describes where a cycle sits in its branch tree.
type BranchInfo struct {
	Label  string `json:"label,omitempty"`
	IsRoot bool   `json:"is_root"`
}

// Cycle is one pass (or branch of a pass) through the PrOACT stages.
type Cycle struct {
	id            string
	sessionID     string
	parentCycleID string
	branchPoint   schema.ComponentType
	branch        BranchInfo
	status        schema.CycleStatus
	currentStep   schema.ComponentType
	components    map[schema.ComponentType]*Component
	version       int64
	createdAt     time.Time
	updatedAt     time.Time
	events        []Event
}

// New creates an active root cycle with all nine stages not started.
func New(sessionID string) *Cycle {
	at := now()
	c := &Cycle{
		id:          newID(),
		sessionID:   sessionID,
		branch:      BranchInfo{IsRoot: true},
		status:      schema.CycleStatusActive,
		currentStep: schema.ComponentIssueRaising,
		components:  make(map[schema.ComponentType]*Component, schema.ComponentCount),
		createdAt:   at,
		updatedAt:   at,
	}
	for _, ct := range schema.ComponentTypes() {
		c.components[ct] = newComponent(ct, at)
	}
	c.record(schema.EventCycleCreated, "", map[string]any{"session_id": sessionID})
	return c
}

// --- Accessors ---

func (c *Cycle) ID() string                        { return c.id }
func (c *Cycle) SessionID() string                 { return c.sessionID }
func (c *Cycle) Status() schema.CycleStatus        { return c.status }
func (c *Cycle) CurrentStep() schema.ComponentType { return c.currentStep }
func (c *Cycle) Branch() BranchInfo                { return c.branch }
func (c *Cycle) Version() int64                    { return c.version }
func (c *Cycle) CreatedAt() time.Time              { return c.createdAt }
func (c *Cycle) UpdatedAt() time.Time              { return c.updatedAt }

// ParentCycleID returns the cycle this one was branched from, if any.
func (c *Cycle) ParentCycleID() (string, bool) {
	return c.parentCycleID, c.parentCycleID != ""
}

// BranchPoint returns the stage this cycle was branched at, if any.
func (c *Cycle) BranchPoint() (schema.ComponentType, bool) {
	return c.branchPoint, c.branchPoint != ""
}

// IsBranch reports whether the cycle was forked from another.
func (c *Cycle) IsBranch() bool {
	return c.parentCycleID != ""
}

// Component returns a copy of the stage instance for ct.
func (c *Cycle) Component(ct schema.ComponentType) (Component, error) {
	comp, err := c.component(ct)
	if err != nil {
		return Component{}, err
	}
	return *comp, nil
}

// Components returns copies of all stage instances in sequence order.
func (c *Cycle) Components() []Component {
	out := make([]Component, 0, len(c.components))
	for _, ct := range schema.ComponentTypes() {
		if comp, ok := c.components[ct]; ok {
			out = append(out, *comp)
		}
	}
	return out
}

// ComponentStatuses returns the status of every stage.
func (c *Cycle) ComponentStatuses() map[schema.ComponentType]schema.ComponentStatus {
	out := make(map[schema.ComponentType]schema.ComponentStatus, len(c.components))
	for ct, comp := range c.components {
		out[ct] = comp.Status
	}
	return out
}

// Progress returns a progress snapshot of the cycle.
func (c *Cycle) Progress() Progress {
	return NewProgress(c.ComponentStatuses())
}

// MarkPersisted records the version assigned by the store after a save.
// It is not a domain mutation and emits nothing.
func (c *Cycle) MarkPersisted(version int64) {
	c.version = version
}

// --- Stage operations ---

// StartComponent moves a stage from not_started to in_progress and makes it current.
func (c *Cycle) StartComponent(ct schema.ComponentType) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	comp, err := c.component(ct)
	if err != nil {
		return err
	}
	if comp.Status != schema.ComponentStatusNotStarted {
		return schema.NewErrorf(schema.ErrCodeComponentAlreadyStarted,
			"component already started (status %s)", comp.Status).
			WithComponent(ct).
			WithDetails(map[string]any{"cycle_id": c.id, "status": string(comp.Status)})
	}
	if err := c.ensurePrerequisiteStarted(ct); err != nil {
		return err
	}

	at := now()
	next := *comp
	if err := next.start(at); err != nil {
		return err
	}
	*comp = next
	c.currentStep = ct
	c.updatedAt = at
	c.record(schema.EventComponentStarted, ct, nil)
	return nil
}

// CompleteComponent marks an in-progress or needs-revision stage complete.
// It performs the state transition only; stage business rules are checked
// separately by ValidateComponentCompletionRules.
func (c *Cycle) CompleteComponent(ct schema.ComponentType) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	comp, err := c.component(ct)
	if err != nil {
		return err
	}
	if !comp.Status.AcceptsOutput() {
		return invalidComponentTransition(ct, comp.Status, schema.ComponentStatusComplete)
	}

	at := now()
	next := *comp
	if next.Status == schema.ComponentStatusNeedsRevision {
		if err := next.reopen(at); err != nil {
			return err
		}
	}
	if err := next.complete(at); err != nil {
		return err
	}
	*comp = next
	c.updatedAt = at
	c.record(schema.EventComponentCompleted, ct, nil)
	return nil
}

// UpdateComponentOutput replaces the structured output of a stage that accepts output.
func (c *Cycle) UpdateComponentOutput(ct schema.ComponentType, out schema.Output) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	comp, err := c.component(ct)
	if err != nil {
		return err
	}
	if !comp.Status.AcceptsOutput() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"component does not accept output in status %s", comp.Status).
			WithComponent(ct).
			WithDetails(map[string]any{"cycle_id": c.id, "status": string(comp.Status)})
	}

	at := now()
	next := *comp
	if err := next.setOutput(out, at); err != nil {
		return err
	}
	*comp = next
	c.updatedAt = at
	c.record(schema.EventComponentOutputUpdated, ct, nil)
	return nil
}

// MarkComponentForRevision flags a stage for rework and focuses it.
func (c *Cycle) MarkComponentForRevision(ct schema.ComponentType, reason string) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	comp, err := c.component(ct)
	if err != nil {
		return err
	}

	at := now()
	next := *comp
	if err := next.markForRevision(reason, at); err != nil {
		return err
	}
	*comp = next
	c.currentStep = ct
	c.updatedAt = at
	c.record(schema.EventComponentMarkedForRevision, ct, map[string]any{"reason": reason})
	return nil
}

// NavigateTo changes focus without touching any stage status. Any started
// stage is reachable, as is the not-started stage right after a started one.
func (c *Cycle) NavigateTo(ct schema.ComponentType) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	comp, err := c.component(ct)
	if err != nil {
		return err
	}
	if !comp.Status.IsStarted() && !c.prerequisiteStarted(ct) {
		prev, _ := ct.Prerequisite()
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cannot navigate to %s before %s is started", ct, prev).
			WithComponent(ct).
			WithDetails(map[string]any{"cycle_id": c.id, "prerequisite": string(prev)})
	}

	from := c.currentStep
	c.currentStep = ct
	c.updatedAt = now()
	c.record(schema.EventCycleNavigated, ct, map[string]any{"from": string(from)})
	return nil
}

// --- Cycle lifecycle ---

// Complete marks the cycle completed. The decision quality stage must be complete.
func (c *Cycle) Complete() error {
	if !CanTransitionCycle(c.status, schema.CycleStatusCompleted) {
		return invalidCycleTransition(c.id, c.status, schema.CycleStatusCompleted)
	}
	dq, err := c.component(schema.ComponentDecisionQuality)
	if err != nil {
		return err
	}
	if dq.Status != schema.ComponentStatusComplete {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cycle cannot complete while decision quality is %s", dq.Status).
			WithComponent(schema.ComponentDecisionQuality).
			WithDetails(map[string]any{"cycle_id": c.id, "status": string(dq.Status)})
	}

	c.status = schema.CycleStatusCompleted
	c.updatedAt = now()
	c.record(schema.EventCycleCompleted, "", nil)
	return nil
}

// Archive freezes the cycle. It is reachable from any non-archived status.
func (c *Cycle) Archive() error {
	if !CanTransitionCycle(c.status, schema.CycleStatusArchived) {
		return invalidCycleTransition(c.id, c.status, schema.CycleStatusArchived)
	}
	from := c.status
	c.status = schema.CycleStatusArchived
	c.updatedAt = now()
	c.record(schema.EventCycleArchived, "", map[string]any{"from": string(from)})
	return nil
}

// ValidateComponentCompletionRules checks stage business rules against out
// without mutating the cycle.
func (c *Cycle) ValidateComponentCompletionRules(ct schema.ComponentType, out schema.Output) error {
	if _, err := c.component(ct); err != nil {
		return err
	}
	return ValidateCompletionRules(ct, out)
}

// --- Guards ---

func (c *Cycle) component(ct schema.ComponentType) (*Component, error) {
	comp, ok := c.components[ct]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeComponentNotFound, "component %q not found", ct).
			WithComponent(ct).
			WithDetails(map[string]any{"cycle_id": c.id})
	}
	return comp, nil
}

func (c *Cycle) ensureActive() error {
	if !c.status.IsMutable() {
		return schema.NewErrorf(schema.ErrCodeCycleArchived, "cycle %s is %s", c.id, c.status).
			WithDetails(map[string]any{"cycle_id": c.id, "status": string(c.status)})
	}
	return nil
}

func (c *Cycle) prerequisiteStarted(ct schema.ComponentType) bool {
	prev, ok := ct.Prerequisite()
	if !ok {
		return true
	}
	comp, found := c.components[prev]
	return found && comp.Status.IsStarted()
}

func (c *Cycle) ensurePrerequisiteStarted(ct schema.ComponentType) error {
	if c.prerequisiteStarted(ct) {
		return nil
	}
	prev, _ := ct.Prerequisite()
	return schema.NewErrorf(schema.ErrCodePreviousComponentRequired,
		"%s must be started before %s", prev, ct).
		WithComponent(ct).
		WithDetails(map[string]any{"cycle_id": c.id, "prerequisite": string(prev)})
}
