package cycle

import "github.com/rendis/proact/pkg/schema"

// Progress is a read-only projection over stage statuses.
// Empty component fields mean "none".
type Progress struct {
	PercentComplete   int                    `json:"percent_complete"`
	IsComplete        bool                   `json:"is_complete"`
	FirstIncomplete   schema.ComponentType   `json:"first_incomplete,omitempty"`
	RevisionsNeeded   []schema.ComponentType `json:"revisions_needed,omitempty"`
	CurrentInProgress schema.ComponentType   `json:"current_in_progress,omitempty"`
}

// NewProgress computes progress from a status map. Missing stages count as not started.
func NewProgress(statuses map[schema.ComponentType]schema.ComponentStatus) Progress {
	var p Progress
	completed := 0
	for _, ct := range schema.ComponentTypes() {
		status, ok := statuses[ct]
		if !ok {
			status = schema.ComponentStatusNotStarted
		}

		if ct.IsRequired() {
			if status == schema.ComponentStatusComplete {
				completed++
			} else if p.FirstIncomplete == "" {
				p.FirstIncomplete = ct
			}
		}
		if status == schema.ComponentStatusNeedsRevision {
			p.RevisionsNeeded = append(p.RevisionsNeeded, ct)
		}
		if status == schema.ComponentStatusInProgress && p.CurrentInProgress == "" {
			p.CurrentInProgress = ct
		}
	}

	p.PercentComplete = completed * 100 / schema.RequiredComponentCount
	p.IsComplete = completed == schema.RequiredComponentCount
	return p
}

// HasRevisionsNeeded reports whether any stage is flagged for revision.
func (p Progress) HasRevisionsNeeded() bool {
	return len(p.RevisionsNeeded) > 0
}

// NextIncomplete returns the first required stage that is not complete.
func (p Progress) NextIncomplete() (schema.ComponentType, bool) {
	return p.FirstIncomplete, p.FirstIncomplete != ""
}
