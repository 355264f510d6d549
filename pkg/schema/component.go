package schema

// ComponentType identifies one of the nine PrOACT stages.
type ComponentType string

const (
	ComponentIssueRaising    ComponentType = "issue_raising"
	ComponentProblemFrame    ComponentType = "problem_frame"
	ComponentObjectives      ComponentType = "objectives"
	ComponentAlternatives    ComponentType = "alternatives"
	ComponentConsequences    ComponentType = "consequences"
	ComponentTradeoffs       ComponentType = "tradeoffs"
	ComponentRecommendation  ComponentType = "recommendation"
	ComponentDecisionQuality ComponentType = "decision_quality"
	ComponentNotesNextSteps  ComponentType = "notes_next_steps"
)

// componentOrder is the fixed stage sequence. Arrays are copied on assignment,
// so handing it out by value never exposes the table.
var componentOrder = [...]ComponentType{
	ComponentIssueRaising,
	ComponentProblemFrame,
	ComponentObjectives,
	ComponentAlternatives,
	ComponentConsequences,
	ComponentTradeoffs,
	ComponentRecommendation,
	ComponentDecisionQuality,
	ComponentNotesNextSteps,
}

// ComponentCount is the number of stages in every cycle.
const ComponentCount = len(componentOrder)

// RequiredComponentCount is the number of stages that count toward completion.
const RequiredComponentCount = ComponentCount - 1

// ComponentTypes returns all stages in sequence order.
func ComponentTypes() []ComponentType {
	out := make([]ComponentType, ComponentCount)
	copy(out, componentOrder[:])
	return out
}

// ParseComponentType converts a string to a ComponentType.
func ParseComponentType(s string) (ComponentType, error) {
	ct := ComponentType(s)
	if !ct.IsValid() {
		return "", NewErrorf(ErrCodeValidation, "unknown component type %q", s).WithField("component")
	}
	return ct, nil
}

// Index returns the position of ct in the sequence, or -1 if unknown.
func (ct ComponentType) Index() int {
	for i, c := range componentOrder {
		if c == ct {
			return i
		}
	}
	return -1
}

// IsValid reports whether ct is one of the nine stages.
func (ct ComponentType) IsValid() bool {
	return ct.Index() >= 0
}

// IsRequired reports whether ct counts toward cycle completion.
// notes_next_steps is the only optional stage.
func (ct ComponentType) IsRequired() bool {
	return ct.IsValid() && ct != ComponentNotesNextSteps
}

// Prerequisite returns the stage that must be started before ct.
// The first stage has none.
func (ct ComponentType) Prerequisite() (ComponentType, bool) {
	i := ct.Index()
	if i <= 0 {
		return "", false
	}
	return componentOrder[i-1], true
}

// Next returns the stage after ct, if any.
func (ct ComponentType) Next() (ComponentType, bool) {
	i := ct.Index()
	if i < 0 || i+1 >= ComponentCount {
		return "", false
	}
	return componentOrder[i+1], true
}

// Before reports whether ct comes strictly before other in the sequence.
func (ct ComponentType) Before(other ComponentType) bool {
	return ct.Index() < other.Index()
}

// Label returns a human-readable stage name.
func (ct ComponentType) Label() string {
	switch ct {
	case ComponentIssueRaising:
		return "Issue Raising"
	case ComponentProblemFrame:
		return "Problem Frame"
	case ComponentObjectives:
		return "Objectives"
	case ComponentAlternatives:
		return "Alternatives"
	case ComponentConsequences:
		return "Consequences"
	case ComponentTradeoffs:
		return "Tradeoffs"
	case ComponentRecommendation:
		return "Recommendation"
	case ComponentDecisionQuality:
		return "Decision Quality"
	case ComponentNotesNextSteps:
		return "Notes & Next Steps"
	}
	return string(ct)
}
