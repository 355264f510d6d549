package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Output is the structured result of a single stage. It is a closed set:
// exactly one concrete type per ComponentType, all defined in this file.
type Output interface {
	ComponentType() ComponentType
	isOutput()
}

// --- Issue Raising ---

// IssueRaisingOutput sorts the user's initial brain-dump into categories.
type IssueRaisingOutput struct {
	PotentialDecisions []string `json:"potential_decisions"`
	Objectives         []string `json:"objectives"`
	Uncertainties      []string `json:"uncertainties"`
	Considerations     []string `json:"considerations"`
}

func (IssueRaisingOutput) ComponentType() ComponentType { return ComponentIssueRaising }
func (IssueRaisingOutput) isOutput()                    {}

// --- Problem Frame ---

// Party is a stakeholder in the decision.
type Party struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// ProblemFrameOutput pins down who decides what, and within which bounds.
type ProblemFrameOutput struct {
	DecisionMaker  string   `json:"decision_maker"`
	FocalStatement string   `json:"focal_statement"`
	Scope          string   `json:"scope,omitempty"`
	Constraints    []string `json:"constraints"`
	Parties        []Party  `json:"parties"`
	Deadline       string   `json:"deadline,omitempty"`
}

func (ProblemFrameOutput) ComponentType() ComponentType { return ComponentProblemFrame }
func (ProblemFrameOutput) isOutput()                    {}

// --- Objectives ---

// Objective is one thing the decision maker wants to achieve.
type Objective struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Measure     string `json:"measure,omitempty"`
	Direction   string `json:"direction,omitempty"` // maximize | minimize
}

// ObjectivesOutput separates what matters in itself from what matters as a means.
type ObjectivesOutput struct {
	FundamentalObjectives []Objective `json:"fundamental_objectives"`
	MeansObjectives       []Objective `json:"means_objectives"`
}

func (ObjectivesOutput) ComponentType() ComponentType { return ComponentObjectives }
func (ObjectivesOutput) isOutput()                    {}

// ObjectiveIDs returns the ids of all fundamental objectives.
func (o ObjectivesOutput) ObjectiveIDs() []string {
	ids := make([]string, 0, len(o.FundamentalObjectives))
	for _, obj := range o.FundamentalObjectives {
		ids = append(ids, obj.ID)
	}
	return ids
}

// --- Alternatives ---

// Alternative is one option under consideration.
type Alternative struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Strategy combines choices across several decision dimensions.
type Strategy struct {
	Name    string            `json:"name"`
	Choices map[string]string `json:"choices,omitempty"`
}

// AlternativesOutput lists the options, one of which is the status quo baseline.
type AlternativesOutput struct {
	Alternatives []Alternative `json:"alternatives"`
	StatusQuoID  string        `json:"status_quo_id"`
	Strategies   []Strategy    `json:"strategies,omitempty"`
}

func (AlternativesOutput) ComponentType() ComponentType { return ComponentAlternatives }
func (AlternativesOutput) isOutput()                    {}

// HasAlternative reports whether an alternative with the given id is listed.
func (o AlternativesOutput) HasAlternative(id string) bool {
	for _, a := range o.Alternatives {
		if a.ID == id {
			return true
		}
	}
	return false
}

// --- Consequences ---

// ConsequenceCell rates one alternative against one objective on a -2..+2 scale
// relative to the status quo.
type ConsequenceCell struct {
	AlternativeID string `json:"alternative_id"`
	ObjectiveID   string `json:"objective_id"`
	Rating        int    `json:"rating"`
	Explanation   string `json:"explanation,omitempty"`
}

// ConsequencesOutput is the consequence table.
type ConsequencesOutput struct {
	AlternativeIDs []string          `json:"alternative_ids"`
	ObjectiveIDs   []string          `json:"objective_ids"`
	Cells          []ConsequenceCell `json:"cells"`
}

func (ConsequencesOutput) ComponentType() ComponentType { return ComponentConsequences }
func (ConsequencesOutput) isOutput()                    {}

// Cell returns the cell for a pair, if filled.
func (o ConsequencesOutput) Cell(alternativeID, objectiveID string) (ConsequenceCell, bool) {
	for _, c := range o.Cells {
		if c.AlternativeID == alternativeID && c.ObjectiveID == objectiveID {
			return c, true
		}
	}
	return ConsequenceCell{}, false
}

// --- Tradeoffs ---

// DominatedAlternative is an option that is never better than another.
type DominatedAlternative struct {
	AlternativeID string `json:"alternative_id"`
	DominatedBy   string `json:"dominated_by"`
	Explanation   string `json:"explanation,omitempty"`
}

// IrrelevantObjective is one that does not discriminate between alternatives.
type IrrelevantObjective struct {
	ObjectiveID string `json:"objective_id"`
	Reason      string `json:"reason,omitempty"`
}

// Tension records what an alternative gains and gives up.
type Tension struct {
	AlternativeID string   `json:"alternative_id"`
	Gains         []string `json:"gains"`
	Losses        []string `json:"losses"`
}

// TradeoffsOutput is the analysis of the consequence table.
type TradeoffsOutput struct {
	DominatedAlternatives []DominatedAlternative `json:"dominated_alternatives"`
	IrrelevantObjectives  []IrrelevantObjective  `json:"irrelevant_objectives"`
	Tensions              []Tension              `json:"tensions"`
}

func (TradeoffsOutput) ComponentType() ComponentType { return ComponentTradeoffs }
func (TradeoffsOutput) isOutput()                    {}

// --- Recommendation ---

// RecommendationOutput synthesizes the analysis without deciding for the user.
type RecommendationOutput struct {
	StandOut          string   `json:"stand_out,omitempty"`
	Synthesis         string   `json:"synthesis"`
	Caveats           []string `json:"caveats"`
	KeyConsiderations []string `json:"key_considerations"`
}

func (RecommendationOutput) ComponentType() ComponentType { return ComponentRecommendation }
func (RecommendationOutput) isOutput()                    {}

// --- Decision Quality ---

// DecisionQualityElements are the seven standard elements, in presentation order.
var DecisionQualityElements = [...]string{
	"Helpful Problem Frame",
	"Clear Objectives",
	"Creative Alternatives",
	"Reliable Consequence Information",
	"Logically Correct Reasoning",
	"Clear Tradeoffs",
	"Commitment to Follow Through",
}

// QualityElement is one rated element, scored 0..100.
type QualityElement struct {
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Rationale string `json:"rationale,omitempty"`
}

// DecisionQualityOutput is the self-assessment of the decision process.
type DecisionQualityOutput struct {
	Elements     []QualityElement `json:"elements"`
	OverallScore int              `json:"overall_score"`
	Improvements []string         `json:"improvements,omitempty"`
}

func (DecisionQualityOutput) ComponentType() ComponentType { return ComponentDecisionQuality }
func (DecisionQualityOutput) isOutput()                    {}

// MinScore returns the lowest element score, which bounds overall quality.
func (o DecisionQualityOutput) MinScore() int {
	if len(o.Elements) == 0 {
		return 0
	}
	lowest := o.Elements[0].Score
	for _, e := range o.Elements[1:] {
		if e.Score < lowest {
			lowest = e.Score
		}
	}
	return lowest
}

// --- Notes & Next Steps ---

// NotesNextStepsOutput captures follow-up work after the decision.
type NotesNextStepsOutput struct {
	Notes         []string `json:"notes"`
	OpenQuestions []string `json:"open_questions"`
	NextSteps     []string `json:"next_steps"`
	Revisit       string   `json:"revisit,omitempty"`
}

func (NotesNextStepsOutput) ComponentType() ComponentType { return ComponentNotesNextSteps }
func (NotesNextStepsOutput) isOutput()                    {}

// --- Constructors ---

// NewOutput returns the empty output for a stage.
func NewOutput(ct ComponentType) (Output, error) {
	switch ct {
	case ComponentIssueRaising:
		return IssueRaisingOutput{}, nil
	case ComponentProblemFrame:
		return ProblemFrameOutput{}, nil
	case ComponentObjectives:
		return ObjectivesOutput{}, nil
	case ComponentAlternatives:
		return AlternativesOutput{}, nil
	case ComponentConsequences:
		return ConsequencesOutput{}, nil
	case ComponentTradeoffs:
		return TradeoffsOutput{}, nil
	case ComponentRecommendation:
		return RecommendationOutput{}, nil
	case ComponentDecisionQuality:
		return DecisionQualityOutput{}, nil
	case ComponentNotesNextSteps:
		return NotesNextStepsOutput{}, nil
	}
	return nil, NewErrorf(ErrCodeValidation, "unknown component type %q", ct).WithField("component")
}

// DecodeOutput parses raw JSON into the output type of the given stage.
// Empty input yields the empty output. Unknown fields are rejected.
func DecodeOutput(ct ComponentType, raw json.RawMessage) (Output, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return NewOutput(ct)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var (
		out Output
		err error
	)
	switch ct {
	case ComponentIssueRaising:
		var v IssueRaisingOutput
		err = dec.Decode(&v)
		out = v
	case ComponentProblemFrame:
		var v ProblemFrameOutput
		err = dec.Decode(&v)
		out = v
	case ComponentObjectives:
		var v ObjectivesOutput
		err = dec.Decode(&v)
		out = v
	case ComponentAlternatives:
		var v AlternativesOutput
		err = dec.Decode(&v)
		out = v
	case ComponentConsequences:
		var v ConsequencesOutput
		err = dec.Decode(&v)
		out = v
	case ComponentTradeoffs:
		var v TradeoffsOutput
		err = dec.Decode(&v)
		out = v
	case ComponentRecommendation:
		var v RecommendationOutput
		err = dec.Decode(&v)
		out = v
	case ComponentDecisionQuality:
		var v DecisionQualityOutput
		err = dec.Decode(&v)
		out = v
	case ComponentNotesNextSteps:
		var v NotesNextStepsOutput
		err = dec.Decode(&v)
		out = v
	default:
		return nil, NewErrorf(ErrCodeValidation, "unknown component type %q", ct).WithField("component")
	}
	if err != nil {
		return nil, NewErrorf(ErrCodeValidation, "decode %s output: %s", ct, err.Error()).
			WithComponent(ct).WithField("output").WithCause(err)
	}
	return out, nil
}

// CloneOutput returns a deep copy of o, sharing no slices or maps with it.
func CloneOutput(o Output) (Output, error) {
	if o == nil {
		return nil, nil
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal %s output: %w", o.ComponentType(), err)
	}
	return DecodeOutput(o.ComponentType(), raw)
}
