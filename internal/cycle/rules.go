package cycle

import (
	"fmt"

	"github.com/rendis/proact/pkg/schema"
)

// RequiredQualityElements is the number of decision quality elements that must be rated.
const RequiredQualityElements = len(schema.DecisionQualityElements)

// MinAlternatives is the fewest alternatives a complete alternatives stage may list.
const MinAlternatives = 2

// ValidateCompletionRules applies the business rules a stage's output must
// satisfy before the stage may be completed. Only alternatives, objectives,
// consequences and decision_quality carry rules. A nil output is checked as
// the empty output of ct.
func ValidateCompletionRules(ct schema.ComponentType, out schema.Output) error {
	if out == nil {
		empty, err := schema.NewOutput(ct)
		if err != nil {
			return err
		}
		out = empty
	}
	if out.ComponentType() != ct {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"output of type %s does not belong to component %s", out.ComponentType(), ct).
			WithComponent(ct).WithField("output")
	}

	result := &schema.ValidationResult{Component: ct}
	switch o := out.(type) {
	case schema.AlternativesOutput:
		validateAlternatives(o, result)
	case schema.ObjectivesOutput:
		validateObjectives(o, result)
	case schema.ConsequencesOutput:
		validateConsequences(o, result)
	case schema.DecisionQualityOutput:
		validateDecisionQuality(o, result)
	}
	return result.ToError()
}

func validateAlternatives(o schema.AlternativesOutput, result *schema.ValidationResult) {
	seen := make(map[string]struct{}, len(o.Alternatives))
	var dup []string
	for i, alt := range o.Alternatives {
		if _, ok := seen[alt.ID]; ok {
			dup = append(dup, fmt.Sprintf("alternatives[%d].id", i))
			continue
		}
		seen[alt.ID] = struct{}{}
	}
	// Distinct ids are what count toward the minimum.
	if len(seen) < MinAlternatives {
		result.AddError("alternatives", schema.ErrCodeValidation,
			fmt.Sprintf("at least %d distinct alternatives are required, got %d", MinAlternatives, len(seen)))
	}
	for _, field := range dup {
		result.AddError(field, schema.ErrCodeValidation, "duplicate alternative id")
	}
	switch {
	case o.StatusQuoID == "":
		result.AddError("status_quo_id", schema.ErrCodeValidation, "a status quo alternative must be named")
	case !o.HasAlternative(o.StatusQuoID):
		result.AddError("status_quo_id", schema.ErrCodeValidation,
			fmt.Sprintf("status quo %q is not one of the listed alternatives", o.StatusQuoID))
	}
}

func validateObjectives(o schema.ObjectivesOutput, result *schema.ValidationResult) {
	if len(o.FundamentalObjectives) == 0 {
		result.AddError("fundamental_objectives", schema.ErrCodeValidation,
			"at least one fundamental objective is required")
	}
}

func validateConsequences(o schema.ConsequencesOutput, result *schema.ValidationResult) {
	for _, alt := range o.AlternativeIDs {
		for _, obj := range o.ObjectiveIDs {
			if _, ok := o.Cell(alt, obj); !ok {
				result.AddError(fmt.Sprintf("cells[%s][%s]", alt, obj), schema.ErrCodeValidation,
					fmt.Sprintf("missing rating for alternative %q against objective %q", alt, obj))
			}
		}
	}
}

// validateDecisionQuality requires each standard element exactly once.
func validateDecisionQuality(o schema.DecisionQualityOutput, result *schema.ValidationResult) {
	if len(o.Elements) != RequiredQualityElements {
		result.AddError("elements", schema.ErrCodeValidation,
			fmt.Sprintf("exactly %d quality elements must be rated, got %d", RequiredQualityElements, len(o.Elements)))
	}

	counts := make(map[string]int, RequiredQualityElements)
	for _, name := range schema.DecisionQualityElements {
		counts[name] = 0
	}
	for _, e := range o.Elements {
		n, ok := counts[e.Name]
		if !ok {
			result.AddError("elements", schema.ErrCodeValidation,
				fmt.Sprintf("%q is not a standard quality element", e.Name))
			continue
		}
		if n == 1 {
			result.AddError("elements", schema.ErrCodeValidation,
				fmt.Sprintf("quality element %q is rated more than once", e.Name))
		}
		counts[e.Name] = n + 1
	}
	for _, name := range schema.DecisionQualityElements {
		if counts[name] == 0 {
			result.AddError("elements", schema.ErrCodeValidation,
				fmt.Sprintf("quality element %q is not rated", name))
		}
	}
}
