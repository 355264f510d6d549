package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/proact/internal/expressions"
	"github.com/rendis/proact/pkg/schema"
)

const samplePolicies = `
policies:
  - component: alternatives
    name: bounded-alternatives
    expression: size(output.alternatives) <= 3
    message: keep the list short enough to compare
    field: alternatives
  - component: alternatives
    name: named-alternatives
    expression: output.alternatives.all(a, a.name != "")
  - component: decision_quality
    name: quality-floor
    expression: output.overall_score >= 60 || !cycle.is_root
    field: overall_score
`

func newCELEngine(t *testing.T) *expressions.CELEngine {
	t.Helper()
	e, err := expressions.NewCELEngine()
	require.NoError(t, err)
	return e
}

func parseSample(t *testing.T) *PolicySet {
	t.Helper()
	set, err := ParsePolicies([]byte(samplePolicies), newCELEngine(t))
	require.NoError(t, err)
	return set
}

func TestParsePolicies(t *testing.T) {
	set := parseSample(t)
	assert.Equal(t, 3, set.Len())
	require.Len(t, set.For(schema.ComponentAlternatives), 2)
	assert.Equal(t, "bounded-alternatives", set.For(schema.ComponentAlternatives)[0].Name)
	assert.Empty(t, set.For(schema.ComponentObjectives))
}

func TestLoadPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicies), 0o600))

	set, err := LoadPolicies(path, newCELEngine(t))
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	empty, err := LoadPolicies("", newCELEngine(t))
	require.NoError(t, err)
	assert.Zero(t, empty.Len())

	_, err = LoadPolicies(filepath.Join(t.TempDir(), "missing.yaml"), newCELEngine(t))
	assert.Error(t, err)
}

func TestParsePolicies_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"missing name", `policies: [{component: objectives, expression: "true"}]`, "name"},
		{"duplicate name", `policies: [{component: objectives, name: a, expression: "true"}, {component: tradeoffs, name: a, expression: "true"}]`, "name"},
		{"unknown component", `policies: [{component: budget, name: a, expression: "true"}]`, "component"},
		{"bad expression", `policies: [{component: objectives, name: a, expression: "size("}]`, "expression"},
		{"empty expression", `policies: [{component: objectives, name: a}]`, "expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicies([]byte(tt.yaml), newCELEngine(t))
			requireValidationField(t, err, tt.field)
		})
	}

	_, err := ParsePolicies([]byte("policies: [unterminated"), newCELEngine(t))
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestNewPolicySet_RequiresEngine(t *testing.T) {
	_, err := NewPolicySet(nil, nil)
	assert.Error(t, err)
}

func TestCheckCompletion(t *testing.T) {
	set := parseSample(t)
	ctx := context.Background()

	ok := schema.AlternativesOutput{
		Alternatives: []schema.Alternative{{ID: "a1", Name: "stay"}, {ID: "a2", Name: "move"}},
		StatusQuoID:  "a1",
	}
	assert.NoError(t, set.CheckCompletion(ctx, schema.ComponentAlternatives, ok, nil))

	tooMany := schema.AlternativesOutput{
		Alternatives: []schema.Alternative{{ID: "a1", Name: "stay"}, {ID: "a2"}, {ID: "a3", Name: "x"}, {ID: "a4", Name: "y"}},
		StatusQuoID:  "a1",
	}
	err := set.CheckCompletion(ctx, schema.ComponentAlternatives, tooMany, nil)
	pe := requireValidationField(t, err, "alternatives")
	assert.Equal(t, schema.ComponentAlternatives, pe.Component)
	assert.Contains(t, pe.Message, "bounded-alternatives")
	assert.Equal(t, 2, pe.Details["error_count"])
}

func TestCheckCompletion_UsesCycleSummary(t *testing.T) {
	set := parseSample(t)
	ctx := context.Background()
	low := schema.DecisionQualityOutput{OverallScore: 40}

	err := set.CheckCompletion(ctx, schema.ComponentDecisionQuality, low, map[string]any{"is_root": true})
	requireValidationField(t, err, "overall_score")

	err = set.CheckCompletion(ctx, schema.ComponentDecisionQuality, low, map[string]any{"is_root": false})
	assert.NoError(t, err)
}

func TestCheckCompletion_NoPolicies(t *testing.T) {
	set := parseSample(t)
	err := set.CheckCompletion(context.Background(), schema.ComponentObjectives, schema.ObjectivesOutput{}, nil)
	assert.NoError(t, err)
}

func TestCheckCompletion_EvaluationError(t *testing.T) {
	set, err := NewPolicySet(newCELEngine(t), []Policy{{
		Component:  schema.ComponentRecommendation,
		Name:       "needs-owner",
		Expression: `output.owner == "me"`,
	}})
	require.NoError(t, err)

	err = set.CheckCompletion(context.Background(), schema.ComponentRecommendation, schema.RecommendationOutput{}, nil)
	pe := requireValidationField(t, err, "expression")
	assert.Equal(t, schema.ComponentRecommendation, pe.Component)
	assert.Equal(t, "needs-owner", pe.Details["policy"])
	assert.Contains(t, err.Error(), "needs-owner")

	cause, ok := schema.AsProactError(pe.Cause)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExecution, cause.Code)
}
