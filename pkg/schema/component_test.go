package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentTypes_Order(t *testing.T) {
	types := ComponentTypes()
	require.Len(t, types, 9)
	assert.Equal(t, ComponentIssueRaising, types[0])
	assert.Equal(t, ComponentDecisionQuality, types[7])
	assert.Equal(t, ComponentNotesNextSteps, types[8])

	// Mutating the returned slice must not affect the table.
	types[0] = ComponentTradeoffs
	assert.Equal(t, ComponentIssueRaising, ComponentTypes()[0])
}

func TestComponentType_Prerequisite(t *testing.T) {
	_, ok := ComponentIssueRaising.Prerequisite()
	assert.False(t, ok)

	types := ComponentTypes()
	for i := 1; i < len(types); i++ {
		prev, ok := types[i].Prerequisite()
		require.True(t, ok, types[i])
		assert.Equal(t, types[i-1], prev)
	}

	_, ok = ComponentType("bogus").Prerequisite()
	assert.False(t, ok)
}

func TestComponentType_Next(t *testing.T) {
	next, ok := ComponentObjectives.Next()
	require.True(t, ok)
	assert.Equal(t, ComponentAlternatives, next)

	_, ok = ComponentNotesNextSteps.Next()
	assert.False(t, ok)
}

func TestComponentType_IsRequired(t *testing.T) {
	for _, ct := range ComponentTypes() {
		assert.Equal(t, ct != ComponentNotesNextSteps, ct.IsRequired(), ct)
	}
	assert.False(t, ComponentType("bogus").IsRequired())
}

func TestParseComponentType(t *testing.T) {
	ct, err := ParseComponentType("tradeoffs")
	require.NoError(t, err)
	assert.Equal(t, ComponentTradeoffs, ct)

	_, err = ParseComponentType("summary")
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeValidation))
}

func TestComponentStatus_Predicates(t *testing.T) {
	assert.False(t, ComponentStatusNotStarted.IsStarted())
	assert.True(t, ComponentStatusInProgress.IsStarted())
	assert.True(t, ComponentStatusComplete.IsStarted())
	assert.True(t, ComponentStatusNeedsRevision.IsStarted())

	assert.False(t, ComponentStatusNotStarted.AcceptsOutput())
	assert.True(t, ComponentStatusInProgress.AcceptsOutput())
	assert.False(t, ComponentStatusComplete.AcceptsOutput())
	assert.True(t, ComponentStatusNeedsRevision.AcceptsOutput())
}

func TestDecodeOutput_EveryType(t *testing.T) {
	for _, ct := range ComponentTypes() {
		out, err := DecodeOutput(ct, nil)
		require.NoError(t, err, ct)
		assert.Equal(t, ct, out.ComponentType())
	}
}

func TestDecodeOutput_Alternatives(t *testing.T) {
	raw := json.RawMessage(`{"alternatives":[{"id":"a1","name":"Stay"},{"id":"a2","name":"Move"}],"status_quo_id":"a1"}`)
	out, err := DecodeOutput(ComponentAlternatives, raw)
	require.NoError(t, err)

	alts, ok := out.(AlternativesOutput)
	require.True(t, ok)
	assert.Len(t, alts.Alternatives, 2)
	assert.True(t, alts.HasAlternative("a2"))
	assert.False(t, alts.HasAlternative("a3"))
}

func TestDecodeOutput_RejectsUnknownFields(t *testing.T) {
	_, err := DecodeOutput(ComponentObjectives, json.RawMessage(`{"goals":[]}`))
	require.Error(t, err)
	pe, ok := AsProactError(err)
	require.True(t, ok)
	assert.Equal(t, ComponentObjectives, pe.Component)
	assert.Equal(t, "output", pe.Field)
}

func TestCloneOutput_IsDeep(t *testing.T) {
	orig := ObjectivesOutput{FundamentalObjectives: []Objective{{ID: "o1", Description: "Cost"}}}
	cloned, err := CloneOutput(orig)
	require.NoError(t, err)

	c := cloned.(ObjectivesOutput)
	c.FundamentalObjectives[0].Description = "changed"
	assert.Equal(t, "Cost", orig.FundamentalObjectives[0].Description)
}

func TestDecisionQualityOutput_MinScore(t *testing.T) {
	assert.Equal(t, 0, DecisionQualityOutput{}.MinScore())
	dq := DecisionQualityOutput{Elements: []QualityElement{{Score: 80}, {Score: 40}, {Score: 90}}}
	assert.Equal(t, 40, dq.MinScore())
}

func TestProactError_Format(t *testing.T) {
	err := NewError(ErrCodeValidation, "too few").WithComponent(ComponentAlternatives).WithField("alternatives")
	assert.Equal(t, "[VALIDATION_ERROR] alternatives.alternatives: too few", err.Error())

	err = NewErrorf(ErrCodeCycleArchived, "cycle %s is %s", "c1", "archived")
	assert.Equal(t, "[CYCLE_ARCHIVED] cycle c1 is archived", err.Error())
}

func TestHasCode_Wrapped(t *testing.T) {
	cause := errors.New("disk full")
	inner := NewError(ErrCodeStore, "write failed").WithCause(cause)
	wrapped := fmt.Errorf("save cycle: %w", inner)

	assert.True(t, HasCode(wrapped, ErrCodeStore))
	assert.False(t, HasCode(wrapped, ErrCodeConflict))
	assert.ErrorIs(t, wrapped, cause)
	assert.False(t, HasCode(nil, ErrCodeStore))
}

func TestIsEventType(t *testing.T) {
	assert.True(t, IsEventType(EventCycleBranched))
	assert.True(t, IsEventType(EventComponentMarkedForRevision))
	assert.False(t, IsEventType(""))
	assert.False(t, IsEventType("cycle.deleted"))
}
