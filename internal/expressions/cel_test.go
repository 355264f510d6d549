package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/proact/pkg/schema"
)

func newCEL(t *testing.T) *CELEngine {
	t.Helper()
	e, err := NewCELEngine()
	require.NoError(t, err)
	return e
}

func alternativesData() map[string]any {
	return map[string]any{
		"output": map[string]any{
			"alternatives": []any{
				map[string]any{"id": "a1", "name": "stay"},
				map[string]any{"id": "a2", "name": "move"},
			},
			"status_quo_id": "a1",
		},
		"cycle":     map[string]any{"id": "c-1", "status": "active", "is_root": true},
		"component": "alternatives",
	}
}

func TestNewCELEngine(t *testing.T) {
	e := newCEL(t)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_Literals(t *testing.T) {
	e := newCEL(t)
	ctx := context.Background()

	out, err := e.Evaluate(ctx, "true", nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, "1 + 2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out)
}

func TestCEL_PolicyOverOutput(t *testing.T) {
	e := newCEL(t)
	ctx := context.Background()
	data := alternativesData()

	tests := []struct {
		expr string
		want bool
	}{
		{`size(output.alternatives) <= 10`, true},
		{`size(output.alternatives) >= 3`, false},
		{`output.alternatives.exists(a, a.id == output.status_quo_id)`, true},
		{`output.alternatives.all(a, a.name != "")`, true},
		{`cycle.status == "active" && cycle.is_root`, true},
		{`component == "alternatives"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := EvaluateBool(ctx, e, tt.expr, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCEL_CrossTypeNumbers(t *testing.T) {
	e := newCEL(t)
	data := map[string]any{"output": map[string]any{"overall_score": float64(72)}}

	got, err := EvaluateBool(context.Background(), e, `output.overall_score >= 70`, data)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCEL_MissingVariablesDefaultToEmpty(t *testing.T) {
	e := newCEL(t)
	got, err := EvaluateBool(context.Background(), e, `size(output) == 0 && component == ""`, map[string]any{})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCEL_Errors(t *testing.T) {
	e := newCEL(t)
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, "output.(", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, "unknown_var == 1", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation), "undeclared variables fail type-check")

	_, err = e.Evaluate(ctx, "output.missing == 1", map[string]any{"output": map[string]any{}})
	assert.True(t, schema.HasCode(err, schema.ErrCodeExecution))
}

func TestCEL_EvaluateBool_RejectsNonBool(t *testing.T) {
	e := newCEL(t)
	_, err := EvaluateBool(context.Background(), e, `"yes"`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")
}

func TestCEL_Compile(t *testing.T) {
	e := newCEL(t)
	require.NoError(t, e.Compile(`size(output.alternatives) > 1`))
	assert.Equal(t, 1, e.cache.len())
	assert.Error(t, e.Compile(`size(`))
	assert.Error(t, e.Compile(""))
}

func TestCEL_ProgramCaching(t *testing.T) {
	e := newCEL(t)
	data := alternativesData()

	for range 3 {
		_, err := e.Evaluate(context.Background(), `size(output.alternatives)`, data)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.cache.len())
}

func TestCEL_Concurrent(t *testing.T) {
	e := newCEL(t)

	var wg sync.WaitGroup
	errs := make([]error, 50)
	results := make([]any, 50)
	for i := range 50 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			data := map[string]any{"output": map[string]any{"n": int64(idx)}}
			results[idx], errs[idx] = e.Evaluate(context.Background(), `output.n >= 0`, data)
		}(i)
	}
	wg.Wait()

	for i := range 50 {
		assert.NoError(t, errs[i])
		assert.Equal(t, true, results[i])
	}
}
