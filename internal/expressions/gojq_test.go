package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/proact/pkg/schema"
)

func cycleDocument() map[string]any {
	return map[string]any{
		"id":     "c-1",
		"status": "active",
		"components": []any{
			map[string]any{"component_type": "issue_raising", "status": "complete"},
			map[string]any{"component_type": "problem_frame", "status": "needs_revision"},
			map[string]any{"component_type": "objectives", "status": "in_progress"},
		},
	}
}

func TestNewGoJQEngine(t *testing.T) {
	assert.Equal(t, "jq", NewGoJQEngine().Name())
}

func TestGoJQ_Projection(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()
	doc := cycleDocument()

	out, err := e.Evaluate(ctx, `.status`, doc)
	require.NoError(t, err)
	assert.Equal(t, "active", out)

	out, err = e.Evaluate(ctx, `[.components[] | select(.status == "needs_revision") | .component_type]`, doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"problem_frame"}, out)

	out, err = e.Evaluate(ctx, `.components | length`, doc)
	require.NoError(t, err)
	assert.Equal(t, 3, out)

	out, err = e.Evaluate(ctx, `{id, open: ([.components[] | select(.status != "complete")] | length)}`, doc)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "c-1", "open": 2}, out)
}

func TestGoJQ_MultipleAndEmptyOutputs(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()
	doc := cycleDocument()

	out, err := e.Evaluate(ctx, `.components[].status`, doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"complete", "needs_revision", "in_progress"}, out)

	out, err = e.Evaluate(ctx, `empty`, doc)
	require.NoError(t, err)
	assert.Nil(t, out)

	all, err := e.EvaluateAll(ctx, `.id`, doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"c-1"}, all)
}

func TestGoJQ_Errors(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, ".[", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, `.status | keys`, cycleDocument())
	assert.True(t, schema.HasCode(err, schema.ErrCodeExecution))
}

func TestGoJQ_NoEnvAccess(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), `$ENV | length`, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

func TestGoJQ_ConcurrentCaching(t *testing.T) {
	e := NewGoJQEngine()
	doc := cycleDocument()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Evaluate(context.Background(), `.components | map(.status)`, doc)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, e.cache.len())
}

func TestToData(t *testing.T) {
	data, err := ToData(struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}{ID: "x", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "x", "count": float64(2)}, data)

	empty, err := ToData(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
