// Package expressions hosts the three expression engines used around decision
// cycles: CEL gates stage completion, Expr filters cycle listings and GoJQ
// projects cycle documents.
package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rendis/proact/pkg/schema"
)

// Engine evaluates an expression against a JSON-shaped data map.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// EvaluateBool evaluates expression and requires a boolean result.
func EvaluateBool(ctx context.Context, e Engine, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"%s expression %q must evaluate to a boolean, got %T", e.Name(), expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

// ToData converts a value into the generic map form the engines consume, by
// round-tripping it through JSON. Numbers become float64.
func ToData(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal expression data: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal expression data: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// programCache memoizes compiled programs by source text.
// Safe for concurrent use.
type programCache[T any] struct {
	mu       sync.RWMutex
	programs map[string]T
}

func newProgramCache[T any]() *programCache[T] {
	return &programCache[T]{programs: make(map[string]T)}
}

func (c *programCache[T]) get(expression string, compile func() (T, error)) (T, error) {
	c.mu.RLock()
	if prg, ok := c.programs[expression]; ok {
		c.mu.RUnlock()
		return prg, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have compiled it while we waited.
	if prg, ok := c.programs[expression]; ok {
		return prg, nil
	}
	prg, err := compile()
	if err != nil {
		var zero T
		return zero, err
	}
	c.programs[expression] = prg
	return prg, nil
}

func (c *programCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

func compileErr(engine, expression string, err error) *schema.ProactError {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s compile error in %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func evalErr(engine, expression string, err error) *schema.ProactError {
	return schema.NewErrorf(schema.ErrCodeExecution,
		"%s evaluation failed for %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func emptyErr(engine string) *schema.ProactError {
	return schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", engine)
}
