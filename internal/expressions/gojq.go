package expressions

import (
	"context"

	"github.com/itchyny/gojq"
)

// GoJQEngine projects cycle documents with jq queries via GoJQ, e.g.
// `.components[] | select(.status == "needs_revision") | .component_type`.
type GoJQEngine struct {
	cache *programCache[*gojq.Code]
}

// NewGoJQEngine creates a new GoJQ expression engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{cache: newProgramCache[*gojq.Code]()}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Evaluate runs a jq query against data. A single output is returned as is,
// several are returned as []any, none as nil.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	results, err := e.EvaluateAll(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// EvaluateAll is like Evaluate but always returns every output.
func (e *GoJQEngine) EvaluateAll(ctx context.Context, expression string, data map[string]any) ([]any, error) {
	if expression == "" {
		return nil, emptyErr(e.Name())
	}

	code, err := e.cache.get(expression, func() (*gojq.Code, error) {
		query, err := gojq.Parse(expression)
		if err != nil {
			return nil, compileErr(e.Name(), expression, err)
		}
		// No $ENV access.
		code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
		if err != nil {
			return nil, compileErr(e.Name(), expression, err)
		}
		return code, nil
	})
	if err != nil {
		return nil, err
	}

	var input any = data
	if data == nil {
		input = map[string]any{}
	}

	var results []any
	iter := code.RunWithContext(ctx, input)
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, evalErr(e.Name(), expression, err)
		}
		results = append(results, val)
	}
	return results, nil
}

var _ Engine = (*GoJQEngine)(nil)
