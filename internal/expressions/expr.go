package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates cycle list filters with expr-lang/expr, e.g.
// `status == "active" && progress.percent_complete >= 50`.
// Every key of the data map is a top-level variable.
type ExprEngine struct {
	cache *programCache[*vm.Program]
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: newProgramCache[*vm.Program]()}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate compiles (or reuses) expression and runs it with data as environment.
// Undefined variables evaluate to nil rather than failing compilation.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyErr(e.Name())
	}
	if data == nil {
		data = map[string]any{}
	}

	prg, err := e.cache.get(expression, func() (*vm.Program, error) {
		p, err := expr.Compile(expression, expr.Env(data), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, compileErr(e.Name(), expression, err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, evalErr(e.Name(), expression, err)
	}
	return out, nil
}

// Match evaluates a boolean filter against each item and returns the indices
// of the items that pass, in order.
func (e *ExprEngine) Match(ctx context.Context, expression string, items []map[string]any) ([]int, error) {
	var matched []int
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := EvaluateBool(ctx, e, expression, item)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, i)
		}
	}
	return matched, nil
}

var _ Engine = (*ExprEngine)(nil)
