package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// CEL variable names available to completion policies.
const (
	CELVarOutput    = "output"
	CELVarCycle     = "cycle"
	CELVarComponent = "component"
)

// CELEngine evaluates completion-policy expressions with Google's Common
// Expression Language. Compiled programs are cached.
type CELEngine struct {
	env   *cel.Env
	cache *programCache[cel.Program]
}

// NewCELEngine creates a CEL engine whose environment exposes:
//   - output:    map(string, dyn), the stage payload
//   - cycle:     map(string, dyn), cycle facts (id, session_id, status, ...)
//   - component: string, the stage being completed
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable(CELVarOutput, mapType),
		cel.Variable(CELVarCycle, mapType),
		cel.Variable(CELVarComponent, cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: newProgramCache[cel.Program](),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Compile type-checks expression and caches the program without evaluating it.
func (e *CELEngine) Compile(expression string) error {
	if expression == "" {
		return emptyErr(e.Name())
	}
	_, err := e.program(expression)
	return err
}

// Evaluate runs expression against data. Missing variables default to empty values.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyErr(e.Name())
	}

	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, activation(data))
	if err != nil {
		return nil, evalErr(e.Name(), expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) program(expression string) (cel.Program, error) {
	return e.cache.get(expression, func() (cel.Program, error) {
		ast, issues := e.env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, compileErr(e.Name(), expression, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, compileErr(e.Name(), expression, err)
		}
		return prg, nil
	})
}

func activation(data map[string]any) map[string]any {
	act := map[string]any{
		CELVarOutput:    map[string]any{},
		CELVarCycle:     map[string]any{},
		CELVarComponent: "",
	}
	for k := range act {
		if v, ok := data[k]; ok && v != nil {
			act[k] = v
		}
	}
	return act
}

var _ Engine = (*CELEngine)(nil)
