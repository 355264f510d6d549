package validation

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rendis/proact/internal/expressions"
	"github.com/rendis/proact/pkg/schema"
)

// ErrCodePolicyViolation is the issue code recorded for a failed policy.
const ErrCodePolicyViolation = "POLICY_VIOLATION"

// Policy is an extra completion gate for one stage, written in CEL.
// The expression sees `output` (the stage output), `cycle` (a cycle summary)
// and `component` (the stage name) and must evaluate to true.
type Policy struct {
	Component  schema.ComponentType `yaml:"component" json:"component"`
	Name       string               `yaml:"name" json:"name"`
	Expression string               `yaml:"expression" json:"expression"`
	Message    string               `yaml:"message,omitempty" json:"message,omitempty"`
	Field      string               `yaml:"field,omitempty" json:"field,omitempty"`
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// PolicySet holds compiled policies grouped by stage.
type PolicySet struct {
	engine      *expressions.CELEngine
	byComponent map[schema.ComponentType][]Policy
}

// LoadPolicies reads a YAML policy file. An empty path yields an empty set.
func LoadPolicies(path string, engine *expressions.CELEngine) (*PolicySet, error) {
	if path == "" {
		return NewPolicySet(engine, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(data, engine)
}

// ParsePolicies parses YAML of the form
//
//	policies:
//	  - component: alternatives
//	    name: bounded-alternatives
//	    expression: size(output.alternatives) <= 10
//	    message: keep the list short enough to compare
func ParsePolicies(data []byte, engine *expressions.CELEngine) (*PolicySet, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid policy file").WithCause(err)
	}
	return NewPolicySet(engine, f.Policies)
}

// NewPolicySet checks and compiles policies up front so bad expressions fail
// at load time instead of at completion time.
func NewPolicySet(engine *expressions.CELEngine, policies []Policy) (*PolicySet, error) {
	if engine == nil {
		return nil, fmt.Errorf("policy set requires a CEL engine")
	}
	set := &PolicySet{
		engine:      engine,
		byComponent: make(map[schema.ComponentType][]Policy),
	}
	names := make(map[string]struct{}, len(policies))
	for i, p := range policies {
		if p.Name == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "policy %d has no name", i).WithField("name")
		}
		if _, dup := names[p.Name]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate policy name %q", p.Name).WithField("name")
		}
		names[p.Name] = struct{}{}
		if !p.Component.IsValid() {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"policy %q: unknown component type %q", p.Name, p.Component).WithField("component")
		}
		if err := engine.Compile(p.Expression); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "policy %q: %s", p.Name, err.Error()).
				WithComponent(p.Component).WithField("expression").WithCause(err)
		}
		set.byComponent[p.Component] = append(set.byComponent[p.Component], p)
	}
	return set, nil
}

// For returns the policies registered for ct, in load order.
func (s *PolicySet) For(ct schema.ComponentType) []Policy {
	return s.byComponent[ct]
}

// Len returns the total number of policies.
func (s *PolicySet) Len() int {
	n := 0
	for _, ps := range s.byComponent {
		n += len(ps)
	}
	return n
}

// CheckCompletion evaluates every policy of ct against out. All failing
// policies are reported; a policy that cannot be evaluated against out
// rejects the completion.
func (s *PolicySet) CheckCompletion(ctx context.Context, ct schema.ComponentType, out schema.Output, cycle map[string]any) error {
	policies := s.byComponent[ct]
	if len(policies) == 0 {
		return nil
	}

	output, err := expressions.ToData(out)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize output").
			WithComponent(ct).WithCause(err)
	}
	if cycle == nil {
		cycle = map[string]any{}
	}
	data := map[string]any{
		expressions.CELVarOutput:    output,
		expressions.CELVarCycle:     cycle,
		expressions.CELVarComponent: string(ct),
	}

	result := &schema.ValidationResult{Component: ct}
	for _, p := range policies {
		ok, err := expressions.EvaluateBool(ctx, s.engine, p.Expression, data)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "policy %q could not be evaluated: %s", p.Name, err.Error()).
				WithComponent(ct).
				WithField("expression").
				WithCause(err).
				WithDetails(map[string]any{"policy": p.Name, "expression": p.Expression})
		}
		if ok {
			continue
		}
		msg := p.Message
		if msg == "" {
			msg = fmt.Sprintf("policy %q failed", p.Name)
		}
		field := p.Field
		if field == "" {
			field = "output"
		}
		result.AddError(field, ErrCodePolicyViolation, fmt.Sprintf("%s: %s", p.Name, msg))
	}
	return result.ToError()
}

var _ PolicyChecker = (*PolicySet)(nil)
