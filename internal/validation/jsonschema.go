package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/proact/pkg/schema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://proact.dev/schemas/"

// JSONSchemaValidator validates stage outputs against the embedded
// JSON Schema (draft 2020-12) of each stage. Schemas compile lazily on first
// use. It is safe for concurrent use.
type JSONSchemaValidator struct {
	mu       sync.RWMutex
	compiler *jsonschema.Compiler
	cache    map[schema.ComponentType]*jsonschema.Schema
}

// NewJSONSchemaValidator registers every stage schema with a fresh compiler.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for _, ct := range schema.ComponentTypes() {
		data, err := schemaFS.ReadFile(schemaFile(ct))
		if err != nil {
			return nil, fmt.Errorf("read %s schema: %w", ct, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s schema: %w", ct, err)
		}
		if err := c.AddResource(schemaURL(ct), doc); err != nil {
			return nil, fmt.Errorf("add %s schema resource: %w", ct, err)
		}
	}

	return &JSONSchemaValidator{
		compiler: c,
		cache:    make(map[schema.ComponentType]*jsonschema.Schema, schema.ComponentCount),
	}, nil
}

// ValidateOutput checks raw against the schema of ct. Empty input and JSON
// null are the empty output and always pass.
func (v *JSONSchemaValidator) ValidateOutput(ct schema.ComponentType, raw json.RawMessage) error {
	if !ct.IsValid() {
		return schema.NewErrorf(schema.ErrCodeComponentNotFound, "unknown component type %q", ct)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}

	compiled, err := v.getOrCompile(ct)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid output schema").
			WithComponent(ct).WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(trimmed))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "output is not valid JSON").
			WithComponent(ct).WithField("output").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toProactError(ct, err)
	}
	return nil
}

// Validate marshals out and checks it against its stage schema.
func (v *JSONSchemaValidator) Validate(out schema.Output) error {
	if out == nil {
		return schema.NewError(schema.ErrCodeValidation, "output is nil").WithField("output")
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize output").
			WithComponent(out.ComponentType()).WithCause(err)
	}
	return v.ValidateOutput(out.ComponentType(), raw)
}

// getOrCompile returns a cached compiled schema or compiles and caches it.
func (v *JSONSchemaValidator) getOrCompile(ct schema.ComponentType) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if cached, ok := v.cache[ct]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[ct]; ok {
		return cached, nil
	}

	compiled, err := v.compiler.Compile(schemaURL(ct))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", ct, err)
	}
	v.cache[ct] = compiled
	return compiled, nil
}

func schemaFile(ct schema.ComponentType) string {
	return "schemas/" + string(ct) + ".json"
}

func schemaURL(ct schema.ComponentType) string {
	return schemaBaseURL + string(ct) + ".json"
}

// toProactError converts a jsonschema.ValidationError into a ProactError
// scoped to the first offending field.
func toProactError(ct schema.ComponentType, err error) *schema.ProactError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithComponent(ct)
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error()).WithComponent(ct)
	}

	msgs := make([]string, len(violations))
	for i, vi := range violations {
		msgs[i] = vi.String()
	}

	msg := msgs[0]
	if len(violations) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(violations))
	}
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithComponent(ct).
		WithField(violations[0].field()).
		WithDetails(map[string]any{"violations": msgs})
}

type violation struct {
	location []string
	message  string
}

func (v violation) String() string {
	return fmt.Sprintf("/%s: %s", strings.Join(v.location, "/"), v.message)
}

// field renders the location in dotted form, e.g. "alternatives[0].id".
func (v violation) field() string {
	if len(v.location) == 0 {
		return "output"
	}
	var b strings.Builder
	for i, part := range v.location {
		if isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// collectViolations walks a ValidationError tree and collects the leaves.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		return []violation{{location: verr.InstanceLocation, message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

var _ OutputValidator = (*JSONSchemaValidator)(nil)
