package validation

import (
	"context"
	"encoding/json"

	"github.com/rendis/proact/pkg/schema"
)

// OutputValidator checks the raw JSON of a stage output against the stage's
// structural schema before it is decoded.
type OutputValidator interface {
	ValidateOutput(ct schema.ComponentType, raw json.RawMessage) error
}

// PolicyChecker runs user-configured completion policies for a stage.
// cycle carries a summary of the owning cycle for expressions that need it.
type PolicyChecker interface {
	CheckCompletion(ctx context.Context, ct schema.ComponentType, out schema.Output, cycle map[string]any) error
}
