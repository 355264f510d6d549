package engine

import (
	"context"

	"github.com/rendis/proact/internal/diagram"
	"github.com/rendis/proact/internal/store"
	"github.com/rendis/proact/pkg/schema"
)

// maxLineageDepth bounds the walk up the parent chain.
const maxLineageDepth = 64

// Diagram renders the cycle's stage flow with its branch lineage: every
// ancestor and the direct children of the cycle.
func (s *serviceImpl) Diagram(ctx context.Context, cycleID string, format DiagramFormat) (_ []byte, err error) {
	ctx, done := s.begin(ctx, "diagram", cycleID, "")
	defer func() { done(err) }()

	switch format {
	case "", DiagramMermaid, DiagramASCII, DiagramPNG, DiagramSVG:
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported diagram format %q", format).
			WithField("format")
	}

	c, err := s.load(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	lineage, err := s.lineage(ctx, summaryFromCycle(c))
	if err != nil {
		return nil, err
	}
	model, err := diagram.Build(c.Snapshot(), lineage)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "failed to build diagram").WithCause(err)
	}

	switch format {
	case DiagramASCII:
		return []byte(diagram.RenderASCII(model)), nil
	case DiagramPNG, DiagramSVG:
		img, err := diagram.RenderImage(ctx, model, diagram.ImageFormat(format))
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "failed to render diagram").WithCause(err)
		}
		return img, nil
	default:
		return []byte(diagram.RenderMermaid(model)), nil
	}
}

// lineage collects the ancestors of self (root first), self, and its direct
// children. A cycle with neither has no lineage. A missing ancestor ends the walk.
func (s *serviceImpl) lineage(ctx context.Context, self *CycleSummary) ([]diagram.LineageEntry, error) {
	var ancestors []diagram.LineageEntry
	parentID := self.ParentCycleID
	for depth := 0; parentID != "" && depth < maxLineageDepth; depth++ {
		rec, err := s.store.GetCycle(ctx, parentID)
		if err != nil {
			if schema.HasCode(err, schema.ErrCodeNotFound) {
				break
			}
			return nil, err
		}
		ancestors = append(ancestors, lineageEntry(summaryFromRecord(rec)))
		parentID = rec.ParentCycleID
	}

	children, err := s.store.ListCycles(ctx, store.CycleFilter{ParentCycleID: self.ID})
	if err != nil {
		return nil, err
	}
	if len(ancestors) == 0 && len(children) == 0 {
		return nil, nil
	}

	entries := make([]diagram.LineageEntry, 0, len(ancestors)+1+len(children))
	for i := len(ancestors) - 1; i >= 0; i-- {
		entries = append(entries, ancestors[i])
	}
	entries = append(entries, lineageEntry(self))
	for _, rec := range children {
		entries = append(entries, lineageEntry(summaryFromRecord(rec)))
	}
	return entries, nil
}

func lineageEntry(sum *CycleSummary) diagram.LineageEntry {
	return diagram.LineageEntry{
		CycleID:       sum.ID,
		ParentCycleID: sum.ParentCycleID,
		Label:         sum.BranchLabel,
		BranchPoint:   sum.BranchPoint,
		Status:        sum.Status,
	}
}
