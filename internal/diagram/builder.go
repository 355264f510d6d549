package diagram

import (
	"fmt"

	"github.com/rendis/proact/internal/cycle"
	"github.com/rendis/proact/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// LineageEntry is one cycle of a branch tree as shown next to the stage flow.
type LineageEntry struct {
	CycleID       string
	ParentCycleID string
	Label         string
	BranchPoint   schema.ComponentType
	Status        schema.CycleStatus
}

// Build constructs a DiagramModel from a cycle snapshot. Stages become nodes
// in sequence order with their status overlaid; the optional last stage gets
// a bypass edge to the end. lineage, when non-empty, is drawn as a separate
// subgraph with the snapshot's own cycle highlighted.
func Build(snap cycle.Snapshot, lineage []LineageEntry) (*DiagramModel, error) {
	if len(snap.Components) != schema.ComponentCount {
		return nil, fmt.Errorf("diagram: snapshot %s has %d components, want %d",
			snap.ID, len(snap.Components), schema.ComponentCount)
	}

	byType := make(map[schema.ComponentType]cycle.ComponentSnapshot, len(snap.Components))
	for _, cs := range snap.Components {
		byType[cs.Type] = cs
	}

	nodes := make([]*Node, 0, schema.ComponentCount+2)
	levels := make([][]string, 0, schema.ComponentCount+2)

	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})
	levels = append(levels, []string{startID})

	for _, ct := range schema.ComponentTypes() {
		cs, ok := byType[ct]
		if !ok {
			return nil, fmt.Errorf("diagram: snapshot %s is missing component %s", snap.ID, ct)
		}
		nodes = append(nodes, stageNode(cs, snap))
		levels = append(levels, []string{string(ct)})
	}

	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})
	levels = append(levels, []string{endID})

	return &DiagramModel{
		Title:   title(snap),
		Nodes:   nodes,
		Edges:   stageEdges(),
		Levels:  levels,
		Lineage: buildLineage(snap.ID, lineage),
	}, nil
}

func stageNode(cs cycle.ComponentSnapshot, snap cycle.Snapshot) *Node {
	label := cs.Type.Label()
	if !cs.Type.IsRequired() {
		label += " (optional)"
	}
	if snap.BranchPoint == cs.Type {
		label += " *branch point*"
	}
	return &Node{
		ID:    string(cs.Type),
		Label: label,
		Kind:  NodeKindStage,
		Status: &StatusOverlay{
			Status:         string(cs.Status),
			RevisionReason: cs.RevisionReason,
		},
		Current: snap.CurrentStep == cs.Type,
	}
}

// stageEdges links start, the stages in order and end. The optional stage
// can be bypassed.
func stageEdges() []Edge {
	types := schema.ComponentTypes()
	edges := make([]Edge, 0, len(types)+2)
	edges = append(edges, Edge{From: startID, To: string(types[0])})
	for i := 1; i < len(types); i++ {
		edges = append(edges, Edge{From: string(types[i-1]), To: string(types[i])})
	}
	last := types[len(types)-1]
	edges = append(edges, Edge{From: string(last), To: endID})
	if !last.IsRequired() {
		if prev, ok := last.Prerequisite(); ok {
			edges = append(edges, Edge{From: string(prev), To: endID, Label: "skip", Dashed: true})
		}
	}
	return edges
}

func buildLineage(currentID string, lineage []LineageEntry) *SubGraph {
	if len(lineage) == 0 {
		return nil
	}
	sg := &SubGraph{Label: "Branch lineage"}
	known := make(map[string]struct{}, len(lineage))
	for _, e := range lineage {
		known[e.CycleID] = struct{}{}
	}
	for _, e := range lineage {
		label := e.Label
		if label == "" {
			label = shortID(e.CycleID)
		}
		sg.Nodes = append(sg.Nodes, &Node{
			ID:      cycleNodeID(e.CycleID),
			Label:   label,
			Kind:    NodeKindCycle,
			Status:  &StatusOverlay{Status: string(e.Status)},
			Current: e.CycleID == currentID,
		})
		if _, ok := known[e.ParentCycleID]; ok && e.ParentCycleID != "" {
			sg.Edges = append(sg.Edges, Edge{
				From:  cycleNodeID(e.ParentCycleID),
				To:    cycleNodeID(e.CycleID),
				Label: string(e.BranchPoint),
			})
		}
	}
	return sg
}

func cycleNodeID(id string) string {
	return "cycle_" + id
}

func title(snap cycle.Snapshot) string {
	if snap.Branch.Label != "" {
		return fmt.Sprintf("%s (%s)", snap.Branch.Label, snap.Status)
	}
	return fmt.Sprintf("Cycle %s (%s)", shortID(snap.ID), snap.Status)
}
