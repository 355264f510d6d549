package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindStage NodeKind = "stage"
	NodeKindStart NodeKind = "start"
	NodeKindEnd   NodeKind = "end"
	NodeKindCycle NodeKind = "cycle"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title   string
	Nodes   []*Node
	Edges   []Edge
	Levels  [][]string
	Lineage *SubGraph
}

// Node represents a single stage, a virtual start/end marker or, inside the
// lineage subgraph, a cycle.
type Node struct {
	ID      string
	Label   string
	Kind    NodeKind
	Status  *StatusOverlay
	Current bool
}

// SubGraph holds a group of nodes rendered apart from the main flow.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// StatusOverlay carries runtime state for a node.
type StatusOverlay struct {
	Status         string // schema.ComponentStatus or schema.CycleStatus
	RevisionReason string
}

// Edge connects two nodes.
type Edge struct {
	From   string
	To     string
	Label  string
	Dashed bool
}
