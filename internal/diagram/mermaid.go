package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}
	for _, edge := range model.Edges {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidEdge(edge)))
	}

	if sg := model.Lineage; sg != nil {
		b.WriteString(fmt.Sprintf("    subgraph lineage[%q]\n", sg.Label))
		for _, node := range sg.Nodes {
			b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(node)))
		}
		for _, edge := range sg.Edges {
			b.WriteString(fmt.Sprintf("        %s\n", mermaidEdge(edge)))
		}
		b.WriteString("    end\n")
	}

	b.WriteString("\n")
	b.WriteString("    classDef complete fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef in_progress fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef needs_revision fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef not_started fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef archived fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")
	b.WriteString("    classDef current stroke:#f5c518,stroke-width:4px\n")

	for _, node := range allNodes(model) {
		if node.Status != nil {
			if cls := mermaidStatusClass(node.Status.Status); cls != "" {
				b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
			}
		}
		if node.Current {
			b.WriteString(fmt.Sprintf("    class %s current\n", mermaidSafeID(node.ID)))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))
	if node.Status != nil && node.Status.RevisionReason != "" {
		label += ": " + mermaidEscapeLabel(node.Status.RevisionReason)
	}

	switch node.Kind {
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	case NodeKindCycle:
		return fmt.Sprintf("%s([%q])", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

func mermaidEdge(edge Edge) string {
	arrow := "-->"
	if edge.Dashed {
		arrow = "-.->"
	}
	label := ""
	if edge.Label != "" {
		label = fmt.Sprintf("|%s|", edge.Label)
	}
	return fmt.Sprintf("%s %s%s %s", mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To))
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots and dashes with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces characters that break quoted Mermaid labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "\n", " ")
	return r.Replace(s)
}

// mermaidStatusClass maps a status string to a Mermaid class name.
func mermaidStatusClass(status string) string {
	switch status {
	case "complete", "completed":
		return "complete"
	case "in_progress", "active":
		return "in_progress"
	case "needs_revision":
		return "needs_revision"
	case "not_started":
		return "not_started"
	case "archived":
		return "archived"
	default:
		return ""
	}
}

func allNodes(model *DiagramModel) []*Node {
	nodes := model.Nodes
	if model.Lineage != nil {
		nodes = append(append([]*Node(nil), nodes...), model.Lineage.Nodes...)
	}
	return nodes
}
