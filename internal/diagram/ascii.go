package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// statusTag returns a short ASCII indicator for a status string.
func statusTag(status string) string {
	switch status {
	case "complete", "completed":
		return "[DONE]"
	case "in_progress", "active":
		return "[WIP]"
	case "needs_revision":
		return "[REVISE]"
	case "not_started":
		return "[TODO]"
	case "archived":
		return "[ARCHIVED]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a vertical pipeline of equal-width
// boxes, one per node, followed by the branch lineage as an indented tree.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	skips := make(map[string]string)
	for _, e := range model.Edges {
		if e.Dashed {
			skips[e.From] = e.Label + " → " + labelOf(model.Nodes, e.To)
		}
	}

	rows := make([][]string, len(model.Nodes))
	inner := 0
	for i, n := range model.Nodes {
		rows[i] = cellRows(n)
		for _, r := range rows[i] {
			inner = max(inner, utf8.RuneCountInString(r))
		}
	}

	for i, n := range model.Nodes {
		writeBox(&b, rows[i], inner)
		if i == len(model.Nodes)-1 {
			break
		}
		pad := strings.Repeat(" ", (inner+4)/2)
		if note, ok := skips[n.ID]; ok {
			fmt.Fprintf(&b, "%s│   ┄┄ %s\n", pad, note)
		} else {
			fmt.Fprintf(&b, "%s│\n", pad)
		}
		fmt.Fprintf(&b, "%s▼\n", pad)
	}

	if model.Lineage != nil {
		fmt.Fprintf(&b, "\n--- %s ---\n", strings.ToLower(model.Lineage.Label))
		writeTree(&b, model.Lineage)
	}
	return b.String()
}

// cellRows returns the text rows of a node's box. The first row carries the
// current marker, label and status tag; a revision reason gets its own row.
func cellRows(n *Node) []string {
	marker := "  "
	if n.Current {
		marker = "▶ "
	}
	head := marker + firstLine(n.Label)
	var reason string
	if n.Status != nil {
		if tag := statusTag(n.Status.Status); tag != "" {
			head += "  " + tag
		}
		reason = firstLine(n.Status.RevisionReason)
	}
	if reason == "" {
		return []string{head}
	}
	return []string{head, "    ↳ " + reason}
}

func writeBox(b *strings.Builder, rows []string, inner int) {
	b.WriteString("┌" + strings.Repeat("─", inner+2) + "┐\n")
	for _, r := range rows {
		fill := inner - utf8.RuneCountInString(r)
		b.WriteString("│ " + r + strings.Repeat(" ", fill) + " │\n")
	}
	b.WriteString("└" + strings.Repeat("─", inner+2) + "┘\n")
}

// writeTree prints a subgraph as a forest, children under their parent with
// the edge label as the branch point.
func writeTree(b *strings.Builder, sg *SubGraph) {
	children := make(map[string][]Edge)
	hasParent := make(map[string]bool)
	for _, e := range sg.Edges {
		children[e.From] = append(children[e.From], e)
		hasParent[e.To] = true
	}
	nodes := make(map[string]*Node, len(sg.Nodes))
	for _, n := range sg.Nodes {
		nodes[n.ID] = n
	}

	var walk func(id, via, prefix string, last, root bool)
	walk = func(id, via, prefix string, last, root bool) {
		n := nodes[id]
		if n == nil {
			return
		}
		branch, next := "", ""
		if !root {
			branch, next = "├── ", "│   "
			if last {
				branch, next = "└── ", "    "
			}
		}
		line := prefix + branch + firstLine(n.Label)
		if tag := statusTag(statusOf(n)); tag != "" {
			line += " " + tag
		}
		if via != "" {
			line += " @" + via
		}
		if n.Current {
			line += "  ◀ this cycle"
		}
		b.WriteString(line + "\n")

		kids := children[id]
		for i, e := range kids {
			walk(e.To, e.Label, prefix+next, i == len(kids)-1, false)
		}
	}

	for _, n := range sg.Nodes {
		if !hasParent[n.ID] {
			walk(n.ID, "", "", true, true)
		}
	}
}

func statusOf(n *Node) string {
	if n.Status == nil {
		return ""
	}
	return n.Status.Status
}

func labelOf(nodes []*Node, id string) string {
	if n := findNode(nodes, id); n != nil {
		return firstLine(n.Label)
	}
	return id
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// shortID returns the first eight characters of an ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
