package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// ImageFormat selects the graphviz output encoding.
type ImageFormat string

const (
	ImagePNG ImageFormat = "png"
	ImageSVG ImageFormat = "svg"
)

// RenderImage renders a DiagramModel with graphviz as PNG or SVG bytes.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	var gvFormat graphviz.Format
	switch format {
	case ImagePNG, "":
		gvFormat = graphviz.PNG
	case ImageSVG:
		gvFormat = graphviz.SVG
	default:
		return nil, fmt.Errorf("diagram: unsupported image format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(firstLine(node.Label))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	if sg := model.Lineage; sg != nil {
		sub, subErr := graph.CreateSubGraphByName("cluster_lineage")
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create lineage cluster: %w", subErr)
		}
		sub.SetLabel(sg.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, node := range sg.Nodes {
			gvSub, nErr := sub.CreateNodeByName(node.ID)
			if nErr != nil {
				return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
			}
			gvSub.SetLabel(firstLine(node.Label))
			applyNodeStyle(gvSub, node)
			gvNodes[node.ID] = gvSub
		}
		if err := createEdges(graph, gvNodes, sg.Edges); err != nil {
			return nil, err
		}
	}

	if err := createEdges(graph, gvNodes, model.Edges); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func createEdges(graph *cgraph.Graph, gvNodes map[string]*cgraph.Node, edges []Edge) error {
	for _, edge := range edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, err := graph.CreateEdgeByName("", fromGV, toGV)
		if err != nil {
			return fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, err)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		if edge.Dashed {
			e.SetStyle(cgraph.DashedEdgeStyle)
		}
	}
	return nil
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindStage:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindCycle:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	}

	if node.Status != nil {
		applyStatusColor(gvNode, node.Status.Status)
	}
	if node.Current {
		gvNode.SetPenWidth(3)
	}
}

// applyStatusColor sets fill color and style based on status.
func applyStatusColor(gvNode *cgraph.Node, status string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch status {
	case "complete", "completed":
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case "in_progress", "active":
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case "needs_revision":
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	case "not_started":
		gvNode.SetFillColor("#d3d3d3")
		gvNode.SetFontColor("black")
	case "archived":
		gvNode.SetFillColor("#e8e8e8")
		gvNode.SetFontColor("#888888")
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	}
}
