// Package visualize provides functionality for visualizing the state of graph computations as
// diagrams.
package visualize

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/emicklei/dot"

	"github.com/l7mp/dflow/pkg/dbsp"
	"github.com/l7mp/dflow/pkg/graph"
)

// Graph represents the visualization graph of a computation.
type Graph struct {
	Name  string
	Nodes []Node
	Edges []Edge
}

// Node represents a node and its current value.
type Node struct {
	ID    string
	Value string
	// Reached is false for nodes that appear in the edges but have no value yet.
	Reached bool
}

// Edge represents an edge labeled with its weight.
type Edge struct {
	Src, Dst string
	Label    string
}

// Generator renders a graph.
type Generator interface {
	Generate(g *Graph) string
}

// FromPropagation builds the visualization graph of a graph computation. Nodes and edges are
// listed in order.
func FromPropagation[N cmp.Ordered, E dbsp.Monoid[E], D dbsp.Monoid[D]](p *graph.Propagation[N, E, D]) *Graph {
	g := &Graph{Name: p.Name(), Nodes: []Node{}, Edges: []Edge{}}

	values := p.Values()
	seen := map[N]bool{}
	var ids []N
	addNode := func(n N) {
		if !seen[n] {
			seen[n] = true
			ids = append(ids, n)
		}
	}

	edges := p.Edges()
	edges.Range(func(src, dst N, weight E) bool {
		addNode(src)
		addNode(dst)
		g.Edges = append(g.Edges, Edge{Src: fmt.Sprint(src), Dst: fmt.Sprint(dst), Label: fmt.Sprint(weight)})
		return true
	})
	values.Range(func(n N, _ D) bool {
		addNode(n)
		return true
	})

	slices.Sort(ids)
	for _, n := range ids {
		node := Node{ID: fmt.Sprint(n), Reached: values.Contains(n)}
		if node.Reached {
			node.Value = fmt.Sprint(values.Get(n))
		}
		g.Nodes = append(g.Nodes, node)
	}

	return g
}

// nodeStyle sets the format-specific attributes of a node.
type nodeStyle func(node dot.Node, reached bool)

// dotStyle draws reached nodes as filled boxes and the rest as dashed ellipses.
func dotStyle(node dot.Node, reached bool) {
	if reached {
		node.Attr("shape", "box").
			Attr("style", "filled,rounded").
			Attr("fillcolor", "lightblue").
			Attr("color", "darkblue")
		return
	}
	node.Attr("shape", "ellipse").Attr("style", "dashed")
}

// mermaidStyle uses the Mermaid shapes of the dot library, the renderer rejects Graphviz shape
// names. Styles are CSS.
func mermaidStyle(node dot.Node, reached bool) {
	if reached {
		node.Attr("shape", dot.MermaidShapeRound).Attr("style", "fill:lightblue,stroke:darkblue")
		return
	}
	node.Attr("shape", dot.MermaidShapeStadium).Attr("style", "stroke-dasharray:5 5")
}

// BuildDotGraph creates a Graphviz dot.Graph from the visualization graph.
func BuildDotGraph(g *Graph) *dot.Graph { return buildGraph(g, dotStyle) }

// BuildMermaidGraph creates a dot.Graph that can be rendered with dot.MermaidFlowchart.
func BuildMermaidGraph(g *Graph) *dot.Graph { return buildGraph(g, mermaidStyle) }

func buildGraph(g *Graph, style nodeStyle) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR") // Left to right layout.
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t") // Label at top.
	graph.Attr("fontsize", "16")

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		node := graph.Node(n.ID).Attr("fontname", "helvetica")
		if n.Reached {
			node.Attr("label", fmt.Sprintf("%s: %s", n.ID, n.Value))
		} else {
			node.Attr("label", n.ID)
		}
		style(node, n.Reached)
		nodes[n.ID] = node
	}

	for _, e := range g.Edges {
		src, ok1 := nodes[e.Src]
		dst, ok2 := nodes[e.Dst]
		if !ok1 || !ok2 {
			continue
		}
		graph.Edge(src, dst).
			Attr("label", e.Label).
			Attr("fontname", "helvetica").
			Attr("fontsize", "10")
	}

	return graph
}
