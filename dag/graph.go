// Package dag wraps gonum's simple.DirectedGraph with the attribute
// plumbing needed to render a graph to Graphviz DOT, and nothing else —
// all saga-specific semantics (Requests, invariants, child/parent
// traversal) live one layer up in the sagaflow package.
package dag

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// Graph is a directed graph whose nodes and edges carry DOT attributes.
type Graph struct {
	*simple.DirectedGraph
	attrs encoding.Attributes
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{DirectedGraph: simple.NewDirectedGraph()}
}

// NewNode allocates a fresh, unconnected Node with the next available id.
func (g *Graph) NewNode() *Node {
	return &Node{Node: g.DirectedGraph.NewNode()}
}

// Attributers implements dot.Graph.
func (g *Graph) Attributers() (encoding.Attributer, encoding.Attributer, encoding.Attributer) {
	return &Graph{}, &Node{}, &edge{}
}

// Attributes implements encoding.Attributer for the graph itself.
func (g *Graph) Attributes() []encoding.Attribute {
	return g.attrs.Attributes()
}

// SetAttribute implements encoding.AttributeSetter for the graph itself.
func (g *Graph) SetAttribute(attr encoding.Attribute) error {
	return g.attrs.SetAttribute(attr)
}

// ExportToDot renders the graph in Graphviz DOT format.
func (g *Graph) ExportToDot() (string, error) {
	data, err := dot.Marshal(g, "", "", "")
	if err != nil {
		return "", fmt.Errorf("failed to export DAG to DOT format: %w", err)
	}
	return string(data), nil
}

// NewEdge allocates an attributed edge between two already-added nodes.
func (g *Graph) NewEdge(from, to graph.Node) graph.Edge {
	return &edge{Edge: g.DirectedGraph.NewEdge(from, to)}
}

// Node decorates a gonum graph.Node with DOT attributes — e.g. the
// request's name and kind, for readable rendered output.
type Node struct {
	graph.Node
	attrs encoding.Attributes
}

// Attributes implements encoding.Attributer for a Node.
func (n *Node) Attributes() []encoding.Attribute {
	return n.attrs.Attributes()
}

// SetAttribute implements encoding.AttributeSetter for a Node.
func (n *Node) SetAttribute(attr encoding.Attribute) error {
	return n.attrs.SetAttribute(attr)
}

type edge struct {
	graph.Edge
	attrs encoding.Attributes
}

func (e *edge) Attributes() []encoding.Attribute {
	return e.attrs.Attributes()
}

func (e *edge) SetAttribute(attr encoding.Attribute) error {
	return e.attrs.SetAttribute(attr)
}
