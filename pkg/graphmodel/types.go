// Package graphmodel compiles persisted nodes/edges into an in-memory graph
// and validates its well-formedness (SPEC_FULL.md §3, §4.3).
package graphmodel

import "github.com/shashank-sharma/flowforge/pkg/connector"

// Node is the in-memory, post-build representation of a workflow node
// (SPEC_FULL.md §3).
type Node struct {
	ID          string
	Name        string
	Category    connector.Category
	ConnectorID string
	Config      connector.Config
	Position    interface{}
	Inputs      []string
	Outputs     []string
}

// Edge is a directed connection between two nodes. Duplicate edges between
// the same pair are legal but redundant (SPEC_FULL.md §3).
type Edge struct {
	ID           string
	SourceNodeID string
	TargetNodeID string
}

// Graph is a compiled workflow: nodes keyed by id, plus the edge list.
type Graph struct {
	Nodes map[string]*Node
	Edges []Edge
}

// NodeByID returns the node for id, or nil if absent.
func (g *Graph) NodeByID(id string) *Node {
	if g == nil {
		return nil
	}
	return g.Nodes[id]
}

// SourceNodes returns every node whose category is source (by category, not
// topology — a node is a source because it's registered as one).
func (g *Graph) SourceNodes() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Category == connector.CategorySource {
			out = append(out, n)
		}
	}
	return out
}

// DestinationNodes returns every node of category destination.
func (g *Graph) DestinationNodes() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Category == connector.CategoryDestination {
			out = append(out, n)
		}
	}
	return out
}
