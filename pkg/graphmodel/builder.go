package graphmodel

import (
	"fmt"

	"github.com/shashank-sharma/flowforge/pkg/connector"
)

// NodeInput is a durable, already-identified node row as read from the Store
// (temporary client-side id remapping happens one layer up, in the engine's
// saveWorkflowGraph — SPEC_FULL.md §4.3).
type NodeInput struct {
	ID          string
	Name        string
	Category    connector.Category
	ConnectorID string
	Config      map[string]interface{}
	Position    interface{}
}

// EdgeInput is a durable edge row as read from the Store.
type EdgeInput struct {
	ID           string
	SourceNodeID string
	TargetNodeID string
}

// Build compiles node/edge rows into a Graph, populating each node's
// Inputs/Outputs from the edge list. Edges whose endpoints are missing are
// rejected (SPEC_FULL.md §4.3); this is reported as a build error rather than
// a validation error because a reference to a nonexistent node can never be
// repaired by continuing to build.
func Build(nodes []NodeInput, edges []EdgeInput) (*Graph, error) {
	g := &Graph{Nodes: make(map[string]*Node, len(nodes))}

	for _, n := range nodes {
		g.Nodes[n.ID] = &Node{
			ID:          n.ID,
			Name:        n.Name,
			Category:    n.Category,
			ConnectorID: n.ConnectorID,
			Config:      connector.Config(n.Config),
			Position:    n.Position,
		}
	}

	for _, e := range edges {
		src, ok := g.Nodes[e.SourceNodeID]
		if !ok {
			return nil, fmt.Errorf("edge %s references missing source node %s", e.ID, e.SourceNodeID)
		}
		tgt, ok := g.Nodes[e.TargetNodeID]
		if !ok {
			return nil, fmt.Errorf("edge %s references missing target node %s", e.ID, e.TargetNodeID)
		}

		g.Edges = append(g.Edges, Edge{ID: e.ID, SourceNodeID: e.SourceNodeID, TargetNodeID: e.TargetNodeID})
		src.Outputs = append(src.Outputs, e.TargetNodeID)
		tgt.Inputs = append(tgt.Inputs, e.SourceNodeID)
	}

	return g, nil
}
