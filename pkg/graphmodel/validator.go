package graphmodel

import (
	"fmt"

	"github.com/shashank-sharma/flowforge/pkg/connector"
)

// ValidationResult is the outcome of validating a Graph (SPEC_FULL.md §4.3).
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ConnectorLookup resolves the category and config schema a connector id
// implies, without requiring the validator to depend on the full Registry
// type (it only needs descriptor-shaped information).
type ConnectorLookup func(connectorID string) (category connector.Category, configSchema map[string]interface{}, ok bool)

// Validate runs the full set of structural checks from SPEC_FULL.md §4.3.
// The engine calls it on save (through ValidateWorkflow) and at execution
// start; Build does not call it, so graphs built only for schema or sample
// introspection are not validated. It is deterministic: calling it twice on
// the same graph yields equal results.
func Validate(g *Graph, lookup ConnectorLookup) ValidationResult {
	result := ValidationResult{Valid: true}

	addError := func(format string, args ...interface{}) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}
	addWarning := func(format string, args ...interface{}) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
	}

	if len(g.Nodes) == 0 {
		addError("workflow contains no nodes")
		return result
	}

	hasSource := false
	hasDestination := false

	for _, id := range g.sortedNodeIDs() {
		n := g.Nodes[id]

		category, schema, ok := lookup(n.ConnectorID)
		if !ok {
			addError("node %s: unknown connector id %q", n.ID, n.ConnectorID)
			continue
		}
		if category != n.Category {
			addError("node %s: category %q disagrees with registered connector category %q", n.ID, n.Category, category)
		}

		switch n.Category {
		case connector.CategorySource:
			hasSource = true
			if len(n.Inputs) > 0 {
				addError("node %s: source node has an incoming edge", n.ID)
			}
		case connector.CategoryDestination:
			hasDestination = true
			if len(n.Outputs) > 0 {
				addError("node %s: destination node has an outgoing edge", n.ID)
			}
		}

		for _, field := range connector.RequiredFields(schema) {
			if _, present := n.Config[field]; !present {
				addError("node %s: missing required config field %q", n.ID, field)
			}
		}

		if len(n.Inputs) == 0 && len(n.Outputs) == 0 && n.Category != connector.CategorySource {
			addWarning("node %s: disconnected (no edges)", n.ID)
		}
	}

	if !hasSource {
		addError("workflow has no source node")
	}
	if !hasDestination {
		addError("workflow has no destination node")
	}

	if cycle := g.DetectCycle(); cycle != nil {
		addError("workflow contains circular dependencies: %v", cycle)
	}

	reachable := g.ReachableFromSources()
	for _, id := range g.sortedNodeIDs() {
		n := g.Nodes[id]
		if n.Category == connector.CategorySource {
			continue
		}
		if !reachable[id] {
			addWarning("node %s: unreachable from any source", n.ID)
		}
	}

	return result
}
