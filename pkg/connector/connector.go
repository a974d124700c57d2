// Package connector defines the pluggable node contract (SPEC_FULL.md §4.2)
// and the process-wide registry of connector factories.
package connector

import (
	"context"

	"github.com/shashank-sharma/flowforge/pkg/envelope"
)

// Category is the role a connector plays in a graph.
type Category string

const (
	CategorySource      Category = "source"
	CategoryProcessor   Category = "processor"
	CategoryDestination Category = "destination"
)

// Config is the loose mapping a node supplies to configure its connector.
type Config map[string]interface{}

// Connector is a stateful node implementation. Every execution creates a
// fresh instance via the Registry's factory (SPEC_FULL.md §4.2 rationale:
// per-execution isolation without cross-execution state contamination).
type Connector interface {
	// ID is the registry key this connector was created under.
	ID() string
	// Name is a human-readable label.
	Name() string
	// Category reports whether this connector is a source, processor, or destination.
	Category() Category

	// ConfigSchema describes valid config as a JSON-Schema document. The
	// well-known "required" key lists mandatory field names.
	ConfigSchema() map[string]interface{}

	// Configure applies and validates config. Failures are terminal for the
	// node (not retried) and surfaced as a ConfigurationError.
	Configure(cfg Config) error

	// Execute performs the node's work. input is nil for source connectors;
	// for processors/destinations it is the aggregated upstream envelope map.
	// Connectors must respect ctx cancellation and return promptly.
	Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// SchemaAware is the optional capability a Connector can additionally
// implement to support design-time schema introspection (SPEC_FULL.md §4.2,
// §4.5) without executing.
type SchemaAware interface {
	// OutputSchema derives the output schema deterministically from the
	// connector's configured state plus inputSchema (nil for sources). Must
	// be pure: no I/O, no mutation, so the schema cache stays sound.
	OutputSchema(inputSchema *envelope.DataSchema) (envelope.DataSchema, error)

	// ValidateInputSchema checks upstream schema compatibility. A non-nil
	// error is logged as a SchemaConflictError and, by default policy, does
	// not abort execution (SPEC_FULL.md §4.4 step (d)).
	ValidateInputSchema(inputSchema *envelope.DataSchema) error
}

// Factory constructs a fresh Connector instance. Factories are value-typed
// closures rather than a class hierarchy (SPEC_FULL.md §9).
type Factory func() Connector

// Descriptor is the read-only introspection view the Registry returns for
// editor tooling (list of available connectors, their config schema, etc.).
type Descriptor struct {
	ID           string
	Name         string
	Category     Category
	ConfigSchema map[string]interface{}
}
