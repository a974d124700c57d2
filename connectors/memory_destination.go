package connectors

import (
	"context"
	"sync"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
)

// MemoryDestinationID is the registry key for the memory_destination connector.
const MemoryDestinationID = "memory_destination"

// MemoryDestination simply retains its aggregated input as the execution's
// visible result. It is the default destination used by the scheduling
// scenarios in SPEC_FULL.md §8.
type MemoryDestination struct {
	mu      sync.Mutex
	Records []envelope.Record
}

// NewMemoryDestination constructs a fresh in-memory destination connector instance.
func NewMemoryDestination() connector.Connector { return &MemoryDestination{} }

func (d *MemoryDestination) ID() string                  { return MemoryDestinationID }
func (d *MemoryDestination) Name() string                { return "Memory Destination" }
func (d *MemoryDestination) Category() connector.Category { return connector.CategoryDestination }

func (d *MemoryDestination) ConfigSchema() map[string]interface{} { return nil }

func (d *MemoryDestination) Configure(_ connector.Config) error { return nil }

// Execute retains the aggregated input and echoes it back so the scheduler's
// NodeResults map (filtered to destination nodes) carries the final payload.
func (d *MemoryDestination) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	env, err := envelope.FromMap(input)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.Records = env.Data
	d.mu.Unlock()

	out := envelope.New(env.Data, env.Metadata.Schema, d.ID(), MemoryDestinationID, env.Metadata.Sources)
	return out.ToMap(), nil
}

func (d *MemoryDestination) OutputSchema(inputSchema *envelope.DataSchema) (envelope.DataSchema, error) {
	if inputSchema == nil {
		return envelope.DataSchema{}, nil
	}
	return inputSchema.Clone(), nil
}

func (d *MemoryDestination) ValidateInputSchema(_ *envelope.DataSchema) error { return nil }
