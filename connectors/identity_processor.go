package connectors

import (
	"context"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
)

// IdentityProcessorID is the registry key for the identity_processor connector.
const IdentityProcessorID = "identity_processor"

// IdentityProcessor forwards its aggregated input unchanged. It is the
// trivial processor used throughout the engine's scenario and composition
// tests (SPEC_FULL.md §4.2.1, §8).
type IdentityProcessor struct{}

// NewIdentityProcessor constructs a passthrough connector instance.
func NewIdentityProcessor() connector.Connector { return &IdentityProcessor{} }

func (p *IdentityProcessor) ID() string                  { return IdentityProcessorID }
func (p *IdentityProcessor) Name() string                { return "Passthrough" }
func (p *IdentityProcessor) Category() connector.Category { return connector.CategoryProcessor }

func (p *IdentityProcessor) ConfigSchema() map[string]interface{} { return nil }

func (p *IdentityProcessor) Configure(_ connector.Config) error { return nil }

func (p *IdentityProcessor) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	env, err := envelope.FromMap(input)
	if err != nil {
		return nil, err
	}
	out := envelope.New(env.Data, env.Metadata.Schema, p.ID(), IdentityProcessorID, env.Metadata.Sources)
	return out.ToMap(), nil
}

func (p *IdentityProcessor) OutputSchema(inputSchema *envelope.DataSchema) (envelope.DataSchema, error) {
	if inputSchema == nil {
		return envelope.DataSchema{}, nil
	}
	return inputSchema.Clone(), nil
}

func (p *IdentityProcessor) ValidateInputSchema(_ *envelope.DataSchema) error { return nil }
