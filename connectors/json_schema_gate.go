package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
)

// JSONSchemaGateID is the registry key for the json_schema_gate connector.
const JSONSchemaGateID = "json_schema_gate"

// JSONSchemaGate validates its aggregated input's records against a
// connector-configured JSON Schema document, raising a SchemaConflictError
// on the first violation rather than silently forwarding bad data
// (SPEC_FULL.md §4.2.1).
type JSONSchemaGate struct {
	id         string
	recordSchema map[string]interface{}
}

// NewJSONSchemaGate constructs an unconfigured json_schema_gate instance.
func NewJSONSchemaGate() connector.Connector { return &JSONSchemaGate{id: JSONSchemaGateID} }

func (g *JSONSchemaGate) ID() string                  { return g.id }
func (g *JSONSchemaGate) Name() string                { return "JSON Schema Gate" }
func (g *JSONSchemaGate) Category() connector.Category { return connector.CategoryProcessor }

func (g *JSONSchemaGate) ConfigSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"recordSchema"},
		"properties": map[string]interface{}{
			"recordSchema": map[string]interface{}{"type": "object"},
		},
	}
}

func (g *JSONSchemaGate) Configure(cfg connector.Config) error {
	if err := connector.ValidateConfig(g.id, g.ConfigSchema(), cfg); err != nil {
		return err
	}
	schema, ok := cfg["recordSchema"].(map[string]interface{})
	if !ok {
		return engineerrors.Configuration(g.id, "recordSchema must be a JSON Schema object")
	}
	g.recordSchema = schema
	return nil
}

// Execute validates every record in the aggregated input against
// recordSchema, failing closed with a SchemaConflictError at the first
// non-conforming record.
func (g *JSONSchemaGate) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	env, err := envelope.FromMap(input)
	if err != nil {
		return nil, err
	}

	schemaBytes, err := json.Marshal(g.recordSchema)
	if err != nil {
		return nil, engineerrors.Configuration(g.id, fmt.Sprintf("invalid recordSchema: %v", err))
	}
	schemaLoader := gojsonschema.NewBytesLoader(schemaBytes)

	for i, rec := range env.Data {
		recBytes, err := json.Marshal(map[string]interface{}(rec))
		if err != nil {
			return nil, engineerrors.SchemaConflict(g.id, fmt.Sprintf("record %d is not JSON-encodable: %v", i, err))
		}
		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(recBytes))
		if err != nil {
			return nil, engineerrors.SchemaConflict(g.id, fmt.Sprintf("record %d: schema validation failed: %v", i, err))
		}
		if !result.Valid() {
			reasons := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				reasons = append(reasons, e.String())
			}
			return nil, engineerrors.SchemaConflict(g.id, fmt.Sprintf("record %d violates recordSchema: %s", i, strings.Join(reasons, "; ")))
		}
	}

	out := envelope.New(env.Data, env.Metadata.Schema, g.id, JSONSchemaGateID, env.Metadata.Sources)
	return out.ToMap(), nil
}

func (g *JSONSchemaGate) OutputSchema(inputSchema *envelope.DataSchema) (envelope.DataSchema, error) {
	if inputSchema == nil {
		return envelope.DataSchema{}, nil
	}
	return inputSchema.Clone(), nil
}

// ValidateInputSchema has no design-time schema to check against beyond the
// per-record JSON Schema enforced at execution time, so it always succeeds.
func (g *JSONSchemaGate) ValidateInputSchema(_ *envelope.DataSchema) error { return nil }
