// Package connectors holds the reference connector implementations the
// engine ships out of the box (SPEC_FULL.md §4.2.1): a deterministic source,
// an HTTP source, a passthrough processor, a schema-gate processor, an
// expression filter, and an in-memory destination. Each is registered under
// its connector id by Register (see registry.go).
package connectors

import (
	"context"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
)

// StaticSourceID is the registry key for the static_source connector.
const StaticSourceID = "static_source"

// StaticSource replays a literal, config-supplied record set. It exists as a
// deterministic stand-in for a database or file source in tests and
// playground workflows (SPEC_FULL.md §4.2.1).
type StaticSource struct {
	records []envelope.Record
}

// NewStaticSource constructs an unconfigured StaticSource connector instance.
func NewStaticSource() connector.Connector { return &StaticSource{} }

func (s *StaticSource) ID() string                { return StaticSourceID }
func (s *StaticSource) Name() string              { return "Static Source" }
func (s *StaticSource) Category() connector.Category { return connector.CategorySource }

func (s *StaticSource) ConfigSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"records"},
		"properties": map[string]interface{}{
			"records": map[string]interface{}{"type": "array"},
		},
	}
}

func (s *StaticSource) Configure(cfg connector.Config) error {
	if err := connector.ValidateConfig(s.ID(), s.ConfigSchema(), cfg); err != nil {
		return err
	}
	raw, _ := cfg["records"].([]interface{})
	records := make([]envelope.Record, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return engineerrors.Configuration(s.ID(), "records must be an array of objects")
		}
		records = append(records, envelope.Record(m))
	}
	s.records = records
	return nil
}

// Execute ignores input (sources never receive one) and replays the
// configured record set as a fresh envelope.
func (s *StaticSource) Execute(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	env := envelope.New(s.records, envelope.InferSchema(s.records, s.ID()), s.ID(), StaticSourceID, nil)
	return env.ToMap(), nil
}

// OutputSchema is pure and config-derived, satisfying connector.SchemaAware
// without running Execute (SPEC_FULL.md §4.5).
func (s *StaticSource) OutputSchema(_ *envelope.DataSchema) (envelope.DataSchema, error) {
	return envelope.InferSchema(s.records, s.ID()), nil
}

// ValidateInputSchema always succeeds: a source has no upstream input.
func (s *StaticSource) ValidateInputSchema(_ *envelope.DataSchema) error { return nil }
