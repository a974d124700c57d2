package connector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
)

// ValidateConfig checks cfg against the connector's ConfigSchema using the
// same JSON-Schema engine the reference json_schema_gate connector uses for
// runtime payload validation (SPEC_FULL.md §4.2.2), surfacing the well-known
// "required" violations as a ConfigurationError naming the offending fields.
func ValidateConfig(nodeID string, schema map[string]interface{}, cfg Config) error {
	if len(schema) == 0 {
		return nil
	}

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return engineerrors.Configuration(nodeID, fmt.Sprintf("invalid config schema: %v", err))
	}
	cfgBytes, err := json.Marshal(map[string]interface{}(cfg))
	if err != nil {
		return engineerrors.Configuration(nodeID, fmt.Sprintf("invalid config: %v", err))
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(cfgBytes),
	)
	if err != nil {
		return engineerrors.Configuration(nodeID, fmt.Sprintf("config schema validation failed: %v", err))
	}
	if result.Valid() {
		return nil
	}

	reasons := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		reasons = append(reasons, e.String())
	}
	return engineerrors.Configuration(nodeID, fmt.Sprintf("config does not satisfy schema: %s", strings.Join(reasons, "; ")))
}

// RequiredFields reads the well-known "required" key off a connector's
// ConfigSchema, used by the graph validator to report missing-field errors
// without round-tripping through the full JSON-Schema engine.
func RequiredFields(schema map[string]interface{}) []string {
	raw, ok := schema["required"].([]interface{})
	if !ok {
		if ss, ok := schema["required"].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
