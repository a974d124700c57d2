package connectors

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
)

// FilterProcessorID is the registry key for the filter_processor connector.
const FilterProcessorID = "filter_processor"

// FilterProcessor evaluates a connector-configured boolean expression per
// record and forwards only the matching ones (SPEC_FULL.md §4.2.1). The
// expression sees the record's fields directly as environment variables,
// plus "record" bound to the whole record map.
type FilterProcessor struct {
	expression string
	program    *vm.Program
}

// NewFilterProcessor constructs an unconfigured filter_processor instance.
func NewFilterProcessor() connector.Connector { return &FilterProcessor{} }

func (f *FilterProcessor) ID() string                  { return FilterProcessorID }
func (f *FilterProcessor) Name() string                { return "Filter" }
func (f *FilterProcessor) Category() connector.Category { return connector.CategoryProcessor }

func (f *FilterProcessor) ConfigSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"expression"},
		"properties": map[string]interface{}{
			"expression": map[string]interface{}{"type": "string"},
		},
	}
}

// Configure compiles the expression once, at configure time, so a malformed
// expression fails fast as a ConfigurationError instead of on the first record.
func (f *FilterProcessor) Configure(cfg connector.Config) error {
	if err := connector.ValidateConfig(f.ID(), f.ConfigSchema(), cfg); err != nil {
		return err
	}
	exprStr, _ := cfg["expression"].(string)
	program, err := expr.Compile(exprStr, expr.AsBool())
	if err != nil {
		return engineerrors.Configuration(f.ID(), fmt.Sprintf("filter expression compilation failed: %v", err))
	}
	f.expression = exprStr
	f.program = program
	return nil
}

func (f *FilterProcessor) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	env, err := envelope.FromMap(input)
	if err != nil {
		return nil, err
	}

	kept := make([]envelope.Record, 0, len(env.Data))
	for i, rec := range env.Data {
		matched, err := f.matches(rec)
		if err != nil {
			return nil, engineerrors.Execution(f.ID(), fmt.Errorf("record %d: %w", i, err))
		}
		if matched {
			kept = append(kept, rec)
		}
	}

	out := envelope.New(kept, env.Metadata.Schema, f.ID(), FilterProcessorID, env.Metadata.Sources)
	return out.ToMap(), nil
}

func (f *FilterProcessor) matches(rec envelope.Record) (bool, error) {
	env := make(map[string]interface{}, len(rec)+1)
	for k, v := range rec {
		env[k] = v
	}
	env["record"] = map[string]interface{}(rec)

	output, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("expression execution failed: %w", err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("filter expression did not return a boolean, got %T", output)
	}
	return result, nil
}

func (f *FilterProcessor) OutputSchema(inputSchema *envelope.DataSchema) (envelope.DataSchema, error) {
	if inputSchema == nil {
		return envelope.DataSchema{}, nil
	}
	return inputSchema.Clone(), nil
}

// ValidateInputSchema always succeeds: the filter expression is evaluated
// per record at execution time regardless of the upstream schema shape.
func (f *FilterProcessor) ValidateInputSchema(_ *envelope.DataSchema) error { return nil }
