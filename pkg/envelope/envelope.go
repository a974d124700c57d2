// Package envelope implements the DataEnvelope/DataSchema model that flows
// between connectors: an immutable record container with propagating schema
// metadata and source-node lineage (SPEC_FULL.md §3, §4.1).
package envelope

import (
	"fmt"
	"time"
)

// Record is one row of tabular data flowing between nodes.
type Record map[string]interface{}

// Metadata carries everything about an envelope besides the records themselves.
type Metadata struct {
	Schema          DataSchema             `json:"schema"`
	NodeID          string                 `json:"nodeId"`
	NodeType        string                 `json:"nodeType"`
	RecordCount     int                    `json:"recordCount"`
	Sources         []string               `json:"sources"`
	ExecutionTimeMs int64                  `json:"executionTimeMs"`
	Custom          map[string]interface{} `json:"custom,omitempty"`
}

// Envelope is the universal inter-node payload (SPEC_FULL.md §3).
type Envelope struct {
	Data     []Record `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// New builds an envelope, stamping RecordCount from len(data) so the
// recordCount invariant always holds for envelopes constructed through this path.
func New(data []Record, schema DataSchema, nodeID, nodeType string, sources []string) Envelope {
	return Envelope{
		Data: data,
		Metadata: Metadata{
			Schema:      schema,
			NodeID:      nodeID,
			NodeType:    nodeType,
			RecordCount: len(data),
			Sources:     uniqueSorted(sources),
		},
	}
}

// WithExecutionTime returns a copy of the envelope with ExecutionTimeMs set.
func (e Envelope) WithExecutionTime(d time.Duration) Envelope {
	e.Metadata.ExecutionTimeMs = d.Milliseconds()
	return e
}

// ToMap serialises the envelope into a loose mapping, the boundary
// representation connectors and the Store exchange (SPEC_FULL.md §4.1).
func (e Envelope) ToMap() map[string]interface{} {
	data := make([]interface{}, len(e.Data))
	for i, rec := range e.Data {
		data[i] = map[string]interface{}(rec)
	}

	fields := make([]interface{}, len(e.Metadata.Schema.Fields))
	for i, f := range e.Metadata.Schema.Fields {
		fields[i] = map[string]interface{}{
			"name":        f.Name,
			"type":        string(f.Type),
			"sourceNode":  f.SourceNode,
			"nullable":    f.Nullable,
			"description": f.Description,
		}
	}

	custom := e.Metadata.Custom
	if custom == nil {
		custom = map[string]interface{}{}
	}

	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"schema": map[string]interface{}{
				"fields":      fields,
				"sourceNodes": toInterfaceSlice(e.Metadata.Schema.SourceNodes),
			},
			"nodeId":          e.Metadata.NodeID,
			"nodeType":        e.Metadata.NodeType,
			"recordCount":     e.Metadata.RecordCount,
			"sources":         toInterfaceSlice(e.Metadata.Sources),
			"executionTimeMs": e.Metadata.ExecutionTimeMs,
			"custom":          custom,
		},
	}
}

// FromMap reconstructs an envelope from a loose mapping. If "metadata" is
// absent, raw is treated as legacy shape: wrapped as a single record with an
// empty schema (SPEC_FULL.md §4.1 legacy-compatibility rule).
func FromMap(raw map[string]interface{}) (Envelope, error) {
	metaRaw, hasMeta := raw["metadata"]
	if !hasMeta {
		return New([]Record{Record(raw)}, DataSchema{}, "", "", nil), nil
	}

	meta, ok := metaRaw.(map[string]interface{})
	if !ok {
		return Envelope{}, fmt.Errorf("envelope metadata must be an object")
	}

	rawData, _ := raw["data"].([]interface{})
	data := make([]Record, 0, len(rawData))
	for _, r := range rawData {
		recMap, ok := r.(map[string]interface{})
		if !ok {
			return Envelope{}, fmt.Errorf("envelope record must be an object")
		}
		data = append(data, Record(recMap))
	}

	schema, err := schemaFromMap(meta["schema"])
	if err != nil {
		return Envelope{}, err
	}

	e := Envelope{
		Data: data,
		Metadata: Metadata{
			Schema:          schema,
			NodeID:          stringOr(meta["nodeId"], ""),
			NodeType:        stringOr(meta["nodeType"], ""),
			RecordCount:     len(data),
			Sources:         stringSliceOr(meta["sources"]),
			ExecutionTimeMs: int64Or(meta["executionTimeMs"]),
		},
	}
	if c, ok := meta["custom"].(map[string]interface{}); ok && len(c) > 0 {
		e.Metadata.Custom = c
	}
	return e, nil
}

func schemaFromMap(raw interface{}) (DataSchema, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return DataSchema{}, nil
	}
	rawFields, _ := m["fields"].([]interface{})
	fields := make([]FieldDefinition, 0, len(rawFields))
	for _, rf := range rawFields {
		fm, ok := rf.(map[string]interface{})
		if !ok {
			continue
		}
		fields = append(fields, FieldDefinition{
			Name:        stringOr(fm["name"], ""),
			Type:        FieldType(stringOr(fm["type"], string(FieldTypeJSON))),
			SourceNode:  stringOr(fm["sourceNode"], ""),
			Nullable:    boolOr(fm["nullable"]),
			Description: stringOr(fm["description"], ""),
		})
	}
	sources := stringSliceOr(m["sourceNodes"])
	if len(sources) == 0 {
		return NewSchema(fields), nil
	}
	return DataSchema{Fields: fields, SourceNodes: sources}, nil
}

func stringOr(v interface{}, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func boolOr(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func int64Or(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func stringSliceOr(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
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

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func uniqueSorted(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
