package envelope

// FieldType is the closed set of value types a connector can describe a field as.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeJSON    FieldType = "json"
)

// FieldDefinition describes a single field contributed to a DataSchema.
type FieldDefinition struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	SourceNode  string    `json:"sourceNode"`
	Nullable    bool      `json:"nullable"`
	Description string    `json:"description,omitempty"`
}

// DataSchema describes the shape of the records carried by a DataEnvelope.
//
// Invariant: every field's SourceNode must appear in SourceNodes (enforced by
// the constructors in this package; callers building a DataSchema by hand are
// responsible for the same invariant).
type DataSchema struct {
	Fields      []FieldDefinition `json:"fields"`
	SourceNodes []string          `json:"sourceNodes"`
}

// NewSchema builds a DataSchema, deriving SourceNodes from the fields so the
// invariant above always holds for schemas constructed through this path.
func NewSchema(fields []FieldDefinition) DataSchema {
	seen := make(map[string]bool, len(fields))
	sources := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.SourceNode == "" || seen[f.SourceNode] {
			continue
		}
		seen[f.SourceNode] = true
		sources = append(sources, f.SourceNode)
	}
	return DataSchema{Fields: fields, SourceNodes: sources}
}

// FieldByName returns the first field with the given name, if any.
func (s DataSchema) FieldByName(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// IsEmpty reports whether the schema carries no field information.
func (s DataSchema) IsEmpty() bool {
	return len(s.Fields) == 0
}

// Clone returns a deep copy so callers can mutate without aliasing the original.
func (s DataSchema) Clone() DataSchema {
	fields := make([]FieldDefinition, len(s.Fields))
	copy(fields, s.Fields)
	sources := make([]string, len(s.SourceNodes))
	copy(sources, s.SourceNodes)
	return DataSchema{Fields: fields, SourceNodes: sources}
}
