package envelope

// InferSchema walks records and deduces each field's type from its first
// non-null occurrence, per SPEC_FULL.md §4.1. Nullable becomes true if any
// occurrence of the field is null or the field is absent from some record.
func InferSchema(records []Record, sourceNode string) DataSchema {
	order := []string{}
	typed := make(map[string]FieldType)
	nullable := make(map[string]bool)
	present := make(map[string]bool)

	for _, rec := range records {
		for name, value := range rec {
			if !present[name] {
				present[name] = true
				order = append(order, name)
			}
			if value == nil {
				nullable[name] = true
				continue
			}
			if _, known := typed[name]; !known {
				typed[name] = inferValueType(value)
			}
		}
	}

	// A field missing from some records is effectively nullable there.
	for _, name := range order {
		count := 0
		for _, rec := range records {
			if _, ok := rec[name]; ok {
				count++
			}
		}
		if count < len(records) {
			nullable[name] = true
		}
	}

	fields := make([]FieldDefinition, 0, len(order))
	for _, name := range order {
		ft, ok := typed[name]
		if !ok {
			ft = FieldTypeJSON // every occurrence was null
		}
		fields = append(fields, FieldDefinition{
			Name:       name,
			Type:       ft,
			SourceNode: sourceNode,
			Nullable:   nullable[name],
		})
	}
	return NewSchema(fields)
}

func inferValueType(value interface{}) FieldType {
	switch v := value.(type) {
	case bool:
		return FieldTypeBoolean
	case int, int32, int64, float32, float64:
		return FieldTypeNumber
	case string:
		return FieldTypeString
	case []interface{}, map[string]interface{}:
		return FieldTypeJSON
	default:
		_ = v
		return FieldTypeJSON
	}
}
