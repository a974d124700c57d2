package envelope

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// labelCaser lowercases node labels for the merge-conflict prefix using
// Unicode-aware casing rules rather than strings.ToLower's simple byte
// folding, so multi-byte labels truncate and compare predictably.
var labelCaser = cases.Lower(language.Und)

// Label identifies the producing node of one of the envelopes passed to Merge,
// used to build the conflict-resolution prefix for colliding field names.
type Label struct {
	NodeID string
	Name   string
}

// prefix derives the stable ten-rune prefix SPEC_FULL.md §4.1 describes:
// the node's label, Unicode-lowercased, spaces replaced with underscores,
// truncated to ten runes; falling back to the first eight characters of the
// node id when no label is available.
func (l Label) prefix() string {
	name := strings.TrimSpace(l.Name)
	if name == "" {
		if len(l.NodeID) <= 8 {
			return l.NodeID
		}
		return l.NodeID[:8]
	}
	normalized := strings.ReplaceAll(labelCaser.String(name), " ", "_")
	runes := []rune(normalized)
	if len(runes) > 10 {
		runes = runes[:10]
	}
	return string(runes)
}

// Merge combines several envelopes into one per SPEC_FULL.md §4.1:
//   - data is the concatenation in input order
//   - colliding field names are renamed with the producing node's label prefix;
//     unique names pass through unmodified
//   - nullable is OR'd across all inputs sharing a (possibly renamed) name
//   - sources is the set union
//   - custom keys that collide become ordered lists
//
// labels must have the same length as envelopes and is indexed in parallel;
// labels[i] names the node that produced envelopes[i].
func Merge(envelopes []Envelope, labels []Label) Envelope {
	if len(envelopes) == 0 {
		return Envelope{}
	}
	if len(envelopes) == 1 {
		return envelopes[0]
	}

	nameCount := make(map[string]int)
	for _, e := range envelopes {
		seenInThisEnvelope := make(map[string]bool)
		for _, f := range e.Metadata.Schema.Fields {
			if seenInThisEnvelope[f.Name] {
				continue
			}
			seenInThisEnvelope[f.Name] = true
			nameCount[f.Name]++
		}
	}

	var allData []Record
	var allSources []string
	fieldsByFinalName := make(map[string]*FieldDefinition)
	var fieldOrder []string
	custom := make(map[string][]interface{})
	customOrder := []string{}

	for i, e := range envelopes {
		label := Label{}
		if i < len(labels) {
			label = labels[i]
		}
		if label.NodeID == "" {
			label.NodeID = e.Metadata.NodeID
		}
		rename := make(map[string]string)
		for _, f := range e.Metadata.Schema.Fields {
			finalName := f.Name
			if nameCount[f.Name] > 1 {
				finalName = label.prefix() + "_" + f.Name
			}
			rename[f.Name] = finalName

			if existing, ok := fieldsByFinalName[finalName]; ok {
				existing.Nullable = existing.Nullable || f.Nullable
				continue
			}
			copyField := f
			copyField.Name = finalName
			fieldsByFinalName[finalName] = &copyField
			fieldOrder = append(fieldOrder, finalName)
		}

		for _, rec := range e.Data {
			if len(rename) == 0 {
				allData = append(allData, rec)
				continue
			}
			renamed := make(Record, len(rec))
			for k, v := range rec {
				newKey, ok := rename[k]
				if !ok {
					newKey = k
				}
				renamed[newKey] = v
			}
			allData = append(allData, renamed)
		}

		allSources = append(allSources, e.Metadata.Sources...)

		for k, v := range e.Metadata.Custom {
			if _, ok := custom[k]; !ok {
				customOrder = append(customOrder, k)
			}
			custom[k] = append(custom[k], v)
		}
	}

	fields := make([]FieldDefinition, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		fields = append(fields, *fieldsByFinalName[name])
	}

	var mergedCustom map[string]interface{}
	if len(customOrder) > 0 {
		mergedCustom = make(map[string]interface{}, len(customOrder))
		for _, k := range customOrder {
			values := custom[k]
			if len(values) == 1 {
				mergedCustom[k] = values[0]
				continue
			}
			mergedCustom[k] = values
		}
	}

	merged := New(allData, NewSchema(fields), "", "", allSources)
	merged.Metadata.Custom = mergedCustom
	return merged
}

// sortedFieldNames is a small helper used by tests to assert merge output
// deterministically regardless of map iteration order upstream.
func sortedFieldNames(fields []FieldDefinition) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	sort.Strings(names)
	return names
}
