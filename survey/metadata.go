package survey

import "strings"

// VariableType classifies a survey variable.
type VariableType string

const (
	TypeNumeric VariableType = "numeric"
	TypeString  VariableType = "string"
	TypeDate    VariableType = "date"
)

// VariableMetadata describes one survey variable. ValueLabels keys are
// the coded values rendered as strings, matching how they serialize to
// JSON.
type VariableMetadata struct {
	Name          string            `json:"name"`
	Label         string            `json:"label,omitempty"`
	Type          VariableType      `json:"variable_type"`
	ValueLabels   map[string]string `json:"value_labels,omitempty"`
	Categories    []string          `json:"categories,omitempty"`
	MinValue      *float64          `json:"min_value,omitempty"`
	MaxValue      *float64          `json:"max_value,omitempty"`
	MissingValues []string          `json:"missing_values,omitempty"`
}

// Cardinality returns the number of distinct coded values known for the
// variable, zero when unknown.
func (v VariableMetadata) Cardinality() int {
	if len(v.Categories) > 0 {
		return len(v.Categories)
	}
	return len(v.ValueLabels)
}

// IsBinary reports whether the variable is a two-valued numeric flag.
func (v VariableMetadata) IsBinary() bool {
	if v.Type != TypeNumeric {
		return false
	}
	if len(v.ValueLabels) == 2 {
		return true
	}
	return v.MinValue != nil && v.MaxValue != nil && *v.MinValue == 0 && *v.MaxValue == 1
}

// IsOtherText reports whether the variable looks like the free-text
// companion of an "Other, please specify" option.
func (v VariableMetadata) IsOtherText() bool {
	if v.Type != TypeString {
		return false
	}
	name := strings.ToLower(v.Name)
	label := strings.ToLower(v.Label)
	return strings.Contains(name, "other") ||
		strings.Contains(label, "other") ||
		strings.Contains(label, "specify")
}

// Metadata is the variable-centered description of a survey file, in
// file order.
type Metadata struct {
	Variables []VariableMetadata `json:"variables"`
}

// Lookup finds a variable by name.
func (m *Metadata) Lookup(name string) (VariableMetadata, bool) {
	for _, v := range m.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableMetadata{}, false
}

// Has reports whether a variable with the given name exists.
func (m *Metadata) Has(name string) bool {
	_, ok := m.Lookup(name)
	return ok
}

// Names returns all variable names in file order.
func (m *Metadata) Names() []string {
	names := make([]string, len(m.Variables))
	for i, v := range m.Variables {
		names[i] = v.Name
	}
	return names
}

// Index builds a name-to-metadata map for repeated lookups.
func (m *Metadata) Index() map[string]VariableMetadata {
	idx := make(map[string]VariableMetadata, len(m.Variables))
	for _, v := range m.Variables {
		idx[v.Name] = v
	}
	return idx
}

// Merge returns a new Metadata with the derived variables folded in.
// A derived variable replaces an existing entry of the same name,
// otherwise it is appended.
func (m *Metadata) Merge(derived ...VariableMetadata) *Metadata {
	merged := &Metadata{Variables: make([]VariableMetadata, len(m.Variables))}
	copy(merged.Variables, m.Variables)

	for _, d := range derived {
		replaced := false
		for i, v := range merged.Variables {
			if v.Name == d.Name {
				merged.Variables[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Variables = append(merged.Variables, d)
		}
	}
	return merged
}
