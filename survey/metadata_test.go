package survey

import "testing"

func floatPtr(v float64) *float64 { return &v }

func TestVariableMetadataCardinality(t *testing.T) {
	tests := []struct {
		name string
		meta VariableMetadata
		want int
	}{
		{
			name: "categories win over value labels",
			meta: VariableMetadata{
				Categories:  []string{"a", "b", "c"},
				ValueLabels: map[string]string{"1": "one"},
			},
			want: 3,
		},
		{
			name: "value labels when no categories",
			meta: VariableMetadata{ValueLabels: map[string]string{"1": "one", "2": "two"}},
			want: 2,
		},
		{
			name: "neither",
			meta: VariableMetadata{},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.Cardinality(); got != tt.want {
				t.Errorf("Cardinality() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVariableMetadataIsBinary(t *testing.T) {
	tests := []struct {
		name string
		meta VariableMetadata
		want bool
	}{
		{
			name: "two value labels",
			meta: VariableMetadata{
				Type:        TypeNumeric,
				ValueLabels: map[string]string{"0": "no", "1": "yes"},
			},
			want: true,
		},
		{
			name: "zero to one range",
			meta: VariableMetadata{
				Type:     TypeNumeric,
				MinValue: floatPtr(0),
				MaxValue: floatPtr(1),
			},
			want: true,
		},
		{
			name: "string type never binary",
			meta: VariableMetadata{
				Type:        TypeString,
				ValueLabels: map[string]string{"0": "no", "1": "yes"},
			},
			want: false,
		},
		{
			name: "five point scale",
			meta: VariableMetadata{
				Type:     TypeNumeric,
				MinValue: floatPtr(1),
				MaxValue: floatPtr(5),
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.IsBinary(); got != tt.want {
				t.Errorf("IsBinary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVariableMetadataIsOtherText(t *testing.T) {
	tests := []struct {
		name string
		meta VariableMetadata
		want bool
	}{
		{
			name: "other in name",
			meta: VariableMetadata{Name: "q5_other", Type: TypeString},
			want: true,
		},
		{
			name: "specify in label",
			meta: VariableMetadata{Name: "q5x", Label: "Please specify", Type: TypeString},
			want: true,
		},
		{
			name: "numeric never other text",
			meta: VariableMetadata{Name: "q5_other", Type: TypeNumeric},
			want: false,
		},
		{
			name: "plain string variable",
			meta: VariableMetadata{Name: "region", Label: "Region", Type: TypeString},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.IsOtherText(); got != tt.want {
				t.Errorf("IsOtherText() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetadataLookup(t *testing.T) {
	meta := &Metadata{Variables: []VariableMetadata{
		{Name: "q1", Label: "Satisfaction"},
		{Name: "q2", Label: "Region"},
	}}

	v, ok := meta.Lookup("q2")
	if !ok {
		t.Fatal("Lookup(q2) not found")
	}
	if v.Label != "Region" {
		t.Errorf("Lookup(q2).Label = %q, want %q", v.Label, "Region")
	}
	if _, ok := meta.Lookup("missing"); ok {
		t.Error("Lookup(missing) found, want not found")
	}
	if !meta.Has("q1") || meta.Has("q9") {
		t.Error("Has() disagrees with Lookup()")
	}

	names := meta.Names()
	if len(names) != 2 || names[0] != "q1" || names[1] != "q2" {
		t.Errorf("Names() = %v, want [q1 q2]", names)
	}
}

func TestMetadataMerge(t *testing.T) {
	meta := &Metadata{Variables: []VariableMetadata{
		{Name: "q1", Label: "original"},
		{Name: "q2"},
	}}

	merged := meta.Merge(
		VariableMetadata{Name: "q1", Label: "replaced"},
		VariableMetadata{Name: "q1_rec", Label: "derived"},
	)

	if len(merged.Variables) != 3 {
		t.Fatalf("merged has %d variables, want 3", len(merged.Variables))
	}
	if v, _ := merged.Lookup("q1"); v.Label != "replaced" {
		t.Errorf("q1 label = %q, want replaced", v.Label)
	}
	if !merged.Has("q1_rec") {
		t.Error("derived variable q1_rec missing after merge")
	}
	// The receiver is untouched.
	if v, _ := meta.Lookup("q1"); v.Label != "original" {
		t.Errorf("Merge mutated receiver: q1 label = %q", v.Label)
	}
	if meta.Has("q1_rec") {
		t.Error("Merge mutated receiver: q1_rec present")
	}
}
