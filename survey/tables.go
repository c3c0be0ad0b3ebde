package survey

// SortOrder controls how table rows or columns are ordered.
type SortOrder string

const (
	SortNone SortOrder = "none"
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid reports whether o is a known sort order. The empty string is
// treated as none.
func (o SortOrder) Valid() bool {
	switch o {
	case "", SortNone, SortAsc, SortDesc:
		return true
	}
	return false
}

// TableSpec describes one cross-tabulation: which indicators form the
// rows, which form the columns, and how the result should be filtered.
type TableSpec struct {
	ID               string    `json:"id"`
	Description      string    `json:"description"`
	RowIndicators    []string  `json:"row_indicators"`
	ColumnIndicators []string  `json:"column_indicators"`
	SortRows         SortOrder `json:"sort_rows,omitempty"`
	SortColumns      SortOrder `json:"sort_columns,omitempty"`

	// MinCount is the minimum unweighted cell base for the table to be
	// reported. Zero means the default of 30.
	MinCount int `json:"min_count,omitempty"`

	// CramersVThreshold overrides the significance policy's effect-size
	// floor for this table. Must be in [0, 1] when set.
	CramersVThreshold *float64 `json:"cramers_v_threshold,omitempty"`
}

// EffectiveMinCount returns MinCount, or the default base of 30 when
// unset.
func (t *TableSpec) EffectiveMinCount() int {
	if t.MinCount > 0 {
		return t.MinCount
	}
	return 30
}

// TableSpecSet is the table-specification artifact produced by the
// generation step.
type TableSpecSet struct {
	Tables []TableSpec `json:"tables"`
	// WeightingVariable, when set, names the survey weight applied to
	// every table.
	WeightingVariable string `json:"weighting_variable,omitempty"`
	Notes             string `json:"generation_notes,omitempty"`
}

// Lookup finds a table spec by id.
func (s *TableSpecSet) Lookup(id string) (TableSpec, bool) {
	for _, t := range s.Tables {
		if t.ID == id {
			return t, true
		}
	}
	return TableSpec{}, false
}
