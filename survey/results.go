package survey

import "fmt"

// CrossTab is one computed cross-tabulation together with its
// chi-square statistics.
type CrossTab struct {
	TableID        string      `json:"table_id"`
	RowVariable    string      `json:"row_variable"`
	ColumnVariable string      `json:"column_variable"`
	RowLabels      []string    `json:"row_labels,omitempty"`
	ColumnLabels   []string    `json:"column_labels,omitempty"`
	Counts         [][]float64 `json:"counts,omitempty"`

	// N is the unweighted base of the table.
	N         float64 `json:"n"`
	ChiSquare float64 `json:"chi_square"`
	DF        int     `json:"df"`
	PValue    float64 `json:"p_value"`
	CramersV  float64 `json:"cramers_v"`
}

// SignificancePolicy decides which cross-tabulations are worth
// reporting.
type SignificancePolicy struct {
	// Alpha is the p-value ceiling for statistical significance.
	Alpha float64 `json:"alpha"`
	// MinCramersV is the effect-size floor. A table spec may override
	// it per table.
	MinCramersV float64 `json:"min_cramers_v"`
	// MinN is the minimum unweighted base when the table spec does not
	// set its own.
	MinN int `json:"min_n"`
}

// DefaultSignificancePolicy reports tables at p <= 0.05 with at least
// a weak association and a base of 30.
func DefaultSignificancePolicy() SignificancePolicy {
	return SignificancePolicy{Alpha: 0.05, MinCramersV: 0.1, MinN: 30}
}

// Evaluate decides whether tab should be kept under p. The table spec
// supplies per-table overrides for the effect-size floor and minimum
// base. A non-empty warning is returned when the table is significant
// but dropped for an insufficient base.
func (p SignificancePolicy) Evaluate(tab CrossTab, spec TableSpec) (keep bool, warning string) {
	threshold := p.MinCramersV
	if spec.CramersVThreshold != nil {
		threshold = *spec.CramersVThreshold
	}
	minN := p.MinN
	if spec.MinCount > 0 {
		minN = spec.MinCount
	}

	significant := tab.PValue <= p.Alpha && tab.CramersV >= threshold
	if !significant {
		return false, ""
	}
	if tab.N < float64(minN) {
		return false, fmt.Sprintf(
			"table %s (%s x %s) is significant (p=%.4f, V=%.3f) but its base n=%.0f is below the minimum of %d",
			tab.TableID, tab.RowVariable, tab.ColumnVariable, tab.PValue, tab.CramersV, tab.N, minN)
	}
	return true, ""
}
