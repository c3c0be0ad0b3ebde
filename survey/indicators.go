package survey

// Metric is the aggregation an indicator uses.
type Metric string

const (
	// MetricAverage averages numeric rating scales.
	MetricAverage Metric = "average"
	// MetricPercentage summarizes binary 0/1 variables.
	MetricPercentage Metric = "percentage"
	// MetricDistribution tabulates categorical variables.
	MetricDistribution Metric = "distribution"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricAverage, MetricPercentage, MetricDistribution:
		return true
	}
	return false
}

// Indicator is a composite measure built from one or more variables.
type Indicator struct {
	ID                  string   `json:"id"`
	Description         string   `json:"description"`
	Metric              Metric   `json:"metric"`
	UnderlyingVariables []string `json:"underlying_variables"`
}

// IndicatorSet is the indicator artifact produced by the generation
// step.
type IndicatorSet struct {
	Indicators []Indicator `json:"indicators"`
	Notes      string      `json:"generation_notes,omitempty"`
}

// Lookup finds an indicator by id.
func (s *IndicatorSet) Lookup(id string) (Indicator, bool) {
	for _, ind := range s.Indicators {
		if ind.ID == id {
			return ind, true
		}
	}
	return Indicator{}, false
}

// IDs returns all indicator ids, in order.
func (s *IndicatorSet) IDs() []string {
	ids := make([]string, len(s.Indicators))
	for i, ind := range s.Indicators {
		ids[i] = ind.ID
	}
	return ids
}

// Variables resolves indicator ids to the union of their underlying
// variables, preserving first-seen order. Unknown ids are skipped.
func (s *IndicatorSet) Variables(ids []string) []string {
	var vars []string
	seen := make(map[string]bool)
	for _, id := range ids {
		ind, ok := s.Lookup(id)
		if !ok {
			continue
		}
		for _, v := range ind.UnderlyingVariables {
			if !seen[v] {
				seen[v] = true
				vars = append(vars, v)
			}
		}
	}
	return vars
}
