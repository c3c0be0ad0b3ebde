package analysis

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

func (p *Pipeline) collectTables(_ context.Context, s State) pipeline.Result[State] {
	if s.Tables.OutputPath == "" {
		return pipeline.Result[State]{Err: pipeline.Fatalf("table collection requires a tabulation output file")}
	}

	data, err := os.ReadFile(s.Tables.OutputPath)
	if err != nil {
		return pipeline.Result[State]{Err: pipeline.NewExternalServiceError("pspp", "read_output", false, err)}
	}

	tabs, err := ParseCrosstabCSV(string(data))
	if err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to parse tabulation output", err)}
	}
	attributeTables(tabs, s.Tables.Specs, s.Indicators.Set)

	s.Results = &ResultSet{Tables: tabs}
	return pipeline.Result[State]{State: s}
}

// crosstab listing sections
const (
	sectionNone = iota
	sectionChiSquare
	sectionSymmetric
)

// ParseCrosstabCSV parses a PSPP CSV listing into cross-tabulations.
// The listing interleaves "Table:" headers with data rows; each
// variable pair contributes a crosstab table followed by "Chi-Square
// Tests" and "Symmetric Measures" tables, and those statistics are
// folded into the pair's CrossTab.
func ParseCrosstabCSV(listing string) ([]survey.CrossTab, error) {
	reader := csv.NewReader(strings.NewReader(listing))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv listing: %w", err)
	}

	var (
		tabs    []survey.CrossTab
		current *survey.CrossTab
		section = sectionNone
	)
	flush := func() {
		if current != nil {
			tabs = append(tabs, *current)
			current = nil
		}
	}

	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}

		if title, ok := strings.CutPrefix(rec[0], "Table: "); ok {
			switch {
			case strings.HasPrefix(title, "Chi-Square Tests"):
				section = sectionChiSquare
			case strings.HasPrefix(title, "Symmetric Measures"):
				section = sectionSymmetric
			default:
				if row, col, ok := splitPair(title); ok {
					flush()
					current = &survey.CrossTab{RowVariable: row, ColumnVariable: col}
				}
				section = sectionNone
			}
			continue
		}
		if current == nil {
			continue
		}

		switch section {
		case sectionChiSquare:
			switch {
			case rec[0] == "Pearson Chi-Square" && len(rec) >= 4:
				current.ChiSquare = parseFloat(rec[1])
				current.DF = int(parseFloat(rec[2]))
				current.PValue = parseFloat(rec[3])
			case rec[0] == "N of Valid Cases" && len(rec) >= 2 && current.N == 0:
				current.N = parseFloat(rec[1])
			}
		case sectionSymmetric:
			for i, f := range rec {
				if strings.TrimSpace(f) == "Cramer's V" && i+1 < len(rec) {
					current.CramersV = parseFloat(rec[i+1])
					break
				}
			}
			if rec[0] == "N of Valid Cases" && len(rec) >= 2 && current.N == 0 {
				current.N = parseFloat(rec[1])
			}
		}
	}
	flush()
	return tabs, nil
}

// splitPair splits a crosstab table title such as "age_group × region
// [count]" into its row and column variables.
func splitPair(title string) (row, col string, ok bool) {
	if i := strings.Index(title, " ["); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSuffix(strings.TrimSpace(title), ".")
	for _, sep := range []string{" × ", " * ", " BY ", " by "} {
		if r, c, found := strings.Cut(title, sep); found {
			r, c = strings.TrimSpace(r), strings.TrimSpace(c)
			if r != "" && c != "" {
				return r, c, true
			}
		}
	}
	return "", "", false
}

// parseFloat reads a statistic cell, tolerating thousands separators,
// bare leading dots, and the "<.001" convention. Unparseable cells read
// as zero.
func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.ReplaceAll(s, ",", "")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// attributeTables assigns each parsed crosstab the id of the first spec
// whose row and column indicators expand to its variable pair.
func attributeTables(tabs []survey.CrossTab, specs *survey.TableSpecSet, indicators *survey.IndicatorSet) {
	if specs == nil || indicators == nil {
		return
	}

	type pair struct{ row, col string }
	claims := make(map[pair]string)
	for _, spec := range specs.Tables {
		for _, row := range indicators.Variables(spec.RowIndicators) {
			for _, col := range indicators.Variables(spec.ColumnIndicators) {
				key := pair{row, col}
				if _, taken := claims[key]; !taken {
					claims[key] = spec.ID
				}
			}
		}
	}

	for i := range tabs {
		tabs[i].TableID = claims[pair{tabs[i].RowVariable, tabs[i].ColumnVariable}]
	}
}

func (p *Pipeline) filterSignificant(_ context.Context, s State) pipeline.Result[State] {
	if s.Results == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("significance filtering requires collected tables")}
	}

	policy := p.Policy
	if policy == (survey.SignificancePolicy{}) {
		policy = survey.DefaultSignificancePolicy()
	}

	var kept []survey.CrossTab
	for _, tab := range s.Results.Tables {
		var spec survey.TableSpec
		if s.Tables.Specs != nil {
			spec, _ = s.Tables.Specs.Lookup(tab.TableID)
		}
		keep, warning := policy.Evaluate(tab, spec)
		if warning != "" {
			s = s.warn("", StepFilterSignificant, warning)
		}
		if keep {
			kept = append(kept, tab)
		}
	}
	if len(kept) == 0 && len(s.Results.Tables) > 0 {
		s = s.warn("", StepFilterSignificant, fmt.Sprintf(
			"none of the %d computed tables passed the significance policy", len(s.Results.Tables)))
	}

	s.Significant = &ResultSet{Tables: kept}
	return pipeline.Result[State]{State: s}
}

// resultsDoc is the exported results file layout.
type resultsDoc struct {
	Survey   *survey.Survey    `json:"survey"`
	Tables   []survey.CrossTab `json:"tables"`
	Warnings []Warning         `json:"warnings,omitempty"`
	SavedAt  time.Time         `json:"saved_at"`
}

func (p *Pipeline) exportResults(_ context.Context, s State) pipeline.Result[State] {
	if s.Significant == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("results export requires filtered tables")}
	}
	if err := os.MkdirAll(p.Config.OutputDir, 0o755); err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to create output directory", err)}
	}

	doc := resultsDoc{
		Survey:   s.Survey,
		Tables:   s.Significant.Tables,
		Warnings: s.Warnings,
		SavedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to encode results", err)}
	}

	path := filepath.Join(p.Config.OutputDir, "results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to write results", err)}
	}

	s.Outputs.ResultsPath = path
	return pipeline.Result[State]{State: s}
}
