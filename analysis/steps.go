package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/crosstab-io/surveyflow/config"
	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/pipeline/model"
	"github.com/crosstab-io/surveyflow/survey"
)

// Step ids, in execution order. The three generate/validate/review
// blocks expand from Loop definitions; everything else is a plain step.
const (
	StepLoadSurvey      = "load_survey"
	StepExtractMetadata = "extract_metadata"
	StepFilterVariables = "filter_variables"

	StepGenerateRecoding    = "generate_recoding"
	StepValidateRecoding    = "validate_recoding"
	StepReviewRecoding      = "review_recoding"
	StepBuildRecodingSyntax = "build_recoding_syntax"
	StepRunRecoding         = "run_recoding"
	StepRefreshMetadata     = "refresh_metadata"

	StepGenerateIndicators = "generate_indicators"
	StepValidateIndicators = "validate_indicators"
	StepReviewIndicators   = "review_indicators"

	StepGenerateTableSpecs = "generate_table_specs"
	StepValidateTableSpecs = "validate_table_specs"
	StepReviewTableSpecs   = "review_table_specs"
	StepBuildTableSyntax   = "build_table_syntax"
	StepRunTables          = "run_tables"
	StepCollectTables      = "collect_tables"

	StepFilterSignificant = "filter_significant"
	StepExportResults     = "export_results"
	StepRenderDeck        = "render_deck"
	StepRenderDashboard   = "render_dashboard"
)

// Pipeline bundles the collaborators the step handlers need. Model is
// required; every other collaborator has a production default.
type Pipeline struct {
	Config config.Config

	// Model generates the three artifacts.
	Model model.ChatModel

	// Reader resolves the input into survey metadata. Defaults to
	// JSONMetadataReader.
	Reader MetadataReader

	// Stats executes rendered syntax files. Defaults to a PSPPRunner at
	// the configured binary path.
	Stats StatsRunner

	// Deck and Dashboard render the final outputs.
	Deck      DeckRenderer
	Dashboard DashboardRenderer

	// Policy filters computed tables. The zero value means the default
	// policy.
	Policy survey.SignificancePolicy

	// Usage, when set, accumulates model token usage per step.
	Usage *model.UsageTracker

	// Metrics, when set, records validation failures and token counts.
	Metrics *pipeline.PrometheusMetrics
}

// Build assembles the full step registry, ready to hand to the engine.
func (p *Pipeline) Build() (*pipeline.Registry[State], error) {
	if p.Model == nil {
		return nil, errors.New("analysis pipeline needs a chat model")
	}
	if p.Config == (config.Config{}) {
		p.Config = config.Default()
	}
	if p.Reader == nil {
		p.Reader = JSONMetadataReader{}
	}
	if p.Stats == nil {
		p.Stats = &PSPPRunner{Path: p.Config.PSPPPath}
	}
	if p.Deck == nil {
		p.Deck = JSONDeckRenderer{}
	}
	if p.Dashboard == nil {
		p.Dashboard = HTMLDashboardRenderer{}
	}

	reg := pipeline.NewRegistry[State]()
	plain := func(stages ...pipeline.Step[State]) error {
		for _, s := range stages {
			if err := reg.Register(s); err != nil {
				return err
			}
		}
		return nil
	}

	if err := plain(
		pipeline.Step[State]{ID: StepLoadSurvey, Run: p.loadSurvey},
		pipeline.Step[State]{ID: StepExtractMetadata, Run: p.extractMetadata},
		pipeline.Step[State]{ID: StepFilterVariables, Run: p.filterVariables},
	); err != nil {
		return nil, err
	}
	if err := pipeline.RegisterLoop(reg, p.recodingLoop()); err != nil {
		return nil, err
	}
	if err := plain(
		pipeline.Step[State]{ID: StepBuildRecodingSyntax, Run: p.buildRecodingSyntax},
		pipeline.Step[State]{ID: StepRunRecoding, Run: p.runRecoding},
		pipeline.Step[State]{ID: StepRefreshMetadata, Run: p.refreshMetadata},
	); err != nil {
		return nil, err
	}
	if err := pipeline.RegisterLoop(reg, p.indicatorsLoop()); err != nil {
		return nil, err
	}
	if err := pipeline.RegisterLoop(reg, p.tableSpecsLoop()); err != nil {
		return nil, err
	}
	if err := plain(
		pipeline.Step[State]{ID: StepBuildTableSyntax, Run: p.buildTableSyntax},
		pipeline.Step[State]{ID: StepRunTables, Run: p.runTables},
		pipeline.Step[State]{ID: StepCollectTables, Run: p.collectTables},
		pipeline.Step[State]{ID: StepFilterSignificant, Run: p.filterSignificant},
		pipeline.Step[State]{ID: StepExportResults, Run: p.exportResults},
		pipeline.Step[State]{ID: StepRenderDeck, Run: p.renderDeck},
		pipeline.Step[State]{ID: StepRenderDashboard, Run: p.renderDashboard},
	); err != nil {
		return nil, err
	}

	return reg, nil
}

func (p *Pipeline) recodingLoop() pipeline.Loop[State] {
	return pipeline.Loop[State]{
		Artifact:    ArtifactRecoding,
		GenerateID:  StepGenerateRecoding,
		ValidateID:  StepValidateRecoding,
		ReviewID:    StepReviewRecoding,
		MaxAttempts: p.Config.MaxIterations,
		AutoApprove: p.Config.AutoApprove(ArtifactRecoding),
		Generate:    p.generateRecoding,
		Validate:    p.validateRecoding,
		Describe:    describeRecoding,
		Cycle:       func(s State) pipeline.ReviewCycle { return s.Recoding.Cycle },
		SetCycle: func(s State, c pipeline.ReviewCycle) State {
			s.Recoding.Cycle = c
			return s
		},
		Warn: warnFor(ArtifactRecoding, StepReviewRecoding),
	}
}

func (p *Pipeline) indicatorsLoop() pipeline.Loop[State] {
	return pipeline.Loop[State]{
		Artifact:    ArtifactIndicators,
		GenerateID:  StepGenerateIndicators,
		ValidateID:  StepValidateIndicators,
		ReviewID:    StepReviewIndicators,
		MaxAttempts: p.Config.MaxIterations,
		AutoApprove: p.Config.AutoApprove(ArtifactIndicators),
		Generate:    p.generateIndicators,
		Validate:    p.validateIndicators,
		Describe:    describeIndicators,
		Cycle:       func(s State) pipeline.ReviewCycle { return s.Indicators.Cycle },
		SetCycle: func(s State, c pipeline.ReviewCycle) State {
			s.Indicators.Cycle = c
			return s
		},
		Warn: warnFor(ArtifactIndicators, StepReviewIndicators),
	}
}

func (p *Pipeline) tableSpecsLoop() pipeline.Loop[State] {
	return pipeline.Loop[State]{
		Artifact:    ArtifactTableSpecs,
		GenerateID:  StepGenerateTableSpecs,
		ValidateID:  StepValidateTableSpecs,
		ReviewID:    StepReviewTableSpecs,
		MaxAttempts: p.Config.MaxIterations,
		AutoApprove: p.Config.AutoApprove(ArtifactTableSpecs),
		Generate:    p.generateTableSpecs,
		Validate:    p.validateTableSpecs,
		Describe:    describeTableSpecs,
		Cycle:       func(s State) pipeline.ReviewCycle { return s.Tables.Cycle },
		SetCycle: func(s State, c pipeline.ReviewCycle) State {
			s.Tables.Cycle = c
			return s
		},
		Warn: warnFor(ArtifactTableSpecs, StepReviewTableSpecs),
	}
}

// warnFor builds the journal hook a loop calls when an exhausted
// artifact is forced through to review.
func warnFor(artifact, stepID string) func(State, string) State {
	return func(s State, message string) State {
		return s.warn(artifact, stepID, message)
	}
}

func describeRecoding(s State) string {
	if s.Recoding.Rules == nil {
		return "The response could not be parsed as recoding rules:\n\n" + tail(s.Recoding.Raw, 2000)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d recoding rules:\n", len(s.Recoding.Rules.Rules))
	for i, r := range s.Recoding.Rules.Rules {
		fmt.Fprintf(&b, "%d. %s -> %s (%s, %d transformations)",
			i+1, r.SourceVariable, r.TargetVariable, r.RuleType, len(r.Transformations))
		if r.Rationale != "" {
			b.WriteString(": " + r.Rationale)
		}
		b.WriteByte('\n')
	}
	if s.Recoding.Rules.Notes != "" {
		b.WriteString("\nNotes: " + s.Recoding.Rules.Notes + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeIndicators(s State) string {
	if s.Indicators.Set == nil {
		return "The response could not be parsed as indicators:\n\n" + tail(s.Indicators.Raw, 2000)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d indicators:\n", len(s.Indicators.Set.Indicators))
	for i, ind := range s.Indicators.Set.Indicators {
		fmt.Fprintf(&b, "%d. %s (%s): %s [%s]\n",
			i+1, ind.ID, ind.Metric, ind.Description, strings.Join(ind.UnderlyingVariables, ", "))
	}
	if s.Indicators.Set.Notes != "" {
		b.WriteString("\nNotes: " + s.Indicators.Set.Notes + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeTableSpecs(s State) string {
	if s.Tables.Specs == nil {
		return "The response could not be parsed as table specifications:\n\n" + tail(s.Tables.Raw, 2000)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d cross-tables:\n", len(s.Tables.Specs.Tables))
	for i, t := range s.Tables.Specs.Tables {
		fmt.Fprintf(&b, "%d. %s: %s (rows: %s; columns: %s)\n",
			i+1, t.ID, t.Description,
			strings.Join(t.RowIndicators, ", "), strings.Join(t.ColumnIndicators, ", "))
	}
	if w := s.Tables.Specs.WeightingVariable; w != "" {
		b.WriteString("\nWeighted by " + w + "\n")
	}
	if s.Tables.Specs.Notes != "" {
		b.WriteString("\nNotes: " + s.Tables.Specs.Notes + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
