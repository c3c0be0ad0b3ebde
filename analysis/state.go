// Package analysis implements the survey-analysis pipeline: the typed
// workflow state, the step handlers for all twenty-two steps, the
// deterministic validators, the prompt builders, and the collaborator
// interfaces for the statistics tool and the output renderers.
package analysis

import (
	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

// Artifact names, used as review-cycle identifiers and metric labels.
const (
	ArtifactRecoding   = "recoding"
	ArtifactIndicators = "indicators"
	ArtifactTableSpecs = "table_specs"
)

// Warning is one journaled advisory: an artifact forced through review
// without passing validation, or a statistical caveat from the
// significance filter. Warnings accumulate in state and surface in the
// exported results.
type Warning struct {
	// Artifact is set for review-loop warnings, empty for statistical
	// ones.
	Artifact string `json:"artifact,omitempty"`
	StepID   string `json:"step_id,omitempty"`
	Message  string `json:"message"`
}

// RecodingPhase carries the recoding artifact through its
// generate/validate/review loop and the PSPP execution that follows.
type RecodingPhase struct {
	Cycle pipeline.ReviewCycle `json:"cycle"`

	// Raw is the model's latest unparsed response; ParseError is set
	// when it was not valid JSON, in which case Rules is nil and
	// validation drives a regeneration.
	Raw        string          `json:"raw,omitempty"`
	ParseError string          `json:"parse_error,omitempty"`
	Rules      *survey.RuleSet `json:"rules,omitempty"`

	SyntaxPath  string `json:"syntax_path,omitempty"`
	RecodedPath string `json:"recoded_path,omitempty"`
}

// IndicatorsPhase carries the indicator artifact through its loop.
type IndicatorsPhase struct {
	Cycle pipeline.ReviewCycle `json:"cycle"`

	Raw        string               `json:"raw,omitempty"`
	ParseError string               `json:"parse_error,omitempty"`
	Set        *survey.IndicatorSet `json:"set,omitempty"`
}

// TablesPhase carries the table-specification artifact through its loop
// and the tabulation that follows.
type TablesPhase struct {
	Cycle pipeline.ReviewCycle `json:"cycle"`

	Raw        string               `json:"raw,omitempty"`
	ParseError string               `json:"parse_error,omitempty"`
	Specs      *survey.TableSpecSet `json:"specs,omitempty"`

	SyntaxPath string `json:"syntax_path,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// ResultSet holds parsed cross-tabulations. A non-nil ResultSet with no
// tables means the phase ran and found nothing.
type ResultSet struct {
	Tables []survey.CrossTab `json:"tables"`
}

// Outputs records where the final artifacts were written.
type Outputs struct {
	ResultsPath   string `json:"results_path,omitempty"`
	DeckPath      string `json:"deck_path,omitempty"`
	DashboardPath string `json:"dashboard_path,omitempty"`
}

// State is the workflow state threaded through every pipeline step. It
// is a plain JSON-serializable value; the engine checkpoints it after
// each step and every run resumes from the latest checkpoint alone.
//
// Pointer fields mark phase completion: a step that needs an earlier
// phase's output nil-checks it and fails fatal when the prerequisite is
// absent, since that indicates a mis-routed or hand-edited run.
type State struct {
	// Input is the survey reference given on the command line.
	Input string `json:"input"`

	Survey   *survey.Survey   `json:"survey,omitempty"`
	Metadata *survey.Metadata `json:"metadata,omitempty"`

	// Filtered is the analysis variable set: Metadata minus the
	// high-cardinality, binary, and free-text variables the
	// configuration excludes, plus derived variables once recoding ran.
	Filtered *survey.Metadata `json:"filtered,omitempty"`

	Recoding   RecodingPhase   `json:"recoding"`
	Indicators IndicatorsPhase `json:"indicators"`
	Tables     TablesPhase     `json:"tables"`

	// Results holds every parsed cross-tabulation; Significant the
	// subset that passed the significance policy.
	Results     *ResultSet `json:"results,omitempty"`
	Significant *ResultSet `json:"significant,omitempty"`

	Outputs  Outputs   `json:"outputs"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// warn appends a journal entry and returns the updated state.
func (s State) warn(artifact, stepID, message string) State {
	s.Warnings = append(s.Warnings, Warning{
		Artifact: artifact,
		StepID:   stepID,
		Message:  message,
	})
	return s
}
