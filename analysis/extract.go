package analysis

import (
	"context"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

// loadSurvey resolves the input reference into survey source info.
func (p *Pipeline) loadSurvey(ctx context.Context, s State) pipeline.Result[State] {
	src, _, err := p.Reader.Read(ctx, s.Input)
	if err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to load survey", err)}
	}
	s.Survey = &src
	return pipeline.Result[State]{State: s}
}

// extractMetadata reads the variable-centered metadata for the survey.
func (p *Pipeline) extractMetadata(ctx context.Context, s State) pipeline.Result[State] {
	if s.Survey == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("metadata extraction requires survey source info")}
	}
	_, meta, err := p.Reader.Read(ctx, s.Input)
	if err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to extract metadata", err)}
	}
	s.Metadata = &meta
	return pipeline.Result[State]{State: s}
}

// filterVariables builds the analysis variable set by dropping what the
// configuration excludes: high-cardinality categoricals, binary flags,
// and the free-text companions of "other" options. Dropped variables
// stay in the full metadata, so validators still accept references to
// them; filtering only shapes what the model is shown.
func (p *Pipeline) filterVariables(_ context.Context, s State) pipeline.Result[State] {
	if s.Metadata == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("variable filtering requires extracted metadata")}
	}

	kept := make([]survey.VariableMetadata, 0, len(s.Metadata.Variables))
	dropped := 0
	for _, v := range s.Metadata.Variables {
		switch {
		case v.Cardinality() > p.Config.CardinalityThreshold:
			dropped++
		case p.Config.FilterBinary && v.IsBinary():
			dropped++
		case p.Config.FilterOtherText && v.IsOtherText():
			dropped++
		default:
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return pipeline.Result[State]{Err: pipeline.Fatalf(
			"no variables left for analysis after filtering (%d dropped)", dropped)}
	}

	s.Filtered = &survey.Metadata{Variables: kept}
	return pipeline.Result[State]{State: s}
}

// refreshMetadata folds the derived variables from the approved recoding
// rules into both the full and the filtered variable sets, making them
// available to indicator and table generation.
func (p *Pipeline) refreshMetadata(_ context.Context, s State) pipeline.Result[State] {
	if s.Metadata == nil || s.Filtered == nil || s.Recoding.Rules == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf(
			"metadata refresh requires metadata and approved recoding rules")}
	}
	derived := s.Recoding.Rules.DerivedMetadata()
	s.Metadata = s.Metadata.Merge(derived...)
	s.Filtered = s.Filtered.Merge(derived...)
	return pipeline.Result[State]{State: s}
}
