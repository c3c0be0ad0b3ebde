package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

// RenderRequest carries everything a renderer needs: the survey, the
// significant tables, and the journaled warnings.
type RenderRequest struct {
	Survey   *survey.Survey
	Tables   []survey.CrossTab
	Warnings []Warning
	OutDir   string
}

// DeckRenderer writes a presentation deck and returns its path.
type DeckRenderer interface {
	RenderDeck(ctx context.Context, req RenderRequest) (string, error)
}

// DashboardRenderer writes an interactive summary and returns its path.
type DashboardRenderer interface {
	RenderDashboard(ctx context.Context, req RenderRequest) (string, error)
}

// JSONDeckRenderer writes the deck as a JSON slide list that downstream
// presentation tooling consumes.
type JSONDeckRenderer struct{}

type deckSlide struct {
	Title    string  `json:"title"`
	TableID  string  `json:"table_id,omitempty"`
	N        float64 `json:"n,omitempty"`
	PValue   float64 `json:"p_value,omitempty"`
	CramersV float64 `json:"cramers_v,omitempty"`
}

type deckDoc struct {
	Title  string      `json:"title"`
	Slides []deckSlide `json:"slides"`
}

func (JSONDeckRenderer) RenderDeck(ctx context.Context, req RenderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc := deckDoc{
		Title: fmt.Sprintf("%s: Significant Findings", surveyTitle(req.Survey)),
		Slides: []deckSlide{{
			Title: fmt.Sprintf("%d significant cross-tabulations", len(req.Tables)),
		}},
	}
	for _, tab := range req.Tables {
		doc.Slides = append(doc.Slides, deckSlide{
			Title:    fmt.Sprintf("%s by %s", tab.RowVariable, tab.ColumnVariable),
			TableID:  tab.TableID,
			N:        tab.N,
			PValue:   tab.PValue,
			CramersV: tab.CramersV,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(req.OutDir, "deck.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// HTMLDashboardRenderer writes a self-contained HTML summary page.
type HTMLDashboardRenderer struct{}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: left; }
th { background: #f0f0f0; }
.warning { color: #8a6d00; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{len .Tables}} significant cross-tabulations.</p>
<table>
<tr><th>Table</th><th>Rows</th><th>Columns</th><th>n</th><th>p</th><th>Cramer&#39;s V</th></tr>
{{range .Tables}}<tr>
<td>{{.TableID}}</td>
<td>{{.RowVariable}}</td>
<td>{{.ColumnVariable}}</td>
<td>{{printf "%.0f" .N}}</td>
<td>{{printf "%.4f" .PValue}}</td>
<td>{{printf "%.3f" .CramersV}}</td>
</tr>{{end}}
</table>
{{if .Warnings}}
<h2>Warnings</h2>
<ul>
{{range .Warnings}}<li class="warning">{{.Message}}</li>{{end}}
</ul>
{{end}}
</body>
</html>
`))

func (HTMLDashboardRenderer) RenderDashboard(ctx context.Context, req RenderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err := dashboardTmpl.Execute(&buf, struct {
		Title    string
		Tables   []survey.CrossTab
		Warnings []Warning
	}{
		Title:    fmt.Sprintf("%s: Analysis Dashboard", surveyTitle(req.Survey)),
		Tables:   req.Tables,
		Warnings: req.Warnings,
	})
	if err != nil {
		return "", err
	}

	path := filepath.Join(req.OutDir, "dashboard.html")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func surveyTitle(s *survey.Survey) string {
	if s == nil || s.Name == "" {
		return "Survey"
	}
	return s.Name
}

func (p *Pipeline) renderRequest(s State) RenderRequest {
	return RenderRequest{
		Survey:   s.Survey,
		Tables:   s.Significant.Tables,
		Warnings: s.Warnings,
		OutDir:   p.Config.OutputDir,
	}
}

func (p *Pipeline) renderDeck(ctx context.Context, s State) pipeline.Result[State] {
	if s.Significant == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("deck rendering requires filtered tables")}
	}
	path, err := p.Deck.RenderDeck(ctx, p.renderRequest(s))
	if err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to render deck", err)}
	}
	s.Outputs.DeckPath = path
	return pipeline.Result[State]{State: s}
}

func (p *Pipeline) renderDashboard(ctx context.Context, s State) pipeline.Result[State] {
	if s.Significant == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("dashboard rendering requires filtered tables")}
	}
	path, err := p.Dashboard.RenderDashboard(ctx, p.renderRequest(s))
	if err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to render dashboard", err)}
	}
	s.Outputs.DashboardPath = path
	return pipeline.Result[State]{State: s}
}
