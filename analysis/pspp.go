package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

// ExecRequest asks a stats runner to execute one syntax file. OutputPath,
// when set, requests the tool's tabular listing at that path.
type ExecRequest struct {
	SyntaxPath string
	WorkDir    string
	OutputPath string
}

// ExecResult is the outcome of a stats run. A non-zero ExitCode is
// reported here rather than as an error so steps can decide how to
// surface it.
type ExecResult struct {
	ExitCode int
	Output   string
}

// StatsRunner executes statistical syntax files. The production runner
// shells out to PSPP; tests substitute a fake.
type StatsRunner interface {
	Run(ctx context.Context, req ExecRequest) (ExecResult, error)
}

// PSPPRunner runs syntax files through the pspp binary in batch mode.
type PSPPRunner struct {
	Path string
}

func (r *PSPPRunner) Run(ctx context.Context, req ExecRequest) (ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}

	args := []string{"--batch"}
	if req.OutputPath != "" {
		args = append(args, "-o", req.OutputPath, "-O", "format=csv")
	}
	args = append(args, req.SyntaxPath)

	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Dir = req.WorkDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return ExecResult{}, pipeline.NewExternalServiceError("pspp", "exec", true, ctxErr)
			}
			return ExecResult{}, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ExecResult{ExitCode: exitErr.ExitCode(), Output: string(out)}, nil
		}
		return ExecResult{}, pipeline.NewExternalServiceError("pspp", "exec", false, err)
	}
	return ExecResult{Output: string(out)}, nil
}

// execCtx bounds a stats invocation when a timeout is configured.
func (p *Pipeline) execCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Config.StatsTimeoutSeconds > 0 {
		return context.WithTimeout(ctx, time.Duration(p.Config.StatsTimeoutSeconds)*time.Second)
	}
	return ctx, func() {}
}

func (p *Pipeline) buildRecodingSyntax(_ context.Context, s State) pipeline.Result[State] {
	if s.Survey == nil || s.Recoding.Rules == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("recoding syntax requires approved rules")}
	}
	if err := os.MkdirAll(p.Config.OutputDir, 0o755); err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to create output directory", err)}
	}

	syntaxPath := filepath.Join(p.Config.OutputDir, "recoding.sps")
	recodedPath := filepath.Join(p.Config.OutputDir, "recoded.sav")
	syntax := survey.RecodingSyntax(s.Recoding.Rules.Rules, s.Survey.DataPath, recodedPath)
	if err := os.WriteFile(syntaxPath, []byte(syntax), 0o644); err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to write recoding syntax", err)}
	}

	s.Recoding.SyntaxPath = syntaxPath
	s.Recoding.RecodedPath = recodedPath
	return pipeline.Result[State]{State: s}
}

func (p *Pipeline) runRecoding(ctx context.Context, s State) pipeline.Result[State] {
	if s.Recoding.SyntaxPath == "" {
		return pipeline.Result[State]{Err: pipeline.Fatalf("recoding run requires generated syntax")}
	}

	rctx, cancel := p.execCtx(ctx)
	defer cancel()
	res, err := p.Stats.Run(rctx, ExecRequest{SyntaxPath: s.Recoding.SyntaxPath})
	if err != nil {
		return pipeline.Result[State]{Err: err}
	}
	if res.ExitCode != 0 {
		return pipeline.Result[State]{Err: pipeline.NewExternalServiceError(
			"pspp", "recode", false,
			fmt.Errorf("exit code %d: %s", res.ExitCode, tail(res.Output, 500)))}
	}
	return pipeline.Result[State]{State: s}
}

func (p *Pipeline) buildTableSyntax(_ context.Context, s State) pipeline.Result[State] {
	if s.Tables.Specs == nil || s.Indicators.Set == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("table syntax requires approved specifications")}
	}
	if err := os.MkdirAll(p.Config.OutputDir, 0o755); err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to create output directory", err)}
	}

	dataPath := s.Recoding.RecodedPath
	if dataPath == "" && s.Survey != nil {
		dataPath = s.Survey.DataPath
	}
	syntaxPath := filepath.Join(p.Config.OutputDir, "tables.sps")
	syntax := survey.TableSyntax(*s.Tables.Specs, *s.Indicators.Set, dataPath)
	if err := os.WriteFile(syntaxPath, []byte(syntax), 0o644); err != nil {
		return pipeline.Result[State]{Err: pipeline.FatalWrap("failed to write table syntax", err)}
	}

	s.Tables.SyntaxPath = syntaxPath
	return pipeline.Result[State]{State: s}
}

func (p *Pipeline) runTables(ctx context.Context, s State) pipeline.Result[State] {
	if s.Tables.SyntaxPath == "" {
		return pipeline.Result[State]{Err: pipeline.Fatalf("table run requires generated syntax")}
	}

	outputPath := filepath.Join(p.Config.OutputDir, "tables.csv")
	rctx, cancel := p.execCtx(ctx)
	defer cancel()
	res, err := p.Stats.Run(rctx, ExecRequest{
		SyntaxPath: s.Tables.SyntaxPath,
		OutputPath: outputPath,
	})
	if err != nil {
		return pipeline.Result[State]{Err: err}
	}
	if res.ExitCode != 0 {
		return pipeline.Result[State]{Err: pipeline.NewExternalServiceError(
			"pspp", "crosstabs", false,
			fmt.Errorf("exit code %d: %s", res.ExitCode, tail(res.Output, 500)))}
	}

	s.Tables.OutputPath = outputPath
	return pipeline.Result[State]{State: s}
}

// tail returns the last n bytes of s, prefixed when truncated.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
