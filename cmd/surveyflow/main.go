// Command surveyflow runs the survey-analysis pipeline: it loads a
// survey, drives the recoding, indicator and table-specification loops
// through a generative model, executes PSPP for the statistics, and
// writes the significant cross-tabulations, a deck and a dashboard.
//
// Runs checkpoint after every step, so an interrupted or suspended run
// is resumed with `surveyflow resume <run_id>`. Review gates prompt on
// the terminal unless --no-review auto-approves them.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.jetify.com/typeid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/crosstab-io/surveyflow/analysis"
	"github.com/crosstab-io/surveyflow/config"
	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/pipeline/emit"
	"github.com/crosstab-io/surveyflow/pipeline/model"
	"github.com/crosstab-io/surveyflow/pipeline/model/providers"
	"github.com/crosstab-io/surveyflow/pipeline/store"
)

func main() {
	app := &cli.Command{
		Name:  "surveyflow",
		Usage: "Automated cross-tabulation analysis for survey data",
		Commands: []*cli.Command{
			runCommand(),
			resumeCommand(),
			statusCommand(),
			runsCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// storeFlags select and configure the checkpoint store. Shared by every
// subcommand, since they all read or write run history.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "store", Value: "sqlite", Usage: "checkpoint store: sqlite, mysql or memory"},
		&cli.StringFlag{Name: "db", Value: "surveyflow.db", Usage: "SQLite database path"},
		&cli.StringFlag{Name: "mysql-dsn", Usage: "MySQL DSN; defaults to the SURVEYFLOW_MYSQL_DSN environment variable"},
	}
}

// modelFlags select the generative model provider.
func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "model", Value: "anthropic", Usage: "model provider: mock, anthropic, openai or google"},
		&cli.StringFlag{Name: "model-name", Usage: "provider-specific model override"},
	}
}

func runCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "YAML configuration file"},
		&cli.StringFlag{Name: "out", Usage: "output directory (overrides config)"},
		&cli.StringFlag{Name: "run-id", Usage: "explicit run id (default: generated)"},
		&cli.BoolFlag{Name: "no-review", Usage: "auto-approve every review step"},
		&cli.IntFlag{Name: "max-iterations", Usage: "regeneration attempts per artifact (overrides config)"},
		&cli.BoolFlag{Name: "json-logs", Usage: "log as JSON lines instead of colorized text"},
		&cli.BoolFlag{Name: "json-events", Usage: "emit engine events as JSON lines on stdout"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address (e.g. :9090)"},
		&cli.StringFlag{Name: "trace", Usage: "write OpenTelemetry spans as JSON to this file"},
	}
	flags = append(flags, storeFlags()...)
	flags = append(flags, modelFlags()...)

	return &cli.Command{
		Name:      "run",
		Usage:     "Run the analysis pipeline on a survey file",
		ArgsUsage: "<input>",
		Flags:     flags,
		Action:    runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	input := cmd.Args().First()
	if input == "" {
		return fmt.Errorf("usage: surveyflow run <input>")
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("survey file %s: %w", input, err)
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if out := cmd.String("out"); out != "" {
		cfg.OutputDir = out
	}
	if n := int(cmd.Int("max-iterations")); n > 0 {
		cfg.MaxIterations = n
	}

	runID := cmd.String("run-id")
	if runID == "" {
		runID = newRunID()
	}

	return execute(ctx, cmd, cfg, func(eng *pipeline.Engine[analysis.State], logger *slog.Logger) (pipeline.Outcome[analysis.State], error) {
		logger.Info("starting run",
			"run_id", runID,
			"input", input,
			"model", cmd.String("model"),
			"store", cmd.String("store"))
		return eng.Run(ctx, runID, analysis.State{Input: input})
	})
}

func resumeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{Name: "approve", Usage: "approve the pending review"},
		&cli.StringFlag{Name: "reject", Usage: "reject the pending review with this feedback"},
		&cli.StringFlag{Name: "config", Usage: "YAML configuration file"},
		&cli.BoolFlag{Name: "no-review", Usage: "auto-approve every later review step"},
		&cli.BoolFlag{Name: "json-logs", Usage: "log as JSON lines instead of colorized text"},
		&cli.BoolFlag{Name: "json-events", Usage: "emit engine events as JSON lines on stdout"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address (e.g. :9090)"},
		&cli.StringFlag{Name: "trace", Usage: "write OpenTelemetry spans as JSON to this file"},
	}
	flags = append(flags, storeFlags()...)
	flags = append(flags, modelFlags()...)

	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume a suspended or interrupted run",
		ArgsUsage: "<run_id>",
		Flags:     flags,
		Action:    resumeAction,
	}
}

func resumeAction(ctx context.Context, cmd *cli.Command) error {
	runID := cmd.Args().First()
	if runID == "" {
		return fmt.Errorf("usage: surveyflow resume <run_id>")
	}

	approve := cmd.Bool("approve")
	reject := cmd.String("reject")
	if approve && reject != "" {
		return fmt.Errorf("--approve and --reject are mutually exclusive")
	}
	var decision *pipeline.ReviewDecision
	switch {
	case approve:
		d := pipeline.Approve()
		decision = &d
	case reject != "":
		d := pipeline.Reject(reject)
		decision = &d
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	return execute(ctx, cmd, cfg, func(eng *pipeline.Engine[analysis.State], logger *slog.Logger) (pipeline.Outcome[analysis.State], error) {
		logger.Info("resuming run", "run_id", runID, "decision", decisionLabel(decision))
		return eng.Resume(ctx, runID, decision)
	})
}

func decisionLabel(decision *pipeline.ReviewDecision) string {
	if decision == nil {
		return "none"
	}
	return string(decision.Outcome)
}

// execute assembles the store, model, emitter and engine from the
// command flags, then invokes drive and reports the outcome. Run and
// resume share everything but the engine call.
func execute(ctx context.Context, cmd *cli.Command, cfg config.Config, drive func(*pipeline.Engine[analysis.State], *slog.Logger) (pipeline.Outcome[analysis.State], error)) error {
	logger := setupLogger(cmd.Bool("json-logs"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	chat, closeModel, err := newChatModel(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeModel()

	usage := model.NewUsageTracker()
	p := &analysis.Pipeline{
		Config: cfg,
		Model:  chat,
		Usage:  usage,
	}

	opts := pipeline.Options{MaxSteps: 200}
	if cmd.Bool("no-review") {
		opts.DisableReviews = true
	} else {
		opts.Interrupts = pipeline.NewInterrupts()
		go reviewGate(ctx, opts.Interrupts)
	}

	if addr := cmd.String("metrics-addr"); addr != "" {
		registry := prometheus.NewRegistry()
		opts.Metrics = pipeline.NewPrometheusMetrics(registry)
		p.Metrics = opts.Metrics
		go serveMetrics(addr, registry, logger)
	}

	emitter, closeEmitter, err := newEmitter(cmd)
	if err != nil {
		return err
	}
	defer closeEmitter()

	reg, err := p.Build()
	if err != nil {
		return err
	}
	eng := pipeline.New(reg, st, emitter, opts)

	outcome, err := drive(eng, logger)
	printUsage(usage)
	if err != nil {
		return err
	}
	printOutcome(outcome)
	return nil
}

// newRunID generates a type-prefixed run identifier (run_01h4...).
func newRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

func setupLogger(jsonLogs bool) *slog.Logger {
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

func openStore(cmd *cli.Command) (store.Store[analysis.State], func(), error) {
	noop := func() {}
	switch backend := cmd.String("store"); backend {
	case "sqlite":
		s, err := store.NewSQLiteStore[analysis.State](cmd.String("db"))
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "mysql":
		dsn := cmd.String("mysql-dsn")
		if dsn == "" {
			dsn = os.Getenv("SURVEYFLOW_MYSQL_DSN")
		}
		if dsn == "" {
			return nil, noop, fmt.Errorf("mysql store needs a DSN: pass --mysql-dsn or set SURVEYFLOW_MYSQL_DSN")
		}
		s, err := store.NewMySQLStore[analysis.State](dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("open mysql store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "memory":
		return store.NewMemStore[analysis.State](), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store %q (use sqlite, mysql or memory)", backend)
	}
}

// mockResponse parses as an empty artifact for all three generation
// steps, letting the pipeline plumbing run without an API key.
const mockResponse = `{"recoding_rules": [], "indicators": [], "tables": []}`

func newChatModel(ctx context.Context, cmd *cli.Command) (model.ChatModel, func(), error) {
	noop := func() {}
	provider := cmd.String("model")
	if provider == "mock" {
		m := &model.MockChatModel{
			Responses: []model.ChatOut{{Text: mockResponse, Model: "mock"}},
		}
		return m, noop, nil
	}
	m, err := providers.New(ctx, provider, "", cmd.String("model-name"))
	if err != nil {
		return nil, noop, err
	}
	closer := noop
	if c, ok := m.(io.Closer); ok {
		closer = func() { _ = c.Close() }
	}
	return m, closer, nil
}

// newEmitter builds the engine emitter from --json-events and --trace.
// The returned cleanup flushes buffered spans and must run after the
// engine stops.
func newEmitter(cmd *cli.Command) (emit.Emitter, func(), error) {
	var emitters []emit.Emitter
	cleanup := func() {}

	if cmd.Bool("json-events") {
		emitters = append(emitters, emit.NewLogEmitter(os.Stdout, true))
	}

	if path := cmd.String("trace"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open trace file: %w", err)
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
		if err != nil {
			_ = f.Close()
			return nil, cleanup, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)

		otelEmitter := emit.NewOTelEmitter(otel.Tracer("surveyflow"))
		emitters = append(emitters, otelEmitter)
		cleanup = func() {
			ctx := context.Background()
			_ = otelEmitter.Flush(ctx)
			_ = tp.Shutdown(ctx)
			_ = f.Close()
		}
	}

	switch len(emitters) {
	case 0:
		return emit.NewNullEmitter(), cleanup, nil
	case 1:
		return emitters[0], cleanup, nil
	default:
		return multiEmitter(emitters), cleanup, nil
	}
}

// multiEmitter fans each event out to several emitters.
type multiEmitter []emit.Emitter

func (m multiEmitter) Emit(event emit.Event) {
	for _, e := range m {
		e.Emit(event)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

// reviewGate pulls pending reviews off the engine and prompts the
// terminal for each one until the context is cancelled.
func reviewGate(ctx context.Context, interrupts *pipeline.Interrupts) {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		review, err := interrupts.Next(ctx)
		if err != nil {
			return
		}
		decision := promptDecision(in, review)
		if err := interrupts.Resolve(review.Token, decision); err != nil {
			return
		}
	}
}

func promptDecision(in *bufio.Scanner, review store.PendingReview) pipeline.ReviewDecision {
	fmt.Println()
	color.Cyan("=== %s ===", review.Title)
	fmt.Println(review.Body)
	fmt.Println()
	for {
		color.Yellow("Decision [approve | reject <feedback>]:")
		if !in.Scan() {
			color.Yellow("Input closed; approving %s", review.Artifact)
			return pipeline.Approve()
		}
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "approve" || line == "a":
			return pipeline.Approve()
		case strings.HasPrefix(line, "reject"):
			feedback := strings.TrimSpace(strings.TrimPrefix(line, "reject"))
			if feedback == "" {
				color.Red("Rejection needs feedback for the next attempt, e.g.: reject collapse the top two bands")
				continue
			}
			return pipeline.Reject(feedback)
		default:
			color.Red("Enter \"approve\" or \"reject <feedback>\".")
		}
	}
}

func printUsage(usage *model.UsageTracker) {
	if len(usage.Calls()) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, usage.String())
}

func printOutcome(outcome pipeline.Outcome[analysis.State]) {
	fmt.Println()
	switch outcome.Status {
	case store.StatusCompleted:
		color.Green("Run %s completed (%d checkpoints)", outcome.RunID, outcome.Seq)
		printOutputs(outcome.State)
	case store.StatusSuspended:
		color.Yellow("Run %s suspended at %s", outcome.RunID, outcome.StepID)
		if outcome.Pending != nil {
			fmt.Printf("Awaiting review: %s\n", outcome.Pending.Title)
			fmt.Printf("Decide with:    surveyflow resume %s --approve\n", outcome.RunID)
			fmt.Printf("           or:  surveyflow resume %s --reject \"<feedback>\"\n", outcome.RunID)
		}
		if outcome.Halt != nil {
			fmt.Printf("Cause: %s\n", outcome.Halt.Message)
			if outcome.Halt.Retryable {
				fmt.Printf("Retry with: surveyflow resume %s\n", outcome.RunID)
			}
		}
	default:
		color.Red("Run %s stopped with status %s", outcome.RunID, outcome.Status)
		if outcome.Halt != nil {
			fmt.Printf("Cause: %s\n", outcome.Halt.Message)
		}
	}
	printWarnings(outcome.State)
}

func printOutputs(s analysis.State) {
	if s.Outputs.ResultsPath != "" {
		fmt.Printf("Results:   %s\n", s.Outputs.ResultsPath)
	}
	if s.Outputs.DeckPath != "" {
		fmt.Printf("Deck:      %s\n", s.Outputs.DeckPath)
	}
	if s.Outputs.DashboardPath != "" {
		fmt.Printf("Dashboard: %s\n", s.Outputs.DashboardPath)
	}
	if s.Significant != nil {
		fmt.Printf("Significant tables: %d of %d\n", len(s.Significant.Tables), tableCount(s))
	}
}

func tableCount(s analysis.State) int {
	if s.Results == nil {
		return 0
	}
	return len(s.Results.Tables)
}

func printWarnings(s analysis.State) {
	if len(s.Warnings) == 0 {
		return
	}
	fmt.Println()
	color.Yellow("Warnings:")
	for _, w := range s.Warnings {
		if w.Artifact != "" {
			fmt.Printf("  [%s] %s\n", w.Artifact, w.Message)
		} else {
			fmt.Printf("  %s\n", w.Message)
		}
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the latest checkpoint of a run",
		ArgsUsage: "<run_id>",
		Flags:     storeFlags(),
		Action:    statusAction,
	}
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	runID := cmd.Args().First()
	if runID == "" {
		return fmt.Errorf("usage: surveyflow status <run_id>")
	}

	st, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := st.Latest(ctx, runID)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	fmt.Printf("Run:      %s\n", rec.RunID)
	fmt.Printf("Status:   %s\n", statusLabel(rec.Status))
	fmt.Printf("Step:     %s\n", rec.StepID)
	fmt.Printf("Seq:      %d\n", rec.Seq)
	fmt.Printf("Saved:    %s\n", rec.SavedAt.Format(time.RFC3339))
	if rec.Pending != nil {
		fmt.Printf("Pending:  %s (since %s)\n", rec.Pending.Title, rec.Pending.CreatedAt.Format(time.RFC3339))
	}
	if rec.Halt != nil {
		fmt.Printf("Halt:     %s (%s, retryable=%t)\n", rec.Halt.Message, rec.Halt.Reason, rec.Halt.Retryable)
	}
	printWarnings(rec.State)
	return nil
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:   "runs",
		Usage:  "List known runs with their latest status",
		Flags:  storeFlags(),
		Action: runsAction,
	}
}

func runsAction(ctx context.Context, cmd *cli.Command) error {
	st, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := st.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%-40s %-10s %-24s seq=%-4d %s\n",
			r.RunID, statusLabel(r.Status), r.StepID, r.Seq, r.SavedAt.Format(time.RFC3339))
	}
	return nil
}

func statusLabel(status store.RunStatus) string {
	switch status {
	case store.StatusCompleted:
		return color.GreenString(string(status))
	case store.StatusSuspended:
		return color.YellowString(string(status))
	case store.StatusFailed:
		return color.RedString(string(status))
	default:
		return string(status)
	}
}
