package build

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/radiowazoo/wwwbuild/internal/config"
	"github.com/radiowazoo/wwwbuild/internal/errors"
	"github.com/radiowazoo/wwwbuild/internal/metrics"
	"github.com/radiowazoo/wwwbuild/internal/sass"
)

const tracerName = "github.com/radiowazoo/wwwbuild/internal/build"

// Result contains the build output.
type Result struct {
	// Duration is how long the build took.
	Duration time.Duration

	// Output is the output root.
	Output string

	// Reports holds one report per finished task, gate first, then the
	// parallel tasks in graph order.
	Reports []*TaskReport
}

// Report returns the report of the given task, or nil.
func (r *Result) Report(id TaskID) *TaskReport {
	for _, rep := range r.Reports {
		if rep.Task == id {
			return rep
		}
	}
	return nil
}

// Skipped returns every skipped file across the reports.
func (r *Result) Skipped() []SkippedFile {
	if r == nil {
		return nil
	}
	var skipped []SkippedFile
	for _, rep := range r.Reports {
		skipped = append(skipped, rep.Skipped...)
	}
	return skipped
}

// Options configures the builder.
type Options struct {
	// Logger receives per-file and per-task records.
	Logger *slog.Logger

	// Metrics records task durations and file counts. Optional.
	Metrics *metrics.Recorder

	// Tracer starts one span per build and per task. Default: the global
	// OpenTelemetry provider.
	Tracer trace.Tracer

	// Compiler compiles Sass. Default: Dart Sass from cfg.SCSS.SassBinary,
	// owned and closed by the builder.
	Compiler sass.Compiler

	// OnProgress is called with progress updates.
	OnProgress func(step string)
}

// Builder runs the task graph.
type Builder struct {
	config       *config.Config
	options      Options
	graph        Graph
	tasks        map[TaskID]Task
	ownsCompiler bool
}

// New creates a new builder. Every task is constructed here from cfg, so
// no task reads configuration on its own.
func New(cfg *config.Config, options Options) *Builder {
	options.Logger = orDiscard(options.Logger)
	if options.Tracer == nil {
		options.Tracer = otel.Tracer(tracerName)
	}

	b := &Builder{
		config:  cfg,
		options: options,
		graph:   GraphFor(cfg),
	}
	if b.options.Compiler == nil {
		b.options.Compiler = sass.NewDartSass(sass.Options{
			Binary: cfg.SCSS.SassBinary,
			Logger: options.Logger,
		})
		b.ownsCompiler = true
	}
	b.tasks = b.newTasks()

	return b
}

func (b *Builder) newTasks() map[TaskID]Task {
	cfg, log := b.config, b.options.Logger
	return map[TaskID]Task{
		TaskClean: Clean(CleanParams{
			Output: cfg.OutputPath(),
			Source: cfg.SourcePath(),
			Logger: log,
		}),
		TaskStylesheet: Stylesheet(StylesheetParams{
			SrcDir:       cfg.SourcePath(),
			DestDir:      cfg.DestPath(cfg.SCSS.Dest),
			Patterns:     cfg.SCSS.Src,
			IncludePaths: cfg.IncludePaths(),
			Compiler:     b.options.Compiler,
			Logger:       log,
		}),
		TaskScript: Script(ScriptParams{
			Entry:     cfg.EntryPath(),
			Outfile:   cfg.OutfilePath(),
			Format:    scriptFormat(cfg.JS.Format),
			Target:    scriptTarget(cfg.JS.Target),
			SourceMap: cfg.JS.SourceMap,
			Logger:    log,
		}),
		TaskMarkup: Markup(MarkupParams{
			SrcDir:   cfg.SourcePath(),
			DestDir:  cfg.DestPath(cfg.HTML.Dest),
			Patterns: cfg.HTML.Src,
			Logger:   log,
		}),
		TaskAssets: Assets(AssetParams{
			SrcDir:     cfg.SourcePath(),
			DestDir:    cfg.DestPath(cfg.Images.Dest),
			Extensions: cfg.Images.Extensions,
			Logger:     log,
		}),
	}
}

// Graph returns the graph Build runs.
func (b *Builder) Graph() Graph {
	return b.graph
}

// Build runs the gate, then every parallel task, and returns once all of
// them have finished. The returned Result is non-nil even on failure and
// holds the reports of the tasks that succeeded.
func (b *Builder) Build(ctx context.Context) (result *Result, err error) {
	start := time.Now()
	result = &Result{Output: b.config.OutputPath()}

	ctx, span := b.options.Tracer.Start(ctx, "build")
	defer func() {
		result.Duration = time.Since(start)
		b.options.Metrics.BuildCompleted(result.Duration, err)
		endSpan(span, err)
	}()

	b.progress("Cleaning output directory...")
	rep, err := b.runTask(ctx, b.graph.Gate)
	if err != nil {
		return result, err
	}
	result.Reports = append(result.Reports, rep)

	b.progress("Running " + joinTasks(b.graph.Parallel) + "...")
	reports := make([]*TaskReport, len(b.graph.Parallel))
	var g errgroup.Group
	for i, id := range b.graph.Parallel {
		g.Go(func() error {
			rep, err := b.runTask(ctx, id)
			reports[i] = rep
			return err
		})
	}
	err = g.Wait()

	for _, rep := range reports {
		if rep != nil {
			result.Reports = append(result.Reports, rep)
		}
	}
	return result, err
}

// Run runs a single task. TaskBuild runs the whole graph.
func (b *Builder) Run(ctx context.Context, id TaskID) (*Result, error) {
	if id == TaskBuild {
		return b.Build(ctx)
	}

	start := time.Now()
	result := &Result{Output: b.config.OutputPath()}
	rep, err := b.runTask(ctx, id)
	if rep != nil {
		result.Reports = append(result.Reports, rep)
	}
	result.Duration = time.Since(start)
	return result, err
}

// Clean removes and recreates the build output directory.
func (b *Builder) Clean(ctx context.Context) error {
	_, err := b.Run(ctx, TaskClean)
	return err
}

// Close releases the Sass compiler if the builder started it.
func (b *Builder) Close() error {
	if b.ownsCompiler {
		return b.options.Compiler.Close()
	}
	return nil
}

// runTask runs one task with logging, metrics and a span around it.
// The report is returned only when the task succeeded.
func (b *Builder) runTask(ctx context.Context, id TaskID) (*TaskReport, error) {
	task, ok := b.tasks[id]
	if !ok {
		return nil, errors.New("E161").WithDetail("No task registered for " + id.String())
	}

	ctx, span := b.options.Tracer.Start(ctx, "task."+id.String(),
		trace.WithAttributes(attribute.String("wwwbuild.task", id.String())))

	log := b.options.Logger.With("task", id.String())
	log.Debug("task started")

	start := time.Now()
	rep, err := task(ctx)
	elapsed := time.Since(start)

	b.options.Metrics.ObserveTask(id.String(), elapsed, err)
	if err != nil {
		log.Error("task failed", "error", err, "duration", elapsed)
		endSpan(span, err)
		return nil, err
	}

	rep.Task = id
	rep.Duration = elapsed
	b.options.Metrics.AddFiles(id.String(), "written", len(rep.Written))
	b.options.Metrics.AddFiles(id.String(), "skipped", len(rep.Skipped))
	span.SetAttributes(
		attribute.Int("wwwbuild.files.written", len(rep.Written)),
		attribute.Int("wwwbuild.files.skipped", len(rep.Skipped)),
	)
	endSpan(span, nil)

	log.Info("task finished", "written", len(rep.Written), "skipped", len(rep.Skipped), "duration", elapsed)
	return rep, nil
}

// progress reports build progress.
func (b *Builder) progress(step string) {
	if b.options.OnProgress != nil {
		b.options.OnProgress(step)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func joinTasks(ids []TaskID) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += id.String()
	}
	return s
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
