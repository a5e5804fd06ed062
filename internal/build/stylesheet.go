package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/radiowazoo/wwwbuild/internal/errors"
	"github.com/radiowazoo/wwwbuild/internal/pipeline"
	"github.com/radiowazoo/wwwbuild/internal/sass"
)

// StylesheetParams configures the stylesheet task.
type StylesheetParams struct {
	// SrcDir is the source root the patterns are relative to.
	SrcDir string

	// DestDir is the directory outputs are written under.
	DestDir string

	// Patterns select the sources. Sass partials are always skipped.
	Patterns []string

	// IncludePaths are extra Sass load paths.
	IncludePaths []string

	// Compiler compiles .scss and .sass sources. Plain .css sources do
	// not need it.
	Compiler sass.Compiler

	Logger *slog.Logger
}

// Stylesheet returns the stylesheet task. Each source is compiled,
// minified and written as <name>.min.css at its relative path. A source
// that fails to compile or minify is logged and skipped; I/O failures
// abort the task.
func Stylesheet(p StylesheetParams) Task {
	p.Logger = orDiscard(p.Logger)
	return func(ctx context.Context) (*TaskReport, error) {
		files, err := pipeline.Match(p.SrcDir, p.Patterns)
		if err != nil {
			return nil, errors.New("E111").Wrap(err)
		}
		files = pipeline.Filter(files, func(rel string) bool {
			return !pipeline.IsPartial(rel)
		})

		if needsCompiler(files) {
			if err := startCompiler(p.Compiler); err != nil {
				return nil, err
			}
		}

		pl := &pipeline.Pipeline{
			Name:    TaskStylesheet.String(),
			SrcDir:  p.SrcDir,
			DestDir: p.DestDir,
			Stages: []pipeline.Stage{
				compileStage(p.Compiler, p.IncludePaths),
				pipeline.Transform(minifyCSS),
				pipeline.Rename(".min", ".css"),
			},
			OnError: func(f *pipeline.File, err error) error {
				p.Logger.Error("stylesheet failed", "task", TaskStylesheet.String(), "src", f.Path, "error", err)
				return removeStale(p.DestDir, f.Rel)
			},
			Logger: p.Logger,
		}

		res, err := pl.Run(files)
		report := reportFrom(res, p.SrcDir, p.DestDir)
		if err != nil {
			return report, errors.New("E111").Wrap(err)
		}
		return report, nil
	}
}

// removeStale deletes the output a previous run wrote for rel, so a
// source that no longer compiles does not keep serving old CSS.
func removeStale(destDir, rel string) error {
	out := filepath.Join(destDir, filepath.FromSlash(pipeline.Renamed(rel, ".min", ".css")))
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func needsCompiler(files []string) bool {
	for _, f := range files {
		if sass.SyntaxFor(f) != sass.SyntaxCSS {
			return true
		}
	}
	return false
}

func startCompiler(c sass.Compiler) error {
	if c == nil {
		return errors.New("E112").WithDetail("No Sass compiler configured")
	}
	s, ok := c.(interface{ Start() error })
	if !ok {
		return nil
	}
	if err := s.Start(); err != nil {
		return errors.New("E112").Wrap(err)
	}
	return nil
}

// compileStage turns Sass into CSS. Plain CSS passes through untouched.
func compileStage(c sass.Compiler, includePaths []string) pipeline.Stage {
	return func(f *pipeline.File) error {
		syntax := sass.SyntaxFor(f.Rel)
		if syntax == sass.SyntaxCSS {
			return nil
		}
		css, err := c.Compile(sass.Request{
			Source:       string(f.Data),
			Path:         f.Path,
			Syntax:       syntax,
			IncludePaths: includePaths,
		})
		if err != nil {
			return errors.New("E113").Wrap(err)
		}
		f.Data = []byte(css)
		return nil
	}
}

// minifyCSS minifies a stylesheet with esbuild.
func minifyCSS(src []byte) ([]byte, error) {
	res := api.Transform(string(src), api.TransformOptions{
		Loader:           api.LoaderCSS,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LogLevel:         api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return nil, messagesError("minify", res.Errors)
	}
	return res.Code, nil
}

// messagesError flattens esbuild messages into a single error.
func messagesError(op string, msgs []api.Message) error {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			texts = append(texts, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column+1, m.Text))
		} else {
			texts = append(texts, m.Text)
		}
	}
	return fmt.Errorf("%s: %s", op, strings.Join(texts, "; "))
}

// reportFrom converts a pipeline report to absolute paths.
func reportFrom(res pipeline.Report, srcDir, destDir string) *TaskReport {
	report := &TaskReport{}
	for _, rel := range res.Written {
		report.Written = append(report.Written, filepath.Join(destDir, filepath.FromSlash(rel)))
	}
	for _, sk := range res.Skipped {
		report.Skipped = append(report.Skipped, SkippedFile{
			Path: filepath.Join(srcDir, filepath.FromSlash(sk.Rel)),
			Err:  sk.Err,
		})
	}
	return report
}
