package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/radiowazoo/wwwbuild/internal/errors"
)

// ScriptParams configures the script task.
type ScriptParams struct {
	// Entry is the entry point the bundler traces imports from.
	Entry string

	// Outfile is the single bundle written.
	Outfile string

	// Format is the output module format.
	Format api.Format

	// Target is the language baseline the output is lowered to.
	Target api.Target

	// SourceMap writes Outfile + ".map" and links it from the bundle.
	SourceMap bool

	Logger *slog.Logger
}

// Script returns the script task: a minified bundle of Entry and
// everything it imports, written to Outfile. Any bundling error fails the
// task.
func Script(p ScriptParams) Task {
	p.Logger = orDiscard(p.Logger)
	return func(ctx context.Context) (*TaskReport, error) {
		entry, err := filepath.Abs(p.Entry)
		if err != nil {
			return nil, errors.New("E121").Wrap(err)
		}
		outfile, err := filepath.Abs(p.Outfile)
		if err != nil {
			return nil, errors.New("E122").Wrap(err)
		}

		sourcemap := api.SourceMapNone
		if p.SourceMap {
			sourcemap = api.SourceMapLinked
		}

		workDir := filepath.Dir(entry)
		result := api.Build(api.BuildOptions{
			EntryPoints:       []string{entry},
			AbsWorkingDir:     workDir,
			Outfile:           outfile,
			Bundle:            true,
			Write:             false,
			Format:            p.Format,
			Target:            p.Target,
			Platform:          api.PlatformBrowser,
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
			Sourcemap:         sourcemap,
			LogLevel:          api.LogLevelSilent,
		})

		if len(result.Errors) > 0 {
			return nil, bundleError(workDir, result.Errors)
		}
		if len(result.OutputFiles) == 0 {
			return nil, errors.New("E121").WithDetail("esbuild returned no output files")
		}

		report := &TaskReport{}
		for _, out := range result.OutputFiles {
			if err := os.MkdirAll(filepath.Dir(out.Path), 0755); err != nil {
				return nil, errors.New("E122").Wrap(err)
			}
			if err := os.WriteFile(out.Path, out.Contents, 0644); err != nil {
				return nil, errors.New("E122").Wrap(err)
			}
			p.Logger.Info("processed", "task", TaskScript.String(), "src", entry, "dst", out.Path)
			report.Written = append(report.Written, out.Path)
		}
		for _, w := range result.Warnings {
			p.Logger.Warn("bundle warning", "task", TaskScript.String(), "message", w.Text)
		}
		return report, nil
	}
}

// bundleError reports the first esbuild error with its source location.
func bundleError(workDir string, msgs []api.Message) error {
	first := msgs[0]
	detail := first.Text
	if len(msgs) > 1 {
		detail += fmt.Sprintf(" (and %d more)", len(msgs)-1)
	}
	err := errors.New("E121").WithDetail(detail)
	if loc := first.Location; loc != nil {
		file := loc.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(workDir, file)
		}
		err.WithLocation(file, loc.Line, loc.Column+1)
	}
	return err
}

// scriptFormat maps a config format name to esbuild's.
func scriptFormat(name string) api.Format {
	switch name {
	case "esm":
		return api.FormatESModule
	case "cjs":
		return api.FormatCommonJS
	default:
		return api.FormatIIFE
	}
}

var scriptTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// scriptTarget maps a config target name to esbuild's, defaulting to ES2015.
func scriptTarget(name string) api.Target {
	if t, ok := scriptTargets[name]; ok {
		return t
	}
	return api.ES2015
}
