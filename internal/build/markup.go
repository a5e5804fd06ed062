package build

import (
	"context"
	"log/slog"

	"github.com/radiowazoo/wwwbuild/internal/errors"
	"github.com/radiowazoo/wwwbuild/internal/pipeline"
)

// MarkupParams configures the markup task.
type MarkupParams struct {
	SrcDir   string
	DestDir  string
	Patterns []string
	Logger   *slog.Logger
}

// Markup returns the markup task. It copies HTML sources and rewrites
// every `.css"` to `.min.css"` and every `.js"` to `.min.js"`. The match
// is textual and requires the closing quote right after the extension, so
// `app.js.map"` is left alone.
func Markup(p MarkupParams) Task {
	p.Logger = orDiscard(p.Logger)
	return func(ctx context.Context) (*TaskReport, error) {
		files, err := pipeline.Match(p.SrcDir, p.Patterns)
		if err != nil {
			return nil, errors.New("E131").Wrap(err)
		}

		pl := &pipeline.Pipeline{
			Name:    TaskMarkup.String(),
			SrcDir:  p.SrcDir,
			DestDir: p.DestDir,
			Stages:  MarkupStages(),
			Logger:  p.Logger,
		}
		res, err := pl.Run(files)
		report := reportFrom(res, p.SrcDir, p.DestDir)
		if err != nil {
			return report, errors.New("E131").Wrap(err)
		}
		return report, nil
	}
}

// MarkupStages returns the reference rewrites applied to HTML.
func MarkupStages() []pipeline.Stage {
	return []pipeline.Stage{
		pipeline.Replace(`.css"`, `.min.css"`),
		pipeline.Replace(`.js"`, `.min.js"`),
	}
}
