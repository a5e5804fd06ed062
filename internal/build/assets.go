package build

import (
	"context"
	"log/slog"

	"github.com/radiowazoo/wwwbuild/internal/errors"
	"github.com/radiowazoo/wwwbuild/internal/pipeline"
)

// AssetParams configures the asset task.
type AssetParams struct {
	SrcDir  string
	DestDir string

	// Extensions are lower-case extensions with the leading dot.
	Extensions []string

	Logger *slog.Logger
}

// Assets returns the asset task: every file under SrcDir with a matching
// extension is copied byte for byte to the same relative path.
func Assets(p AssetParams) Task {
	p.Logger = orDiscard(p.Logger)
	return func(ctx context.Context) (*TaskReport, error) {
		files, err := pipeline.MatchExt(p.SrcDir, p.Extensions)
		if err != nil {
			return nil, errors.New("E141").Wrap(err)
		}

		pl := &pipeline.Pipeline{
			Name:    TaskAssets.String(),
			SrcDir:  p.SrcDir,
			DestDir: p.DestDir,
			Logger:  p.Logger,
		}
		res, err := pl.Run(files)
		report := reportFrom(res, p.SrcDir, p.DestDir)
		if err != nil {
			return report, errors.New("E141").Wrap(err)
		}
		return report, nil
	}
}
