package build

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/radiowazoo/wwwbuild/internal/errors"
)

// CleanParams configures the gate.
type CleanParams struct {
	// Output is the directory to remove and recreate.
	Output string

	// Source is the source root. The gate refuses to remove it or any
	// directory containing it.
	Source string

	Logger *slog.Logger
}

// Clean returns the gate task: it removes Output recursively, whether or
// not it exists, and recreates it empty.
func Clean(p CleanParams) Task {
	p.Logger = orDiscard(p.Logger)
	return func(ctx context.Context) (*TaskReport, error) {
		out := filepath.Clean(p.Output)
		if out == filepath.Dir(out) {
			return nil, errors.New("E102").
				WithDetail(strconv.Quote(out) + " is a filesystem root")
		}
		if p.Source != "" {
			src := filepath.Clean(p.Source)
			if src == out || within(src, out) {
				return nil, errors.New("E102").
					WithDetail(strconv.Quote(out) + " contains the source root " + strconv.Quote(src))
			}
		}

		_, statErr := os.Stat(out)
		if err := os.RemoveAll(out); err != nil {
			return nil, errors.New("E101").Wrap(err)
		}
		if err := os.MkdirAll(out, 0755); err != nil {
			return nil, errors.New("E101").Wrap(err)
		}

		if statErr == nil {
			p.Logger.Info("cleaned", "task", "clean", "dir", out)
		} else {
			p.Logger.Info("nothing to clean", "task", "clean", "dir", out)
		}
		return &TaskReport{}, nil
	}
}

// within reports whether path lies inside dir.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
