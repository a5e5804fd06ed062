package pipeline

import (
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match returns the slash-separated paths of regular files under root that
// match any of patterns, sorted and without duplicates. A missing root
// matches nothing.
func Match(root string, patterns []string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(path.Clean(pattern), "./")
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	slices.Sort(files)
	return files, nil
}

// MatchExt returns every regular file under root whose lower-cased
// extension is one of exts.
func MatchExt(root string, exts []string) ([]string, error) {
	all, err := Match(root, []string{"**/*"})
	if err != nil {
		return nil, err
	}
	files := all[:0]
	for _, f := range all {
		if slices.Contains(exts, strings.ToLower(path.Ext(f))) {
			files = append(files, f)
		}
	}
	return files, nil
}

// Filter drops the files for which keep returns false.
func Filter(files []string, keep func(rel string) bool) []string {
	return slices.DeleteFunc(files, func(f string) bool { return !keep(f) })
}

// IsPartial reports whether rel names a Sass partial (a file whose base
// name starts with an underscore).
func IsPartial(rel string) bool {
	return strings.HasPrefix(path.Base(rel), "_")
}
