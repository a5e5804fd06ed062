package pipeline

import (
	"bytes"
	"path"
	"strings"
)

// Transform adapts a contents-only function into a Stage.
func Transform(fn func(src []byte) ([]byte, error)) Stage {
	return func(f *File) error {
		out, err := fn(f.Data)
		if err != nil {
			return err
		}
		f.Data = out
		return nil
	}
}

// Replace substitutes every occurrence of old with new. The match is
// purely textual.
func Replace(old, new string) Stage {
	o, n := []byte(old), []byte(new)
	return func(f *File) error {
		f.Data = bytes.ReplaceAll(f.Data, o, n)
		return nil
	}
}

// Rename changes the output name to base + suffix + ext, keeping the
// directory. An empty ext keeps the current extension.
//
//	Rename(".min", ".css")  // theme/main.scss -> theme/main.min.css
func Rename(suffix, ext string) Stage {
	return func(f *File) error {
		f.Dest = Renamed(f.Dest, suffix, ext)
		return nil
	}
}

// Renamed returns p with its base name changed the way Rename does.
func Renamed(p, suffix, ext string) string {
	dir, base := path.Split(p)
	cur := path.Ext(base)
	if ext == "" {
		ext = cur
	}
	return dir + strings.TrimSuffix(base, cur) + suffix + ext
}
