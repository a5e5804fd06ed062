package pipeline

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// File is a single file moving through a pipeline.
type File struct {
	// Rel is the slash-separated path relative to the source directory.
	Rel string

	// Path is the absolute source path.
	Path string

	// Dest is the slash-separated output path relative to the destination
	// directory. It starts equal to Rel; stages may rename it.
	Dest string

	// Mode is the source file mode, reused for the output.
	Mode fs.FileMode

	// Data holds the current contents.
	Data []byte
}

// Stage transforms a file in place.
type Stage func(f *File) error

// FileError records which step failed for which file.
type FileError struct {
	Op   string // "read", "transform" or "write"
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Report summarises a pipeline run.
type Report struct {
	// Written lists the output paths, relative to the destination directory.
	Written []string

	// Skipped lists the files whose stages failed and were absorbed.
	Skipped []Skip
}

// Skip is a source that produced no output.
type Skip struct {
	// Rel is the source path relative to the source directory.
	Rel string

	// Err is the stage failure.
	Err error
}

// Pipeline applies an ordered list of stages to a set of files.
type Pipeline struct {
	// Name labels log records.
	Name string

	// SrcDir is the directory source paths are relative to.
	SrcDir string

	// DestDir is the directory outputs are written under.
	DestDir string

	// Stages run in order between read and write.
	Stages []Stage

	// OnError is called when a stage fails. Returning nil skips the file
	// and continues; returning an error aborts the run with it. A nil
	// OnError aborts on the first stage failure.
	OnError func(f *File, err error) error

	// Logger receives one record per written or skipped file.
	Logger *slog.Logger
}

// Run processes files in order. It stops at the first read or write
// failure, or at a stage failure OnError does not absorb.
func (p *Pipeline) Run(files []string) (Report, error) {
	var report Report
	for _, rel := range files {
		f, err := p.read(rel)
		if err != nil {
			return report, err
		}

		if err := p.apply(f); err != nil {
			if p.OnError == nil {
				return report, err
			}
			if err := p.OnError(f, err); err != nil {
				return report, err
			}
			p.logger().Warn("skipped", "task", p.Name, "src", f.Path)
			report.Skipped = append(report.Skipped, Skip{Rel: rel, Err: err})
			continue
		}

		dst, err := p.write(f)
		if err != nil {
			return report, err
		}
		p.logger().Info("processed", "task", p.Name, "src", f.Path, "dst", dst)
		report.Written = append(report.Written, f.Dest)
	}
	return report, nil
}

func (p *Pipeline) read(rel string) (*File, error) {
	src := filepath.Join(p.SrcDir, filepath.FromSlash(rel))
	info, err := os.Stat(src)
	if err != nil {
		return nil, &FileError{Op: "read", Path: src, Err: err}
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, &FileError{Op: "read", Path: src, Err: err}
	}
	return &File{
		Rel:  rel,
		Path: src,
		Dest: rel,
		Mode: info.Mode().Perm(),
		Data: data,
	}, nil
}

func (p *Pipeline) apply(f *File) error {
	for _, stage := range p.Stages {
		if err := stage(f); err != nil {
			return &FileError{Op: "transform", Path: f.Path, Err: err}
		}
	}
	return nil
}

func (p *Pipeline) write(f *File) (string, error) {
	dst := filepath.Join(p.DestDir, filepath.FromSlash(f.Dest))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", &FileError{Op: "write", Path: dst, Err: err}
	}
	mode := f.Mode
	if mode == 0 {
		mode = 0644
	}
	if err := os.WriteFile(dst, f.Data, mode); err != nil {
		return "", &FileError{Op: "write", Path: dst, Err: err}
	}
	return dst, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}
