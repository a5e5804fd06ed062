// Package sass compiles Sass and SCSS sources to CSS through Dart Sass.
//
// DartSass talks to the `sass --embedded` protocol through godartsass. The
// compiler process is started on first use and shared by every later
// Compile call until Close.
package sass

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
)

// Syntax is the source language of a stylesheet.
type Syntax int

const (
	SyntaxSCSS Syntax = iota
	SyntaxIndented
	SyntaxCSS
)

// SyntaxFor picks the syntax from a file extension.
func SyntaxFor(path string) Syntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sass":
		return SyntaxIndented
	case ".css":
		return SyntaxCSS
	default:
		return SyntaxSCSS
	}
}

// Request is a single compilation.
type Request struct {
	// Source is the stylesheet text.
	Source string

	// Path is the absolute source path, used for messages and to resolve
	// relative @use and @import.
	Path string

	// Syntax is the source language.
	Syntax Syntax

	// IncludePaths are extra load paths.
	IncludePaths []string
}

// Compiler turns a stylesheet into CSS.
type Compiler interface {
	Compile(req Request) (string, error)
	Close() error
}

// Options configures DartSass.
type Options struct {
	// Binary is the Dart Sass executable name or path.
	Binary string

	// Logger receives @warn, @debug and deprecation messages.
	Logger *slog.Logger
}

// DartSass is a Compiler backed by an embedded Dart Sass process.
type DartSass struct {
	opts Options

	once       sync.Once
	transpiler *godartsass.Transpiler
	startErr   error
}

// NewDartSass creates a compiler. The process is not started until the
// first call to Start or Compile.
func NewDartSass(opts Options) *DartSass {
	if opts.Binary == "" {
		opts.Binary = "sass"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &DartSass{opts: opts}
}

// Start launches the Dart Sass process if it is not running yet.
func (d *DartSass) Start() error {
	d.once.Do(func() {
		d.transpiler, d.startErr = godartsass.Start(godartsass.Options{
			DartSassEmbeddedFilename: d.opts.Binary,
			LogEventHandler: func(e godartsass.LogEvent) {
				d.opts.Logger.Warn("sass", "message", e.Message)
			},
		})
	})
	return d.startErr
}

// Compile implements Compiler.
func (d *DartSass) Compile(req Request) (string, error) {
	if err := d.Start(); err != nil {
		return "", err
	}

	args := godartsass.Args{
		Source:       req.Source,
		OutputStyle:  godartsass.OutputStyleExpanded,
		SourceSyntax: sourceSyntax(req.Syntax),
		IncludePaths: req.IncludePaths,
	}
	if req.Path != "" {
		args.URL = "file://" + filepath.ToSlash(req.Path)
		args.IncludePaths = append([]string{filepath.Dir(req.Path)}, req.IncludePaths...)
	}

	res, err := d.transpiler.Execute(args)
	if err != nil {
		return "", err
	}
	return res.CSS, nil
}

// Close stops the Dart Sass process.
func (d *DartSass) Close() error {
	if d.transpiler == nil {
		return nil
	}
	return d.transpiler.Close()
}

func sourceSyntax(s Syntax) godartsass.SourceSyntax {
	switch s {
	case SyntaxIndented:
		return godartsass.SourceSyntaxSASS
	case SyntaxCSS:
		return godartsass.SourceSyntaxCSS
	default:
		return godartsass.SourceSyntaxSCSS
	}
}
