package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryGate    Category = "gate"
	CategoryCompile Category = "compile"
	CategoryIO      Category = "io"
	CategoryConfig  Category = "config"
	CategoryCLI     Category = "cli"
	CategoryServe   Category = "serve"
	CategoryPublish Category = "publish"
)

// Location represents a source code location.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// BuildError is a structured error with source location and suggestions.
type BuildError struct {
	// Code is a unique error identifier (e.g., "E121").
	Code string

	// Category is the error type (gate, compile, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the source location where the error occurred.
	Location *Location

	// Context contains surrounding source lines.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Detail != "" && e.Wrapped == nil {
		msg += ": " + firstLine(e.Detail)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *BuildError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a BuildError with the same code.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithLocation adds source location to the error.
func (e *BuildError) WithLocation(file string, line, column int) *BuildError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, contextRadius)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *BuildError) WithSuggestion(s string) *BuildError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *BuildError) WithDetail(d string) *BuildError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *BuildError) Wrap(err error) *BuildError {
	e.Wrapped = err
	return e
}

// contextRadius is how many lines before and after a location are kept.
const contextRadius = 2

// readContextLines reads the lines within radius of targetLine.
func readContextLines(filename string, targetLine, radius int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := firstContextLine(targetLine)
	endLine := targetLine + radius

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// New creates a BuildError from a registered error code.
func New(code string) *BuildError {
	template, ok := Lookup(code)
	if !ok {
		return &BuildError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &BuildError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Suggestion: template.Suggestion,
	}
}

// FromError returns the first BuildError in err's chain, or wraps err in
// a new BuildError with code when there is none.
func FromError(err error, code string) *BuildError {
	if err == nil {
		return nil
	}
	var be *BuildError
	if stderrors.As(err, &be) {
		return be
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first BuildError in err's chain, or "".
func Code(err error) string {
	for err != nil {
		if be, ok := err.(*BuildError); ok {
			return be.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
