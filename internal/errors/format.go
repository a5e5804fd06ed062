package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
)

var colorEnabled = true

// SetColor turns ANSI styling of Format output on or off. The CLI turns
// it off for --no-color and when stderr is not a terminal.
func SetColor(on bool) {
	colorEnabled = on
}

func paint(style, text string) string {
	if !colorEnabled || text == "" {
		return text
	}
	return style + text + ansiReset
}

// Format renders the error for a terminal. Compiler output carried in
// the cause (esbuild messages, Dart Sass stderr) keeps its line breaks.
//
//	error[E121]: Script bundling failed
//	  --> src/www/assets/js/main.js:2:9
//	   |
//	 1 | import { a } from "./util.js";
//	 2 | const x = ;
//	   |         ^
//	   |
//	   = Unexpected ";"
func (e *BuildError) Format() string {
	var b strings.Builder

	head := "error"
	if e.Code != "" {
		head += "[" + e.Code + "]"
	}
	b.WriteString(paint(ansiRed+ansiBold, head))
	b.WriteString(paint(ansiBold, ": "+e.Message))
	b.WriteString("\n")

	gutter := 1
	if e.Location != nil {
		last := firstContextLine(e.Location.Line) + len(e.Context) - 1
		gutter = max(len(fmt.Sprint(last)), len(fmt.Sprint(e.Location.Line)))
		pad := strings.Repeat(" ", gutter)

		fmt.Fprintf(&b, "%s%s %s\n", pad, paint(ansiBlue, "-->"), e.Location)
		if len(e.Context) > 0 {
			bar := paint(ansiBlue, pad+" |")
			b.WriteString(bar + "\n")
			for i, line := range e.Context {
				n := firstContextLine(e.Location.Line) + i
				fmt.Fprintf(&b, "%s %s\n", paint(ansiBlue, fmt.Sprintf("%*d |", gutter, n)), line)
				if n == e.Location.Line && e.Location.Column > 0 {
					fmt.Fprintf(&b, "%s %s%s\n", bar, strings.Repeat(" ", e.Location.Column-1), paint(ansiRed, "^"))
				}
			}
			b.WriteString(bar + "\n")
		}
	}

	note := func(label, text string) {
		lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
		prefix := strings.Repeat(" ", gutter) + " " + paint(ansiBlue, "=") + " "
		if label != "" {
			prefix += paint(ansiYellow, label+":") + " "
		}
		b.WriteString(prefix + lines[0] + "\n")
		indent := strings.Repeat(" ", gutter+3)
		for _, l := range lines[1:] {
			b.WriteString(indent + "  " + l + "\n")
		}
	}

	if e.Detail != "" {
		note("", strings.Join(wrapText(e.Detail, 76), "\n"))
	}
	if e.Wrapped != nil {
		note("cause", e.Wrapped.Error())
	}
	if e.Suggestion != "" {
		note("hint", e.Suggestion)
	}
	return b.String()
}

// FormatCompact returns the error on one line: location, code, message
// and the first line of the innermost cause. Used where only a single
// line fits, such as the browser error overlay.
func (e *BuildError) FormatCompact() string {
	var b strings.Builder
	if e.Location != nil {
		b.WriteString(e.Location.String())
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(" ")
	}
	b.WriteString(e.Message)

	switch {
	case e.Detail != "":
		b.WriteString(": " + firstLine(e.Detail))
	case e.Wrapped != nil:
		b.WriteString(": " + firstLine(rootCause(e.Wrapped).Error()))
	}
	return b.String()
}

// Summary returns a one-line description of err: FormatCompact for the
// first BuildError in its chain, err.Error() otherwise.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.FormatCompact()
	}
	return firstLine(err.Error())
}

// Fprint writes err to w: the full Format for a BuildError, one line
// otherwise.
func Fprint(w io.Writer, err error) {
	var be *BuildError
	if stderrors.As(err, &be) {
		fmt.Fprint(w, be.Format())
		return
	}
	fmt.Fprintf(w, "%s %s\n", paint(ansiRed+ansiBold, "error:"), err)
}

func rootCause(err error) error {
	for {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func firstContextLine(line int) int {
	return max(1, line-contextRadius)
}

// wrapText splits text into lines of at most width bytes, breaking at
// spaces. Existing line breaks are kept.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var cur strings.Builder
		for _, word := range strings.Fields(para) {
			if cur.Len() > 0 && cur.Len()+1+len(word) > width {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(word)
		}
		lines = append(lines, cur.String())
	}
	return lines
}
