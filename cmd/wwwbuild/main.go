package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/radiowazoo/wwwbuild/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Output streams, swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI with args and returns the exit code.
func run(args []string) int {
	a := &app{}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	setColor(isTerminal(stdout), isTerminal(stderr))

	err := rootCmd.Execute()
	if merr := a.writeMetrics(); merr != nil {
		if err == nil {
			err = merr
		} else {
			warn("%v", merr)
		}
	}
	if err != nil {
		errors.Fprint(stderr, errors.FromError(err, "E162"))
		return 1
	}
	return 0
}

// colorOutput controls the status marks printed by the helpers below.
var colorOutput = true

// setColor configures ANSI styling for stdout messages and stderr errors.
func setColor(out, err bool) {
	colorOutput = out
	errors.SetColor(err)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func mark(color, symbol string) string {
	if !colorOutput {
		return symbol
	}
	return color + symbol + "\033[0m"
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", mark("\033[32m", "✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Fprintf(stdout, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", mark("\033[33m", "⚠"), fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(stderr, "%s %s\n", mark("\033[31m", "✗"), fmt.Sprintf(format, args...))
}
