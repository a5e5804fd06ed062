package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/radiowazoo/wwwbuild/internal/build"
	"github.com/radiowazoo/wwwbuild/internal/errors"
)

func buildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Clean, then run every build task",
		Long: `Empty the output directory, then run the configured tasks in parallel.

The build fails if any task fails; the other tasks still run to the end.

Examples:
  wwwbuild build
  wwwbuild build --output=dist/www`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTask(build.TaskBuild)
		},
	}
}

// taskCmd returns the command running a single task.
func taskCmd(a *app, id build.TaskID, short string, aliases ...string) *cobra.Command {
	return &cobra.Command{
		Use:     id.String(),
		Aliases: aliases,
		Short:   short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTask(id)
		},
	}
}

func (a *app) newBuilder() *build.Builder {
	return build.New(a.cfg, build.Options{
		Logger:  a.logger,
		Metrics: a.metrics,
		OnProgress: func(step string) {
			info(step)
		},
	})
}

// runTask runs id to completion. Builds are not interrupted by signals.
func (a *app) runTask(id build.TaskID) error {
	builder := a.newBuilder()
	defer builder.Close()

	result, err := builder.Run(context.Background(), id)
	printReports(result)
	if err != nil {
		errorMsg("%s failed", id)
		return err
	}

	success("%s complete in %s", capitalize(id.String()), result.Duration.Round(time.Millisecond))
	return nil
}

// printReports prints one line per finished task and warns about skipped
// files.
func printReports(result *build.Result) {
	if result == nil {
		return
	}
	for _, rep := range result.Reports {
		if rep.Task == build.TaskClean {
			info("%-7s %s", rep.Task, result.Output)
			continue
		}
		info("%-7s %d written, %d skipped (%s)", rep.Task, len(rep.Written), len(rep.Skipped), rep.Duration.Round(time.Millisecond))
		for _, sk := range rep.Skipped {
			warn("skipped %s: %s", sk.Path, errors.Summary(sk.Err))
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
