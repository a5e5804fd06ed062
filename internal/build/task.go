package build

import (
	"context"
	"slices"
	"time"

	"github.com/radiowazoo/wwwbuild/internal/config"
	"github.com/radiowazoo/wwwbuild/internal/errors"
)

// TaskID identifies a task.
type TaskID int

const (
	TaskClean TaskID = iota
	TaskStylesheet
	TaskScript
	TaskMarkup
	TaskAssets
	TaskBuild
)

var taskNames = [...]string{
	TaskClean:      "clean",
	TaskStylesheet: "scss",
	TaskScript:     "js",
	TaskMarkup:     "html",
	TaskAssets:     "images",
	TaskBuild:      "build",
}

// String returns the CLI name of the task.
func (id TaskID) String() string {
	if id < 0 || int(id) >= len(taskNames) {
		return "unknown"
	}
	return taskNames[id]
}

// ParseTaskID resolves a task name or one of the aliases in
// config.TaskAliases. "default" names the whole build.
func ParseTaskID(name string) (TaskID, error) {
	name, _ = config.CanonicalTask(name)
	if name == "default" {
		return TaskBuild, nil
	}
	for id, n := range taskNames {
		if n == name {
			return TaskID(id), nil
		}
	}
	return 0, errors.New("E161").WithDetail("No task named " + `"` + name + `"`)
}

// Task is one unit of build work. It holds no state between runs.
type Task func(ctx context.Context) (*TaskReport, error)

// TaskReport describes a finished task.
type TaskReport struct {
	// Task is the task that produced the report.
	Task TaskID

	// Written lists the absolute paths of the files written.
	Written []string

	// Skipped lists the sources that produced no output because of a
	// non-fatal error.
	Skipped []SkippedFile

	// Duration is how long the task took.
	Duration time.Duration
}

// SkippedFile is a source a task could not process.
type SkippedFile struct {
	// Path is the absolute source path.
	Path string

	// Err is why the source was skipped.
	Err error
}

// Graph is the fixed shape of a composite build: one gate, then a group of
// tasks with no ordering between them.
type Graph struct {
	Gate     TaskID
	Parallel []TaskID
}

// DefaultGraph returns the full graph: clean, then scss, js, html and images.
func DefaultGraph() Graph {
	return Graph{
		Gate:     TaskClean,
		Parallel: []TaskID{TaskStylesheet, TaskScript, TaskMarkup, TaskAssets},
	}
}

// GraphFor returns the graph selected by cfg.Tasks.
func GraphFor(cfg *config.Config) Graph {
	g := Graph{Gate: TaskClean}
	for _, name := range cfg.Tasks {
		id, err := ParseTaskID(name)
		if err != nil || id == TaskClean || id == TaskBuild || slices.Contains(g.Parallel, id) {
			continue
		}
		g.Parallel = append(g.Parallel, id)
	}
	return g
}
