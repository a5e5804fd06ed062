package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_ObserveTask(t *testing.T) {
	r := New()

	r.ObserveTask("js", 20*time.Millisecond, nil)
	r.ObserveTask("js", 30*time.Millisecond, errors.New("syntax error"))
	r.ObserveTask("scss", time.Millisecond, nil)

	if got := testutil.ToFloat64(r.taskRuns.WithLabelValues("js", "success")); got != 1 {
		t.Errorf("js success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.taskRuns.WithLabelValues("js", "error")); got != 1 {
		t.Errorf("js error runs = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.taskDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestRecorder_AddFiles(t *testing.T) {
	r := New()

	r.AddFiles("scss", "written", 3)
	r.AddFiles("scss", "skipped", 1)
	r.AddFiles("html", "written", 0)

	if got := testutil.ToFloat64(r.files.WithLabelValues("scss", "written")); got != 3 {
		t.Errorf("written = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(r.files); got != 2 {
		t.Errorf("file series = %d, want 2 (zero adds are dropped)", got)
	}
}

func TestRecorder_BuildCompleted(t *testing.T) {
	r := New()

	r.BuildCompleted(2*time.Second, nil)
	if got := testutil.ToFloat64(r.buildSuccess); got != 1 {
		t.Errorf("build_success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.buildDuration); got != 2 {
		t.Errorf("build_duration_seconds = %v, want 2", got)
	}

	r.BuildCompleted(time.Second, errors.New("failed"))
	if got := testutil.ToFloat64(r.buildSuccess); got != 0 {
		t.Errorf("build_success = %v, want 0", got)
	}
	if testutil.ToFloat64(r.buildLast) <= 0 {
		t.Error("build_last_timestamp_seconds should be set")
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.ObserveTask("js", time.Second, nil)
	r.AddFiles("js", "written", 1)
	r.BuildCompleted(time.Second, nil)
	if r.Gatherer() == nil {
		t.Error("Gatherer should never be nil")
	}
}

func TestRecorder_Options(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(WithNamespace("fw"), WithRegistry(reg), WithBuckets([]float64{1}))
	r.ObserveTask("clean", time.Millisecond, nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "fw_task_duration_seconds" {
			found = true
			if b := mf.GetMetric()[0].GetHistogram().GetBucket(); len(b) == 0 || b[0].GetUpperBound() != 1 {
				t.Errorf("buckets = %v, want first bound 1", b)
			}
		}
	}
	if !found {
		t.Error("fw_task_duration_seconds not registered on the given registry")
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveTask("build", time.Second, nil)
	r.AddFiles("images", "written", 2)

	path := filepath.Join(t.TempDir(), "wwwbuild.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`wwwbuild_task_runs_total{status="success",task="build"} 1`,
		`wwwbuild_files_total{result="written",task="images"} 2`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}
