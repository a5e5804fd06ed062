package build

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/radiowazoo/wwwbuild/internal/config"
	"github.com/radiowazoo/wwwbuild/internal/sass"
)

func mustWriteFile(t *testing.T, path string, content []byte, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll(%q): %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		t.Fatalf("WriteFile(%q): %v", path, err)
	}
}

func mustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%q): %v", path, err)
	}
	return b
}

// snapshot returns every regular file under root keyed by slash path.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		files[filepath.ToSlash(rel)] = string(mustReadFile(t, path))
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}

// fakeCompiler treats SCSS as plain CSS and fails on @error.
type fakeCompiler struct {
	mu    sync.Mutex
	calls []string
}

func (c *fakeCompiler) Compile(req sass.Request) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, filepath.Base(req.Path))
	c.mu.Unlock()
	if strings.Contains(req.Source, "@error") {
		return "", errors.New("Error: " + strings.TrimSpace(req.Source))
	}
	return req.Source, nil
}

func (c *fakeCompiler) Close() error { return nil }

var testImage = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0xff, 0x10, 0x00}

// writeProject lays out a small source tree and returns its config.
func writeProject(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "www")

	mustWriteFile(t, filepath.Join(src, "index.html"), []byte(`<!doctype html>
<html>
<head>
<link rel="stylesheet" href="assets/css/main.css">
<link rel="stylesheet" href="assets/css/reset.css">
</head>
<body>
<img src="assets/img/logo.svg">
<script src="assets/js/main.js"></script>
</body>
</html>
`), 0644)
	mustWriteFile(t, filepath.Join(src, "settings", "wifi.html"), []byte(`<link href="../assets/css/main.css"><script src="wifi.js"></script>`), 0644)

	mustWriteFile(t, filepath.Join(src, "assets", "css", "main.scss"), []byte("/* layout */\nbody {\n  color: red;\n  margin: 0;\n}\n"), 0644)
	mustWriteFile(t, filepath.Join(src, "assets", "css", "_vars.scss"), []byte("$accent: red;\n"), 0644)
	mustWriteFile(t, filepath.Join(src, "assets", "css", "broken.scss"), []byte("@error \"boom\";\n"), 0644)
	mustWriteFile(t, filepath.Join(src, "assets", "css", "reset.css"), []byte("html, body {\n  padding: 0;\n}\n"), 0644)

	mustWriteFile(t, filepath.Join(src, "assets", "js", "main.js"), []byte(`import { greet } from "./util.js";
const name = window.deviceName ?? "radio";
greet(name);
`), 0644)
	mustWriteFile(t, filepath.Join(src, "assets", "js", "util.js"), []byte(`export function greet(who) {
  console.log("hello " + who);
}
`), 0644)

	mustWriteFile(t, filepath.Join(src, "assets", "img", "logo.svg"), []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), 0644)
	mustWriteFile(t, filepath.Join(src, "assets", "img", "photo.PNG"), testImage, 0644)
	mustWriteFile(t, filepath.Join(src, "assets", "img", "notes.txt"), []byte("not an image"), 0644)

	return config.NewAt(dir)
}

// recordingTracer records span names.
type recordingTracer struct {
	embedded.Tracer

	mu    sync.Mutex
	names []string
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return noop.NewTracerProvider().Tracer("").Start(ctx, name, opts...)
}

func (r *recordingTracer) spans() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}
