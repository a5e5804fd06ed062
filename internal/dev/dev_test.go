package dev

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/radiowazoo/wwwbuild/internal/build"
	"github.com/radiowazoo/wwwbuild/internal/config"
	"github.com/radiowazoo/wwwbuild/internal/sass"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// passCompiler returns Sass sources unchanged and fails on @error, the
// way Dart Sass does.
type passCompiler struct{}

func (passCompiler) Compile(req sass.Request) (string, error) {
	if strings.Contains(req.Source, "@error") {
		return "", errors.New("Error: " + strings.TrimSpace(req.Source))
	}
	return req.Source, nil
}

func (passCompiler) Close() error { return nil }

func newTestServer(t *testing.T, hotReload bool) (*Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewAt(dir)
	cfg.Serve.HotReload = hotReload

	src := cfg.SourcePath()
	mustWriteFile(t, filepath.Join(src, "index.html"), `<html><head><link rel="stylesheet" href="assets/css/main.css"></head><body><script src="assets/js/main.js"></script></body></html>`)
	mustWriteFile(t, filepath.Join(src, "assets", "css", "main.scss"), "body { color: red; }\n")
	mustWriteFile(t, filepath.Join(src, "assets", "js", "main.js"), "console.log(1);\n")
	mustWriteFile(t, filepath.Join(src, "assets", "img", "logo.svg"), "<svg/>")

	b := build.New(cfg, build.Options{Compiler: passCompiler{}})
	if _, err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	s, err := NewServer(ServerOptions{Config: cfg, Builder: b, Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	t.Cleanup(s.watcher.Stop)
	return s, cfg
}

func waitForChanges(t *testing.T, ch <-chan []Change, want string) []Change {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch := <-ch:
			for _, c := range batch {
				if c.Path == want {
					return batch
				}
			}
		case <-deadline:
			t.Fatalf("timeout waiting for change to %s", want)
			return nil
		}
	}
}

func startWatcher(t *testing.T, root string, config WatcherConfig) (*Watcher, <-chan []Change) {
	t.Helper()
	config.Root = root
	config.Debounce = 20 * time.Millisecond
	w, err := NewWatcher(config)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	changes := make(chan []Change, 16)
	w.OnChange(func(batch []Change) { changes <- batch })
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, changes
}

func TestWatcher_Write(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	file := filepath.Join(dir, "css", "main.scss")
	mustWriteFile(t, file, "a {}")

	w, changes := startWatcher(t, dir, WatcherConfig{})

	mustWriteFile(t, file, "a { color: red; }")
	batch := waitForChanges(t, changes, file)
	if batch[slices.IndexFunc(batch, func(c Change) bool { return c.Path == file })].Removed {
		t.Error("written file reported as removed")
	}

	w.Stop()
	w.Stop()
	for len(changes) > 0 {
		<-changes
	}
	mustWriteFile(t, file, "a { color: blue; }")
	select {
	case batch := <-changes:
		t.Errorf("change delivered after Stop: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	_, changes := startWatcher(t, dir, WatcherConfig{})

	file := filepath.Join(dir, "pages", "setup", "wifi.html")
	mustWriteFile(t, file, "<html>")
	waitForChanges(t, changes, file)
}

func TestWatcher_Removed(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "logo.svg")
	mustWriteFile(t, file, "<svg/>")
	_, changes := startWatcher(t, dir, WatcherConfig{})

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	batch := waitForChanges(t, changes, file)
	for _, c := range batch {
		if c.Path == file && !c.Removed {
			t.Error("removed file not flagged")
		}
	}
}

func TestWatcher_Exclude(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	if err := os.MkdirAll(out, 0755); err != nil {
		t.Fatal(err)
	}
	_, changes := startWatcher(t, dir, WatcherConfig{Exclude: []string{out}})

	mustWriteFile(t, filepath.Join(out, "index.html"), "built")
	marker := filepath.Join(dir, "index.html")
	mustWriteFile(t, marker, "source")

	batch := waitForChanges(t, changes, marker)
	for _, c := range batch {
		if strings.HasPrefix(c.Path, out) {
			t.Errorf("excluded path reported: %s", c.Path)
		}
	}
}

func TestWatcher_Ignore(t *testing.T) {
	w := &Watcher{config: WatcherConfig{Ignore: []string{"*.swp", "node_modules", "vendor/cache"}}}

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join("src", "main.scss.swp"), true},
		{filepath.Join("src", "node_modules", "x", "y.scss"), true},
		{filepath.Join("src", "vendor", "cache", "a.css"), true},
		{filepath.Join("src", "vendor", "a.css"), false},
		{filepath.Join("src", "my_node_modules.css"), false},
		{filepath.Join("src", "main.scss"), false},
	}
	for _, tt := range tests {
		if got := w.shouldIgnore(tt.path); got != tt.want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestClassifyChange(t *testing.T) {
	cfg := config.New()
	tests := []struct {
		path string
		want build.TaskID
		ok   bool
	}{
		{"main.scss", build.TaskStylesheet, true},
		{"theme.sass", build.TaskStylesheet, true},
		{"reset.CSS", build.TaskStylesheet, true},
		{"app.js", build.TaskScript, true},
		{"index.html", build.TaskMarkup, true},
		{"logo.PNG", build.TaskAssets, true},
		{"notes.txt", 0, false},
		{"app.js.map", 0, false},
	}
	for _, tt := range tests {
		got, ok := classifyChange(cfg, tt.path)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("classifyChange(%q) = %v, %v; want %v, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTasksFor(t *testing.T) {
	s, cfg := newTestServer(t, false)
	src := cfg.SourcePath()

	ids, full := s.tasksFor([]Change{
		{Path: filepath.Join(src, "index.html")},
		{Path: filepath.Join(src, "a.scss")},
		{Path: filepath.Join(src, "b.scss")},
		{Path: filepath.Join(src, "README")},
	})
	if full || !slices.Equal(ids, []build.TaskID{build.TaskStylesheet, build.TaskMarkup}) {
		t.Errorf("tasksFor = %v, %v", ids, full)
	}

	ids, full = s.tasksFor([]Change{{Path: filepath.Join(src, "old.svg"), Removed: true}})
	if !full || !slices.Equal(ids, []build.TaskID{build.TaskAssets}) {
		t.Errorf("tasksFor(removed) = %v, %v", ids, full)
	}

	ids, _ = s.tasksFor([]Change{{Path: filepath.Join(src, "notes.txt"), Removed: true}})
	if len(ids) != 0 {
		t.Errorf("tasksFor(unrelated) = %v, want none", ids)
	}

	cfg.Tasks = []string{"script"}
	ids, _ = s.tasksFor([]Change{
		{Path: filepath.Join(src, "a.scss")},
		{Path: filepath.Join(src, "assets", "js", "main.js")},
	})
	if !slices.Equal(ids, []build.TaskID{build.TaskScript}) {
		t.Errorf("tasksFor(tasks=[script]) = %v, want [js]", ids)
	}
}

func TestServeOutput(t *testing.T) {
	s, cfg := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	get := func(path string) (*http.Response, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp, string(body)
	}

	resp, body := get("/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, ReloadPath) || !strings.Contains(body, `href="assets/css/main.min.css"`) {
		t.Errorf("GET / body = %s", body)
	}
	if idx := strings.Index(body, "<script>"); idx == -1 || idx > strings.Index(body, "</body>") {
		t.Error("client not injected before </body>")
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", resp.Header.Get("Cache-Control"))
	}

	resp, body = get("/assets/css/main.min.css")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "body{color:red}") {
		t.Errorf("GET css = %d %q", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/css") {
		t.Errorf("css Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if strings.Contains(body, ReloadPath) {
		t.Error("client injected into CSS")
	}

	if resp, _ := get("/missing.html"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET missing status = %d", resp.StatusCode)
	}

	secret := filepath.Join(filepath.Dir(cfg.OutputPath()), "secret.txt")
	mustWriteFile(t, secret, "secret")
	if resp, body := get("/../secret.txt"); resp.StatusCode != http.StatusNotFound || body == "secret" {
		t.Errorf("traversal served %d %q", resp.StatusCode, body)
	}
}

func TestServeOutput_HotReloadOff(t *testing.T) {
	s, _ := newTestServer(t, false)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(body), ReloadPath) {
		t.Error("client injected with hot reload off")
	}

	resp, err = http.Get(srv.URL + ReloadPath)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("reload endpoint status = %d, want 404", resp.StatusCode)
	}
}

func dialReload(t *testing.T, s *Server, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+ReloadPath, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.reloadServer.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMessages(t *testing.T, conn *websocket.Conn, n int) []ReloadMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msgs []ReloadMessage
	for range n {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error: %v", err)
		}
		var msg ReloadMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestHandleChanges(t *testing.T) {
	s, cfg := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dialReload(t, s, srv)
	defer conn.Close()

	var rebuilt [][]build.TaskID
	s.options.OnRebuild = func(ids []build.TaskID, err error) { rebuilt = append(rebuilt, ids) }

	src, out := cfg.SourcePath(), cfg.OutputPath()
	ctx := context.Background()

	// A stylesheet edit refreshes CSS only.
	scss := filepath.Join(src, "assets", "css", "main.scss")
	mustWriteFile(t, scss, "body { color: blue; }\n")
	s.handleChanges(ctx, []Change{{Path: scss}})
	msgs := readMessages(t, conn, 2)
	if msgs[0].Type != ReloadTypeClear || msgs[1].Type != ReloadTypeCSS || msgs[1].File != "assets/css/main.scss" {
		t.Errorf("messages = %+v", msgs)
	}
	css, _ := os.ReadFile(filepath.Join(out, "assets", "css", "main.min.css"))
	if !strings.Contains(string(css), "blue") {
		t.Errorf("main.min.css not rebuilt: %q", css)
	}

	// A script syntax error shows the overlay.
	js := filepath.Join(src, "assets", "js", "main.js")
	mustWriteFile(t, js, "let = ;\n")
	s.handleChanges(ctx, []Change{{Path: js}})
	msgs = readMessages(t, conn, 1)
	if msgs[0].Type != ReloadTypeError || !strings.Contains(msgs[0].Error, "E121") {
		t.Errorf("messages = %+v", msgs)
	}

	// Fixing it reloads the page.
	mustWriteFile(t, js, "console.log(2);\n")
	s.handleChanges(ctx, []Change{{Path: js}})
	msgs = readMessages(t, conn, 2)
	if msgs[0].Type != ReloadTypeClear || msgs[1].Type != ReloadTypeFull {
		t.Errorf("messages = %+v", msgs)
	}

	want := [][]build.TaskID{{build.TaskStylesheet}, {build.TaskScript}, {build.TaskScript}}
	if len(rebuilt) != len(want) {
		t.Fatalf("rebuilds = %v, want %v", rebuilt, want)
	}
	for i := range want {
		if !slices.Equal(rebuilt[i], want[i]) {
			t.Errorf("rebuild %d = %v, want %v", i, rebuilt[i], want[i])
		}
	}
}

func TestHandleChanges_StylesheetErrorShowsOverlay(t *testing.T) {
	s, cfg := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dialReload(t, s, srv)
	defer conn.Close()

	var rebuilt []build.TaskID
	s.options.OnRebuild = func(ids []build.TaskID, err error) { rebuilt = append(rebuilt, ids...) }

	scss := filepath.Join(cfg.SourcePath(), "assets", "css", "main.scss")
	minCSS := filepath.Join(cfg.OutputPath(), "assets", "css", "main.min.css")
	if _, err := os.Stat(minCSS); err != nil {
		t.Fatalf("initial build did not write main.min.css: %v", err)
	}

	mustWriteFile(t, scss, `@error "boom";`+"\n")
	s.handleChanges(context.Background(), []Change{{Path: scss}})

	msgs := readMessages(t, conn, 1)
	if msgs[0].Type != ReloadTypeError {
		t.Fatalf("messages = %+v, want an error", msgs)
	}
	for _, want := range []string{"assets/css/main.scss", "E113", "boom"} {
		if !strings.Contains(msgs[0].Error, want) {
			t.Errorf("error message %q missing %q", msgs[0].Error, want)
		}
	}
	if _, err := os.Stat(minCSS); !os.IsNotExist(err) {
		t.Error("stale main.min.css still served after a compile error")
	}

	mustWriteFile(t, scss, "body { color: green; }\n")
	s.handleChanges(context.Background(), []Change{{Path: scss}})
	msgs = readMessages(t, conn, 2)
	if msgs[0].Type != ReloadTypeClear || msgs[1].Type != ReloadTypeCSS {
		t.Errorf("messages after fix = %+v", msgs)
	}
	css, _ := os.ReadFile(minCSS)
	if !strings.Contains(string(css), "green") {
		t.Errorf("main.min.css = %q, want the fixed stylesheet", css)
	}

	if !slices.Equal(rebuilt, []build.TaskID{build.TaskStylesheet, build.TaskStylesheet}) {
		t.Errorf("rebuilds = %v", rebuilt)
	}
}

func TestHandleChanges_RemovedSourceRunsFullBuild(t *testing.T) {
	s, cfg := newTestServer(t, false)
	logo := filepath.Join(cfg.SourcePath(), "assets", "img", "logo.svg")
	if err := os.Remove(logo); err != nil {
		t.Fatal(err)
	}

	s.handleChanges(context.Background(), []Change{{Path: logo, Removed: true}})
	if _, err := os.Stat(filepath.Join(cfg.OutputPath(), "assets", "img", "logo.svg")); !os.IsNotExist(err) {
		t.Error("output of removed source survived")
	}
}

func TestReloadServer_Close(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rs := NewReloadServer()
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleWebSocket))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for rs.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rs.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", rs.ClientCount())
	}

	rs.Close()
	if rs.ClientCount() != 0 {
		t.Errorf("ClientCount() after Close = %d", rs.ClientCount())
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after Close")
	}
	conn.Close()
	srv.Close()
}

func TestInjectClient(t *testing.T) {
	tests := []struct {
		name, in, before string
	}{
		{"body", "<html><body><p>x</p></body></html>", "</body>"},
		{"html only", "<html><p>x</p></html>", "</html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(InjectClient([]byte(tt.in)))
			if !strings.Contains(got, DevClientScript+tt.before) {
				t.Errorf("InjectClient() = %s", got)
			}
		})
	}

	fragment := []byte("<p>fragment</p>")
	got := InjectClient(fragment)
	if !strings.HasPrefix(string(got), "<p>fragment</p><script>") {
		t.Errorf("InjectClient(fragment) = %s", got)
	}
	if string(fragment) != "<p>fragment</p>" {
		t.Error("InjectClient modified its input")
	}
}
