package dev

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/radiowazoo/wwwbuild/internal/build"
	"github.com/radiowazoo/wwwbuild/internal/config"
	wwwerrors "github.com/radiowazoo/wwwbuild/internal/errors"
)

// ServerOptions configures the preview server.
type ServerOptions struct {
	// Config is the project configuration.
	Config *config.Config

	// Builder runs the initial build and the rebuilds.
	Builder *build.Builder

	Logger *slog.Logger

	// Debounce is how long the source tree must be quiet before a rebuild.
	Debounce time.Duration

	// OnRebuild is called after every rebuild triggered by a change.
	OnRebuild func(tasks []build.TaskID, err error)
}

// Server serves the output tree, rebuilds on source changes and tells
// connected browsers to reload.
type Server struct {
	config       *config.Config
	options      ServerOptions
	builder      *build.Builder
	watcher      *Watcher
	reloadServer *ReloadServer
	changeCh     chan []Change
	httpServer   *http.Server
	log          *slog.Logger
	mu           sync.Mutex
	running      bool
	hotReload    bool
}

// NewServer creates a new preview server.
func NewServer(options ServerOptions) (*Server, error) {
	cfg := options.Config
	log := options.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	watcher, err := NewWatcher(WatcherConfig{
		Root:     cfg.SourcePath(),
		Exclude:  []string{cfg.OutputPath()},
		Debounce: options.Debounce,
		Logger:   log,
	})
	if err != nil {
		return nil, wwwerrors.New("E172").Wrap(err)
	}

	s := &Server{
		config:    cfg,
		options:   options,
		builder:   options.Builder,
		watcher:   watcher,
		changeCh:  make(chan []Change, 16),
		log:       log,
		hotReload: cfg.Serve.HotReload,
	}
	if s.hotReload {
		s.reloadServer = NewReloadServer()
	}
	return s, nil
}

// Handler returns the HTTP handler: the reload endpoint when hot reload
// is on, and the output tree for everything else.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(s.logRequests)

	if s.reloadEnabled() {
		r.Get(ReloadPath, s.reloadServer.HandleWebSocket)
	}
	r.Get("/*", s.serveOutput)
	return r
}

// Start builds once, starts watching and serves until ctx is done or the
// listener fails. A failed initial build is reported but does not stop
// the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("building")
	if result, err := s.builder.Build(ctx); err != nil {
		s.log.Error("build failed", "error", err)
	} else {
		s.log.Info("built", "duration", result.Duration.Round(time.Millisecond))
	}

	s.watcher.OnChange(func(changes []Change) {
		select {
		case s.changeCh <- changes:
		default:
			s.log.Warn("rebuild queue full, dropping changes", "count", len(changes))
		}
	})
	if err := s.watcher.Start(ctx); err != nil {
		s.Stop()
		return wwwerrors.New("E172").Wrap(err)
	}
	go s.processChanges(ctx)

	ln, err := net.Listen("tcp", s.config.ServeAddress())
	if err != nil {
		s.Stop()
		return wwwerrors.New("E171").Wrap(err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("serving", "url", "http://"+ln.Addr().String(), "dir", s.config.OutputPath())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		if err != nil {
			return wwwerrors.New("E171").Wrap(err)
		}
		return nil
	}
}

// Stop stops the watcher, disconnects browsers and shuts the server down.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.watcher.Stop()
	if s.reloadServer != nil {
		s.reloadServer.Close()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// processChanges serializes rebuilds and coalesces queued batches.
func (s *Server) processChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case changes := <-s.changeCh:
			draining := true
			for draining {
				select {
				case next := <-s.changeCh:
					changes = append(changes, next...)
				default:
					draining = false
				}
			}
			s.handleChanges(ctx, changes)
		}
	}
}

// handleChanges rebuilds what a batch of changes invalidates and notifies
// browsers. A removed source runs the whole build so its output goes away.
// Skipped sources, such as a stylesheet that no longer compiles, are
// reported like a failed build.
func (s *Server) handleChanges(ctx context.Context, changes []Change) {
	ids, full := s.tasksFor(changes)
	if len(ids) == 0 {
		return
	}
	for _, c := range changes {
		s.log.Info("changed", "path", c.Path, "removed", c.Removed)
	}

	var (
		err     error
		skipped []build.SkippedFile
	)
	if full {
		result, buildErr := s.builder.Build(ctx)
		err = buildErr
		skipped = result.Skipped()
	} else {
		for _, id := range ids {
			result, runErr := s.builder.Run(ctx, id)
			if runErr != nil && err == nil {
				err = runErr
			}
			skipped = append(skipped, result.Skipped()...)
		}
	}
	if s.options.OnRebuild != nil {
		s.options.OnRebuild(ids, err)
	}

	if err != nil || len(skipped) > 0 {
		msg := s.failureMessage(err, skipped)
		s.log.Error("rebuild failed", "error", msg)
		if s.reloadEnabled() {
			s.reloadServer.NotifyError(msg)
		}
		return
	}

	if !s.reloadEnabled() {
		s.log.Info("rebuilt (hot reload disabled)")
		return
	}
	s.reloadServer.ClearError()
	if !full && len(ids) == 1 && ids[0] == build.TaskStylesheet {
		s.reloadServer.NotifyCSS(s.relative(changes[0].Path))
		s.log.Info("stylesheets reloaded", "clients", s.reloadServer.ClientCount())
		return
	}
	s.reloadServer.NotifyReload()
	s.log.Info("reloaded", "clients", s.reloadServer.ClientCount())
}

// failureMessage describes a failed rebuild for the error overlay, one
// line per problem.
func (s *Server) failureMessage(err error, skipped []build.SkippedFile) string {
	var lines []string
	if err != nil {
		lines = append(lines, wwwerrors.Summary(err))
	}
	for _, sk := range skipped {
		lines = append(lines, s.relative(sk.Path)+": "+wwwerrors.Summary(sk.Err))
	}
	return strings.Join(lines, "\n")
}

// tasksFor returns the parallel tasks a batch of changes invalidates, in
// graph order. full is set when a whole build is needed instead.
func (s *Server) tasksFor(changes []Change) (ids []build.TaskID, full bool) {
	graph := s.builder.Graph()
	hit := make(map[build.TaskID]bool)
	for _, c := range changes {
		id, ok := classifyChange(s.config, c.Path)
		if !ok || !s.config.HasTask(id.String()) {
			continue
		}
		hit[id] = true
		if c.Removed {
			full = true
		}
	}
	for _, id := range graph.Parallel {
		if hit[id] {
			ids = append(ids, id)
		}
	}
	return ids, full && len(ids) > 0
}

// classifyChange maps a source path to the task that consumes it.
func classifyChange(cfg *config.Config, p string) (build.TaskID, bool) {
	ext := strings.ToLower(filepath.Ext(p))
	switch ext {
	case ".scss", ".sass", ".css":
		return build.TaskStylesheet, true
	case ".js", ".mjs":
		return build.TaskScript, true
	case ".html", ".htm":
		return build.TaskMarkup, true
	}
	if slices.Contains(cfg.Images.Extensions, ext) {
		return build.TaskAssets, true
	}
	return 0, false
}

// serveOutput serves a file from the output tree. Directories serve their
// index.html, and HTML gets the reload client when hot reload is on.
func (s *Server) serveOutput(w http.ResponseWriter, r *http.Request) {
	root := s.config.OutputPath()
	name := filepath.Join(root, filepath.FromSlash(path.Clean("/"+r.URL.Path)))

	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		name = filepath.Join(name, "index.html")
		info, err = os.Stat(name)
	}
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-store")

	isHTML := strings.EqualFold(filepath.Ext(name), ".html")
	if isHTML && s.reloadEnabled() {
		data, err := os.ReadFile(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(InjectClient(data))
		return
	}

	f, err := os.Open(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) relative(p string) string {
	rel, err := filepath.Rel(s.config.SourcePath(), p)
	if err != nil {
		return filepath.Base(p)
	}
	return filepath.ToSlash(rel)
}

func (s *Server) reloadEnabled() bool {
	return s.hotReload && s.reloadServer != nil
}
