// Package server is the development server: it serves the output tree,
// injects a live-reload client into HTML pages and pushes reload messages
// to connected browsers when pipelines write new files.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/assetline/internal/config"
	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/glob"
	"github.com/conneroisu/assetline/internal/logging"
	"github.com/conneroisu/assetline/internal/validation"
	"github.com/conneroisu/assetline/internal/version"
	"github.com/conneroisu/assetline/internal/watcher"
)

const (
	liveReloadPath = "/__livereload"
	healthPath     = "/__health"
)

// Server serves the output tree with live reload. It implements
// build.Notifier.
type Server struct {
	cfg       *config.Config
	logger    logging.Logger
	collector *errors.ErrorCollector
	hub       *hub
	outputs   *watcher.Group
	started   time.Time
	stats     func() interface{}

	serverMutex  sync.RWMutex
	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New creates a server for cfg. collector, if set, feeds the error count of
// the health endpoint.
func New(cfg *config.Config, logger logging.Logger, collector *errors.ErrorCollector) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger.WithComponent("server"),
		collector: collector,
	}
	s.hub = newHub(s)
	return s
}

func (s *Server) addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

// Handler returns the HTTP routes of the dev server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(liveReloadPath, s.handleLiveReload)
	mux.HandleFunc(healthPath, s.handleHealth)
	mux.Handle("/", newStaticHandler(s.cfg.Paths.RootDir))
	return s.logRequests(mux)
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.started = time.Now()
	go s.hub.run(ctx)

	if s.cfg.Server.WatchOutput {
		if err := s.watchOutput(ctx); err != nil {
			s.logger.Warn(ctx, err, "Output tree watch disabled")
		}
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	url := "http://" + ln.Addr().String()
	s.logger.Info(ctx, "Dev server listening", "url", url, "root", s.cfg.Paths.RootDir)
	if s.cfg.Server.Open {
		go s.openBrowser(ctx, url)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		s.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// watchOutput reloads browsers on any change below the output root, so
// files written outside a pipeline's notification still show up.
func (s *Server) watchOutput(ctx context.Context) error {
	root := filepath.Clean(s.cfg.Paths.RootDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	s.outputs = watcher.NewGroup(s.logger)
	return s.outputs.Bind(ctx, watcher.Binding{
		Name:    "output",
		Pattern: glob.New(filepath.Join(root, "**", "*"), "!"+filepath.Join(root, "**", ".assetline-*")),
		Run: func(ctx context.Context, events []watcher.ChangeEvent) error {
			paths := make([]string, 0, len(events))
			for _, e := range events {
				paths = append(paths, e.Path)
			}
			s.Notify(ctx, paths...)
			return nil
		},
	}, s.cfg.Watch.Debounce)
}

// Notify tells browsers that paths were written. Stylesheet-only changes are
// swapped in place; anything else reloads the page.
func (s *Server) Notify(ctx context.Context, paths ...string) {
	var targets []string
	for _, p := range paths {
		switch filepath.Ext(p) {
		case ".map":
			continue
		case ".css":
			if target, ok := s.urlPath(p); ok {
				targets = append(targets, target)
				continue
			}
		}
		s.logger.Debug(ctx, "Reloading browsers", "file", p)
		s.hub.send(Message{Type: MessageReload})
		return
	}

	for _, target := range targets {
		s.logger.Debug(ctx, "Refreshing stylesheet", "target", target)
		s.hub.send(Message{Type: MessageCSS, Target: target})
	}
}

// ReportBuildError forwards a build error to browsers. It is registered as
// an errors.Listener.
func (s *Server) ReportBuildError(err errors.BuildError) {
	s.hub.send(Message{
		Type:    MessageBuildError,
		Target:  err.File,
		Content: err.Error(),
	})
}

// urlPath maps an output file to the URL path it is served under.
func (s *Server) urlPath(file string) (string, bool) {
	root, err := filepath.Abs(s.cfg.Paths.RootDir)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}

// SetStats adds the value returned by fn to the health response under
// "pipelines". Call it before Start.
func (s *Server) SetStats(fn func() interface{}) {
	s.stats = fn
}

// Shutdown stops the HTTP server, the output watch and every websocket.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down dev server")

		if s.outputs != nil {
			s.outputs.Stop()
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	buildErrors := 0
	if s.collector != nil {
		buildErrors = len(s.collector.GetErrors())
	}
	status := "healthy"
	if buildErrors > 0 {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":       status,
		"timestamp":    time.Now().UTC(),
		"version":      version.Short(),
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"clients":      s.hub.clientCount(),
		"build_errors": buildErrors,
	}
	if s.stats != nil {
		health["pipelines"] = s.stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path != liveReloadPath {
			s.logger.Debug(r.Context(), "Request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}

func (s *Server) openBrowser(ctx context.Context, url string) {
	if err := validation.ValidateURL(url); err != nil {
		s.logger.Warn(ctx, err, "Not opening browser", "url", url)
		return
	}
	time.Sleep(100 * time.Millisecond)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		s.logger.Warn(ctx, nil, "Cannot open browser on this platform", "platform", runtime.GOOS)
		return
	}
	if err := cmd.Start(); err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
	}
}
