package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vertextoedge/download-controller/internal/adapter/page"
	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/domain/event"
	"github.com/vertextoedge/download-controller/internal/port"
	"github.com/vertextoedge/download-controller/internal/telemetry"
	"go.uber.org/zap"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr           string
	DownloadDir        string
	AdminUsername      string
	AdminPassword      string
	EnableFileBrowser  bool
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	DefaultHistorySize int
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:           "127.0.0.1:8080",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		DefaultHistorySize: 100,
	}
}

// DownloadController is the download facade driven by the API
type DownloadController interface {
	Available() bool
	Backend() string
	StartDownload(u *url.URL, dest domain.Destination) (domain.Handle, bool)
	Transfers() []domain.Transfer
	Transfer(id int64) (domain.Transfer, bool)
	Pause(id int64) error
	Resume(id int64) error
	Cancel(id int64) error
	RemoveAll() error
}

// PageOpener opens pages and raises save requests
type PageOpener interface {
	Open(ctx context.Context, rawURL string) (*page.Result, error)
	RequestSave(rawURL string) error
}

// Deps are the collaborators served by the API. Only Controller is required.
type Deps struct {
	Controller DownloadController
	Pages      PageOpener
	History    port.HistoryRepository
	Metrics    *event.MetricsHandler
	Telemetry  *telemetry.Telemetry
	Ping       func() error
}

// Server represents the control API server
type Server struct {
	config *Config
	deps   Deps
	logger *zap.Logger
	server *http.Server
	router chi.Router
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DefaultHistorySize <= 0 {
		cfg.DefaultHistorySize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.Named("http"),
	}

	downloads := NewDownloadHandler(deps.Controller, cfg.DownloadDir, s.logger)
	pages := NewPageHandler(deps.Pages, s.logger)
	debug := NewDebugHandler(deps.History, deps.Metrics, cfg.DefaultHistorySize, s.logger)

	r := chi.NewRouter()
	r.Use(LoggingMiddleware(s.logger))
	r.Use(MetricsMiddleware(deps.Telemetry))

	r.Get("/health", s.handleHealth)

	r.Route("/downloads", func(r chi.Router) {
		r.Post("/", downloads.HandleCreate)
		r.Get("/", downloads.HandleList)
		r.Delete("/", downloads.HandleRemoveAll)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", downloads.HandleGet)
			r.Post("/pause", downloads.HandlePause)
			r.Post("/resume", downloads.HandleResume)
			r.Post("/cancel", downloads.HandleCancel)
		})
	})

	r.Post("/page/open", pages.HandleOpen)
	r.Post("/page/save", pages.HandleSave)

	r.Get("/history", debug.HandleHistory)
	r.Get("/debug/stats", debug.HandleStats)
	r.Method(http.MethodGet, "/metrics", deps.Telemetry.Handler())

	if cfg.EnableFileBrowser && cfg.DownloadDir != "" {
		browser := NewFileBrowser(cfg.DownloadDir, s.logger)
		r.Group(func(r chi.Router) {
			r.Use(BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, s.logger))
			r.Get("/files", browser.HandleBrowse)
			r.Get("/files/*", browser.HandleBrowse)
		})
	}

	s.router = r
	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database connection failed")
			return
		}
	}

	backend := "unavailable"
	if s.deps.Controller != nil {
		backend = s.deps.Controller.Backend()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"backend": backend,
		"time":    time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
