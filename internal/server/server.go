// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/qrcode"
	"github.com/smartdevs17/qrcode-generator/internal/repository"
	"github.com/smartdevs17/qrcode-generator/internal/storage"
	"github.com/smartdevs17/qrcode-generator/internal/viewstate"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

const defaultMaxUploadBytes = 10 << 20

// HistoryStore is the repository surface the API needs
type HistoryStore interface {
	repository.QRCodeRepository
	GetStorageStats(ctx context.Context) (*storage.StorageStats, error)
	GetHealth() *storage.StorageHealth
}

// Dependencies are the components the HTTP server exposes
type Dependencies struct {
	Repository     HistoryStore
	Renderer       *qrcode.Renderer
	Decoder        *qrcode.Decoder
	Settings       *viewstate.SettingsModel
	MetricsManager *metrics.Manager
	MaxUploadBytes int64
	Version        string
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	repo           HistoryStore
	renderer       *qrcode.Renderer
	decoder        *qrcode.Decoder
	settings       *viewstate.SettingsModel
	metricsManager *metrics.Manager
	maxUploadBytes int64
	version        string
	logger         *logrus.Entry

	// cancels background work and open streams on Stop
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.ServerConfig, deps Dependencies) (*HTTPServer, error) {
	if deps.Repository == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "HTTP server requires a repository")
	}
	if deps.Renderer == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "HTTP server requires a renderer")
	}
	if deps.Decoder == nil {
		deps.Decoder = qrcode.NewDecoder()
	}
	if deps.Settings == nil {
		deps.Settings = viewstate.NewSettingsModel(deps.Repository, config.UIConfig{DarkTheme: true, AutoCopy: true})
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	server := &HTTPServer{
		config:         cfg,
		repo:           deps.Repository,
		renderer:       deps.Renderer,
		decoder:        deps.Decoder,
		settings:       deps.Settings,
		metricsManager: deps.MetricsManager,
		maxUploadBytes: deps.MaxUploadBytes,
		version:        deps.Version,
		logger:         utils.ComponentLogger("http_server"),
		baseCtx:        baseCtx,
		cancelBase:     cancel,
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Codec endpoints
	api.HandleFunc("/generate", s.generateHandler).Methods("POST", "OPTIONS")
	api.HandleFunc("/scan", s.scanHandler).Methods("POST", "OPTIONS")

	// History endpoints; fixed paths first so they are not taken for ids
	api.HandleFunc("/history", s.listHistoryHandler).Methods("GET")
	api.HandleFunc("/history", s.clearHistoryHandler).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/history/count", s.countHistoryHandler).Methods("GET")
	api.HandleFunc("/history/stream", s.streamHandler).Methods("GET")
	api.HandleFunc("/history/{id:[0-9]+}", s.getHistoryHandler).Methods("GET")
	api.HandleFunc("/history/{id:[0-9]+}/image", s.historyImageHandler).Methods("GET")
	api.HandleFunc("/history/{id:[0-9]+}", s.deleteHistoryHandler).Methods("DELETE", "OPTIONS")

	// Settings endpoints
	api.HandleFunc("/settings", s.getSettingsHandler).Methods("GET")
	api.HandleFunc("/settings", s.updateSettingsHandler).Methods("PUT", "OPTIONS")
}

// Handler returns the root handler, mainly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if err := s.settings.Load(s.baseCtx); err != nil {
		s.logger.WithError(err).Warn("Failed to load settings")
	}
	s.settings.Watch(s.baseCtx)

	// Update system and component metrics so they appear on first scrape
	if s.metricsManager != nil {
		s.updateHealthMetrics()
		go s.systemMetricsUpdater(s.baseCtx)
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		s.cancelBase()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateHealthMetrics()
		}
	}
}

func (s *HTTPServer) updateHealthMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", s.repo.GetHealth().Healthy)
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	s.cancelBase()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Utility Methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError writes an error response, deriving the status from the error code
func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	s.writeErrorStatus(w, statusForError(err), err)
}

func (s *HTTPServer) writeErrorStatus(w http.ResponseWriter, status int, err error) {
	code := utils.ErrorCode(err)
	if status >= http.StatusInternalServerError {
		fields := logrus.Fields{
			"status": status,
			"code":   code,
		}
		var appErr *utils.AppError
		if errors.As(err, &appErr) && appErr.File != "" {
			fields["origin"] = fmt.Sprintf("%s:%d", appErr.File, appErr.Line)
		}
		s.logger.WithFields(fields).WithError(err).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse{Error: utils.UserMessage(err), Code: code})
}

func statusForError(err error) int {
	switch utils.ErrorCode(err) {
	case utils.ErrCodeValidation:
		return http.StatusBadRequest
	case utils.ErrCodeNotFound:
		return http.StatusNotFound
	case utils.ErrCodeProcessing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
