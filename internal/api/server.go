// Package api provides HTTP API server functionality.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/app"
	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/ingest"
)

// Receiver handles one webhook delivery.
type Receiver interface {
	Receive(ctx context.Context, d ingest.Delivery) (*event.Record, error)
}

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger

	// Use case dependencies
	health   app.HealthUsecase
	receiver Receiver
	logs     app.LogsUsecase
	rooms    app.RoomsUsecase
	stats    app.StatsUsecase
	cfg      app.ConfigUsecase

	// SSE hub
	hub *Hub

	maxBodyBytes   int64
	webhookLimiter *RateLimiter

	// Operator auth configuration
	authEnabled  bool
	authUsername string
	authPassword string
	authFailures *AuthFailureLimiter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithReceiver enables POST /webhook.
func WithReceiver(r Receiver) ServerOption {
	return func(s *Server) { s.receiver = r }
}

// WithLogsUsecase sets the log listing use case.
func WithLogsUsecase(logs app.LogsUsecase) ServerOption {
	return func(s *Server) { s.logs = logs }
}

// WithRoomsUsecase sets the presence use case.
func WithRoomsUsecase(rooms app.RoomsUsecase) ServerOption {
	return func(s *Server) { s.rooms = rooms }
}

// WithStatsUsecase sets the stats use case.
func WithStatsUsecase(stats app.StatsUsecase) ServerOption {
	return func(s *Server) { s.stats = stats }
}

// WithConfigUsecase sets the config inspection use case.
func WithConfigUsecase(cfg app.ConfigUsecase) ServerOption {
	return func(s *Server) { s.cfg = cfg }
}

// WithHub sets the SSE hub.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) { s.hub = hub }
}

// WithLogger sets the logger used for access and error logs.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxBodyBytes caps webhook request bodies.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithWebhookRateLimit limits POST /webhook per client IP.
func WithWebhookRateLimit(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.webhookLimiter = rl }
}

// WithBasicAuth enables HTTP Basic Auth on operator endpoints.
func WithBasicAuth(username, password string) ServerOption {
	return func(s *Server) {
		if username != "" && password != "" {
			s.authEnabled = true
			s.authUsername = username
			s.authPassword = password
		}
	}
}

// NewServer creates a new API server with the given dependencies.
func NewServer(addr string, health app.HealthUsecase, opts ...ServerOption) *Server {
	mux := http.NewServeMux()
	s := &Server{
		mux:          mux,
		logger:       slog.Default(),
		health:       health,
		maxBodyBytes: ingest.DefaultMaxBodyBytes,
		authFailures: NewAuthFailureLimiter(DefaultAuthFailureLimiterConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // Disable for SSE (long-lived connections)
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler returns the routed handler with all global middleware applied.
func (s *Server) Handler() http.Handler {
	return accessLogMiddleware(s.logger)(securityHeadersMiddleware(s.mux))
}

// wrapAuth wraps a handler with auth middleware if auth is enabled.
func (s *Server) wrapAuth(h http.Handler) http.Handler {
	if !s.authEnabled {
		return h
	}
	return basicAuthMiddleware(s.authUsername, s.authPassword, s.authFailures)(h)
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	// No operator auth: health is probed by load balancers, and webhook
	// deliveries authenticate with their signature.
	s.mux.HandleFunc("GET /health", s.handleHealth)

	if s.receiver != nil {
		var h http.Handler = http.HandlerFunc(s.handleWebhook)
		if s.webhookLimiter != nil {
			h = s.webhookLimiter.Middleware(h)
		}
		s.mux.Handle("POST /webhook", h)
	}

	if s.logs != nil {
		s.mux.Handle("GET /logs", s.wrapAuth(http.HandlerFunc(s.handleLogs)))
	}
	if s.rooms != nil {
		s.mux.Handle("GET /rooms", s.wrapAuth(http.HandlerFunc(s.handleRooms)))
	}
	if s.stats != nil {
		s.mux.Handle("GET /stats", s.wrapAuth(http.HandlerFunc(s.handleStats)))
	}
	if s.cfg != nil {
		s.mux.Handle("GET /config", s.wrapAuth(http.HandlerFunc(s.handleConfig)))
	}
	if s.hub != nil && s.logs != nil {
		s.mux.Handle("GET /stream", s.wrapAuth(http.HandlerFunc(s.handleStream)))
	}
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.health.Handle(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleRooms handles GET /rooms.
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rooms.CurrentRooms(r.Context()))
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	result, err := s.stats.GetStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleConfig handles GET /config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.GetConfig(r.Context()))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr, "app", appinfo.AppName)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln. Used by tests and callers that bind
// the listener themselves.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "app", appinfo.AppName)
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.webhookLimiter != nil {
		s.webhookLimiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
