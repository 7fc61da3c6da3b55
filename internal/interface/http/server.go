// Package http implements the REST API of the learning progress service.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/alem-hub/learnhub/internal/application/command"
	"github.com/alem-hub/learnhub/internal/application/query"
	"github.com/alem-hub/learnhub/internal/interface/http/handlers"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// AllowedOrigins - allowed origins for CORS; "*" allows any.
	AllowedOrigins []string

	// RateLimitRPS - requests per second per client IP (0 = disabled).
	RateLimitRPS   float64
	RateLimitBurst int

	// ServiceName names the server spans.
	ServiceName string

	// Version is reported by /health.
	Version string

	// Debug switches gin to debug mode.
	Debug bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   20,
		RateLimitBurst: 40,
		ServiceName:    "learnhub",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Command side
	Enrollments *command.EnrollmentService
	Progress    *command.ContentProgressService
	Streaks     *command.StreakService

	// Query side
	ProgressViews *query.ProgressQueries
	Statistics    *query.StatisticsAggregator
	StreakReads   *query.StreakQueries

	Auth   *Authenticator
	Health handlers.HealthChecker
	Logger *logger.Logger
}

func (d Dependencies) validate() error {
	var missing []string
	if d.Enrollments == nil {
		missing = append(missing, "Enrollments")
	}
	if d.Progress == nil {
		missing = append(missing, "Progress")
	}
	if d.Streaks == nil {
		missing = append(missing, "Streaks")
	}
	if d.ProgressViews == nil {
		missing = append(missing, "ProgressViews")
	}
	if d.Statistics == nil {
		missing = append(missing, "Statistics")
	}
	if d.StreakReads == nil {
		missing = append(missing, "StreakReads")
	}
	if d.Auth == nil {
		missing = append(missing, "Auth")
	}
	if len(missing) > 0 {
		return fmt.Errorf("http: missing dependencies %v", missing)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker(config.Version)
	}
	if config.ServiceName == "" {
		config.ServiceName = "learnhub"
	}

	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	useWireFieldNames()

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupMiddleware() {
	s.engine.Use(
		otelgin.Middleware(s.config.ServiceName),
		requestID(s.logger),
		requestLogger(s.logger),
		recovery(s.logger),
		corsMiddleware(s.config.AllowedOrigins),
	)
	if s.config.RateLimitRPS > 0 {
		s.engine.Use(rateLimit(newClientLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)))
	}
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, JSONResponse{
			Error:     &APIError{Code: "ROUTE_NOT_FOUND", Message: "route not found"},
			Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
			RequestID: requestIDOf(c),
		})
	})
}

// setupRoutes mounts the API at the root and under /api/v1.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/live", s.handleLive)

	s.mountAPI(s.engine.Group(""))
	s.mountAPI(s.engine.Group("/api/" + apiVersion))
}

func (s *Server) mountAPI(root *gin.RouterGroup) {
	api := root.Group("", requireAuth(s.deps.Auth))

	enrollments := api.Group("/enrollments")
	enrollments.POST("", s.handleEnroll)
	enrollments.GET("", s.handleListEnrollments)
	enrollments.GET("/:id", s.handleGetEnrollment)
	enrollments.PUT("/:id/pause", s.handlePause)
	enrollments.PUT("/:id/resume", s.handleResume)
	enrollments.PUT("/:id/complete", s.handleCompleteEnrollment)
	enrollments.DELETE("/:id", s.handleUnenroll)

	progress := api.Group("/progress")
	progress.POST("/content/start", s.handleStartContent)
	progress.POST("/content/complete", s.handleCompleteContent)
	progress.POST("/content/update", s.handleUpdateProgress)
	progress.GET("/content/:contentId", s.handleGetContentProgress)
	progress.GET("/module/:userId/:moduleId", s.handleModuleProgress)
	progress.GET("/overview/:userId", s.handleOverview)

	streaks := api.Group("/streak")
	streaks.GET("/status", s.handleStreakStatus)
	streaks.POST("/update", s.handleStreakUpdate)
	streaks.GET("/leaderboard", s.handleLeaderboard)

	api.GET("/statistics/modules/:moduleId", requireAdmin(), s.handleModuleStats)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.Health.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, JSONResponse{
		Success:   status.Healthy,
		Data:      status,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: apiVersion},
		RequestID: requestIDOf(c),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.Health.Check(c.Request.Context())
	if !status.Ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "message": status.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true, "uptime": s.Uptime().Round(time.Second).String()})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
