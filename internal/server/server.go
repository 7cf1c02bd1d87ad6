// Package server sets up the HTTP surface: the admin REST API, the signaling
// WebSocket endpoint, and the operational endpoints.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/chain"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/config"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/decoder"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/health"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/journal"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/logging"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/metrics"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/ratelimit"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/security"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/session"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/signaling"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/timers"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and the coordinator it fronts.
type Server struct {
	cfg          *config.Config
	manager      *session.Manager
	hub          *signaling.Hub
	timers       *timers.Controller
	journal      journal.Store
	recorder     *journal.Recorder
	checks       *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil when journaling in memory
	network      chain.Network
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithNetwork sets a custom execution network (for testing)
func WithNetwork(n chain.Network) Option {
	return func(s *Server) {
		s.network = n
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set network/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Journal storage (Postgres if DATABASE_URL set, otherwise in-memory).
	// Sessions themselves never touch a database.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		store := journal.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate journal: %w", err)
		}

		s.db = db
		s.journal = store
		s.logger.Info("using PostgreSQL journal", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.journal = journal.NewMemoryStore(0)
		s.logger.Info("using in-memory journal")
	}

	// Execution network. Without a relay, submissions are simulated so the
	// whole signing flow works on a laptop.
	if s.network == nil {
		if cfg.ExecutorURL != "" {
			if cfg.IsProduction() {
				if err := security.ValidateOutboundURL(cfg.ExecutorURL); err != nil {
					return nil, fmt.Errorf("EXECUTOR_URL rejected: %w", err)
				}
			}
			s.network = chain.NewRelayNetwork(cfg.ExecutorURL, cfg.ExecutorKey, cfg.NetworkName, s.logger)
			s.logger.Info("using executor relay", "network", cfg.NetworkName)
		} else {
			s.network = chain.NewSimulatedNetwork(cfg.NetworkName)
			s.logger.Warn("no executor relay configured, execution will be simulated",
				"network", cfg.NetworkName)
		}
	}

	s.timers = timers.New(s.logger)
	s.recorder = journal.NewRecorder(s.journal, s.logger)

	s.manager = session.NewManager(
		session.NewStore(),
		decoder.New(s.logger),
		s.timers,
		chain.KeyVerifier{},
		s.network,
		s.logger,
	).WithPolicy(session.Policy{
		SessionTimeout: cfg.SessionTimeout,
		MaxSessions:    cfg.MaxSessions,
	})

	s.hub = signaling.NewHub(s.manager, s.timers, cfg.Origins(), s.logger)

	// Everything observable fans out from manager events: frames to
	// clients, journal entries, metric updates.
	s.manager.WithSink(session.MultiSink{s.hub, s.recorder, &metrics.SessionSink{}})

	s.setupHealthChecks()

	// Gin setup
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupHealthChecks() {
	s.checks = health.NewRegistry()

	s.checks.Register("sessions", func(ctx context.Context) health.Status {
		st := health.OK("sessions")
		st.Detail = fmt.Sprintf("%d live", len(s.manager.List()))
		return st
	})

	s.checks.Register("timers", func(ctx context.Context) health.Status {
		st := health.OK("timers")
		st.Detail = fmt.Sprintf("%d armed", s.timers.Len())
		return st
	})

	if s.db != nil {
		s.checks.Register("journal", func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "journal", Healthy: false, Detail: err.Error()}
			}
			return health.OK("journal")
		})
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   session.CodeInternal,
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS: admin tooling and wallet web views call from other origins
	s.router.Use(security.CORSMiddleware(s.cfg.Origins()))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Signaling WebSocket. Everything after the upgrade speaks frames.
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.SessionParamMiddleware())

	// PUBLIC ROUTES: participants poll their session while connecting
	v1.GET("/sessions/:id", s.getSession)
	v1.GET("/sessions/:id/journal", s.sessionJournal)

	// COORDINATOR ROUTES (require the coordinator key)
	admin := v1.Group("")
	admin.Use(s.coordinatorAuth())
	{
		admin.POST("/sessions", s.createSession)
		admin.GET("/sessions", s.listSessions)
		admin.POST("/sessions/:id/transaction", s.injectTransaction)
		admin.POST("/sessions/:id/cancel", s.cancelSession)
		admin.GET("/journal", s.recentJournal)
	}
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	rep := s.checks.Check(ctx)
	status := http.StatusOK
	if !rep.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, rep)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"network", s.cfg.NetworkName,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start signaling hub housekeeping
	go s.hub.Run(runCtx)

	// Start expired-session sweep
	s.manager.StartCleanup(s.cfg.CleanupInterval)

	// Journal DB pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines; the hub tells every
	// connected client the service is going away (close code 1001).
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop the coordinator: no more events are emitted after this.
	s.manager.Shutdown()

	// Flush pending journal entries
	s.recorder.Close()

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}
