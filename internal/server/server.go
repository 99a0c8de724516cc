// Package server sets up the HTTP server with all routes
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

	"github.com/peerswapd/peerswap/internal/analytics"
	"github.com/peerswapd/peerswap/internal/approval"
	"github.com/peerswapd/peerswap/internal/backend"
	"github.com/peerswapd/peerswap/internal/chain"
	"github.com/peerswapd/peerswap/internal/config"
	"github.com/peerswapd/peerswap/internal/dispute"
	"github.com/peerswapd/peerswap/internal/fees"
	"github.com/peerswapd/peerswap/internal/health"
	"github.com/peerswapd/peerswap/internal/identity"
	"github.com/peerswapd/peerswap/internal/idgen"
	"github.com/peerswapd/peerswap/internal/logging"
	"github.com/peerswapd/peerswap/internal/metrics"
	"github.com/peerswapd/peerswap/internal/ratelimit"
	"github.com/peerswapd/peerswap/internal/realtime"
	"github.com/peerswapd/peerswap/internal/security"
	"github.com/peerswapd/peerswap/internal/upload"
	"github.com/peerswapd/peerswap/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	backend      *backend.Client
	chain        *chain.Client
	identity     *identity.Resolver
	feeEngine    *fees.Engine
	disputes     *dispute.Orchestrator
	approvalFlow *approval.Flow
	uploads      *upload.Handler
	recorder     *analytics.Recorder
	store        analytics.Store
	realtimeHub  *realtime.Hub
	checks       *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory analytics
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChainClient sets a custom chain client (for testing)
func WithChainClient(c *chain.Client) Option {
	return func(s *Server) {
		s.chain = c
	}
}

// WithBackendClient sets a custom backend client (for testing)
func WithBackendClient(b *backend.Client) Option {
	return func(s *Server) {
		s.backend = b
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set chain/backend/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Analytics storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		store := analytics.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate analytics store", "error", err)
		}
		s.store = store
		s.logger.Info("using PostgreSQL analytics storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.store = analytics.NewMemoryStore()
		s.logger.Info("using in-memory analytics storage (data will not persist)")
	}
	s.recorder = analytics.NewRecorder(s.store)

	// Backend client (orders and users)
	if s.backend == nil {
		s.backend = backend.New(cfg.BackendAPIURL)
	}

	// Chain client (escrow accounts, fee schedule, ERC-20 allowances)
	if s.chain == nil {
		c, err := chain.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create chain client: %w", err)
		}
		s.chain = c
	}

	// Identity resolution with the fixed arbitrator
	s.identity = identity.New(s.backend, cfg.ArbitratorAddress)

	// Fee engine over the on-chain fee schedule account
	s.feeEngine = fees.NewEngine(s.chain, cfg.FeeAccountAddress)
	if cfg.FeeAccountAddress == "" {
		s.logger.Warn("no fee account configured, all quotes will report unknown")
	}

	// Dispute view orchestration
	s.disputes = dispute.New(s.chain, s.feeEngine, cfg.ArbitratorAddress, cfg.DisputeFeeRate)

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	// Token approval flow
	flow, err := approval.NewFlow(s.chain, approval.Config{
		Token:      toAddress(cfg.TokenContract),
		Spender:    toAddress(cfg.EscrowSpender),
		ChainID:    cfg.ChainID,
		PrivateKey: cfg.PrivateKey,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval flow: %w", err)
	}
	s.approvalFlow = flow
	if !cfg.SigningEnabled() {
		s.logger.Info("approval signing disabled (no PRIVATE_KEY set)")
	}

	// Profile image upload proxy
	s.uploads = upload.NewHandler(upload.New(cfg.StorageUploadURL), s.recorder)

	// Health checks
	s.checks = health.NewRegistry()
	s.checks.Register("rpc", health.PingChecker("rpc", s.chain))
	s.checks.Register("backend", health.PingChecker("backend", s.backend))
	if s.db != nil {
		s.checks.Register("db", health.DBChecker("db", s.db))
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
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
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		limiterCfg.RequestsPerSecond = float64(s.cfg.RateLimitRPS)
		limiterCfg.BurstSize = s.cfg.RateLimitRPS * 2
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
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
			requestID = idgen.Hex(16)
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
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time dispute/trade streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :address URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AddressParamMiddleware())

	// Dispute and settlement views
	v1.GET("/orders/:id/dispute-view", s.disputeViewHandler)
	v1.GET("/orders/:id/summary", s.orderSummaryHandler)
	v1.GET("/orders/:id/events", s.orderEventsHandler)

	// Fee quotes
	v1.GET("/fees/quote", s.feeQuoteHandler)

	// Token approvals
	v1.GET("/approvals/allowance", s.allowanceHandler)
	v1.POST("/approvals", s.approveHandler)

	// Profile image upload proxy
	s.uploads.RegisterRoutes(v1)

	// Analytics rollup
	v1.GET("/analytics/events", s.analyticsCountHandler)

	// Unmatched routes answer JSON like everything else
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Route not found",
		})
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
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
			"chain_id", s.cfg.ChainID,
			"arbitrator", s.cfg.ArbitratorAddress,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export DB pool stats while running
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
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

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close RPC connection
	if s.chain != nil {
		s.chain.Close()
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

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
