// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
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

	"github.com/privilegehq/satsgate/internal/access"
	"github.com/privilegehq/satsgate/internal/catalog"
	"github.com/privilegehq/satsgate/internal/config"
	"github.com/privilegehq/satsgate/internal/health"
	"github.com/privilegehq/satsgate/internal/indexer"
	"github.com/privilegehq/satsgate/internal/logging"
	"github.com/privilegehq/satsgate/internal/metrics"
	"github.com/privilegehq/satsgate/internal/proof"
	"github.com/privilegehq/satsgate/internal/purchase"
	"github.com/privilegehq/satsgate/internal/realtime"
	"github.com/privilegehq/satsgate/internal/settlement"
	"github.com/privilegehq/satsgate/internal/signer"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	indexer      *indexer.Client
	proofs       proof.Store
	catalog      catalog.Store
	signer       settlement.Signer
	signerClient *signer.Client // non-nil when the default HTTP signer is used
	dispatcher   *settlement.Dispatcher
	verifier     *access.Verifier
	purchases    *purchase.Service
	realtimeHub  *realtime.Hub
	healthReg    *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc

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

// WithSigner sets a custom signing agent client (for testing)
func WithSigner(sg settlement.Signer) Option {
	return func(s *Server) {
		s.signer = sg
	}
}

// WithCatalog sets a custom resource catalog
func WithCatalog(store catalog.Store) Option {
	return func(s *Server) {
		s.catalog = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set signer/logger/catalog)
	for _, opt := range opts {
		opt(s)
	}

	// Proof storage (Postgres if DATABASE_URL set, otherwise in-memory)
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

		s.db = db
		s.proofs = proof.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL proof storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.proofs = proof.NewMemoryStore()
		s.logger.Info("using in-memory proof storage (data will not persist)")
	}

	if s.catalog == nil {
		s.catalog = catalog.NewMemoryStore(catalog.Seed()...)
	}

	// Ledger indexer client
	s.indexer = indexer.New(cfg.IndexerURL,
		indexer.WithRetry(cfg.IndexerAttempts, cfg.IndexerInterval),
		indexer.WithLogger(s.logger),
	)

	// Signing agent
	if s.signer == nil {
		if cfg.SignerURL != "" {
			callbackURL := cfg.CallbackBaseURL + "/v1/signer/callback"
			sc := signer.New(cfg.SignerURL, callbackURL, cfg.Network, signer.WithLogger(s.logger))
			s.signerClient = sc
			s.signer = sc
			s.logger.Info("signing agent configured", "url", cfg.SignerURL)
		} else {
			s.signer = unconfiguredSigner{}
			s.logger.Warn("no signing agent configured, purchases will fail")
		}
	}

	// Settlement pipeline
	poller := settlement.NewPoller(s.indexer,
		settlement.WithWait(cfg.PollMaxWait, cfg.PollInterval),
		settlement.WithPollerLogger(s.logger),
	)
	s.dispatcher = settlement.NewDispatcher(s.signer, poller, s.proofs,
		settlement.WithTimeout(cfg.DispatchTimeout),
		settlement.WithDispatcherLogger(s.logger),
	)

	// Access verification
	s.verifier = access.NewVerifier(s.indexer, s.proofs, cfg.TreasuryAddress,
		access.WithLogger(s.logger),
	)

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	// Purchase surface
	s.purchases = purchase.NewService(s.dispatcher, s.verifier, s.proofs, s.catalog,
		cfg.TreasuryAddress,
		purchase.WithEventSink(realtime.NewSink(s.realtimeHub)),
		purchase.WithLogger(s.logger),
	)

	// Health checkers
	s.healthReg = health.NewRegistry()
	s.healthReg.Register("indexer", health.Indexer(cfg.IndexerURL, nil))
	if s.db != nil {
		s.healthReg.Register("database", health.Database(s.db))
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

// unconfiguredSigner fails every submission synchronously.
type unconfiguredSigner struct{}

func (unconfiguredSigner) Submit(context.Context, settlement.PaymentIntent, settlement.Callbacks) error {
	return errors.New("no signing agent configured")
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

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time settlement events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	v1 := s.router.Group("/v1")

	// Catalog (public reads)
	v1.GET("/resources", s.listResources)
	v1.GET("/resources/:resourceID", s.getResource)

	// Purchases
	v1.POST("/purchases", s.createPurchase)

	// Access
	v1.GET("/access/:resourceID", s.checkAccess)
	v1.POST("/access/verify", s.verifyAccess)

	// Signing agent callback webhook
	if s.signerClient != nil {
		v1.POST("/signer/callback", s.signerClient.Router().Handle)
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      90 * time.Second, // purchases block until settlement
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"network", s.cfg.Network,
			"treasury", s.cfg.TreasuryAddress,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

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

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

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

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
