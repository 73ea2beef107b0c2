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
	"github.com/nats-io/nats.go"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/mbd888/riskgate/internal/alerts"
	"github.com/mbd888/riskgate/internal/auth"
	"github.com/mbd888/riskgate/internal/blacklist"
	"github.com/mbd888/riskgate/internal/config"
	"github.com/mbd888/riskgate/internal/dashboard"
	"github.com/mbd888/riskgate/internal/gate"
	"github.com/mbd888/riskgate/internal/health"
	"github.com/mbd888/riskgate/internal/ledger"
	"github.com/mbd888/riskgate/internal/logging"
	"github.com/mbd888/riskgate/internal/metrics"
	"github.com/mbd888/riskgate/internal/ratelimit"
	"github.com/mbd888/riskgate/internal/realtime"
	"github.com/mbd888/riskgate/internal/reconciliation"
	"github.com/mbd888/riskgate/internal/risk"
	"github.com/mbd888/riskgate/internal/security"
	"github.com/mbd888/riskgate/internal/strikes"
	"github.com/mbd888/riskgate/internal/validation"
	"github.com/mbd888/riskgate/internal/wallets"
	"github.com/mbd888/riskgate/migrations"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg     *config.Config
	version string

	ledgerStore  ledger.Store
	ledger       *ledger.Ledger
	blacklist    *blacklist.Index
	riskService  *risk.Service
	strikes      *strikes.Ledger
	wallets      *wallets.Service
	notifier     *alerts.Notifier
	gate         *gate.Gate
	blocked      gate.BlockedStore
	reconciler   *reconciliation.Runner
	reconcileTmr *reconciliation.Timer
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry

	db       *sql.DB       // nil if using in-memory
	redis    *redis.Client // nil without REDIS_URL
	natsConn *nats.Conn    // nil without NATS_URL

	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	healthy atomic.Bool
	ready   atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		version: "dev",
		logger:  logging.New(cfg.LogLevel, cfg.LogFormat),
		checks:  health.NewRegistry(3 * time.Second),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if err := s.setupStorage(ctx); err != nil {
		return nil, err
	}
	s.setupRedis(ctx)
	s.setupAlerts()
	s.setupServices()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// setupStorage opens Postgres when DATABASE_URL is set; otherwise every
// store is in-memory.
func (s *Server) setupStorage(ctx context.Context) error {
	if s.cfg.DatabaseURL == "" {
		s.ledgerStore = ledger.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
		return nil
	}

	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if s.cfg.AutoMigrate {
		if err := runMigrations(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		s.logger.Info("database migrations applied")
	}

	s.db = db
	s.ledgerStore = ledger.NewPostgresStore(db)
	s.checks.RegisterPing("postgres", db.PingContext)
	s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))
	return nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// setupRedis connects the optional Redis used by the blacklist cache and
// the shared rate limiter. An unreachable Redis is logged and skipped.
func (s *Server) setupRedis(ctx context.Context) {
	if s.cfg.RedisURL == "" {
		return
	}
	opts, err := redis.ParseURL(s.cfg.RedisURL)
	if err != nil {
		s.logger.Warn("invalid REDIS_URL, redis disabled", "error", err)
		return
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn("redis unreachable, redis disabled", "error", err)
		_ = rdb.Close()
		return
	}
	s.redis = rdb
	s.checks.RegisterPing("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	s.logger.Info("redis enabled", "addr", opts.Addr)
}

// setupAlerts builds the notifier with its durable store and publishers.
// The websocket hub always subscribes; NATS joins when configured.
func (s *Server) setupAlerts() {
	var store alerts.Store = alerts.NewMemoryStore()
	if s.db != nil {
		store = alerts.NewPostgresStore(s.db)
	}

	s.realtimeHub = realtime.NewHub(s.logger)
	s.notifier = alerts.NewNotifier(store, s.logger, s.realtimeHub)

	if s.cfg.NATSURL == "" {
		return
	}
	conn, err := alerts.ConnectNATS(alerts.NATSConfig{
		URL:            s.cfg.NATSURL,
		ConnectionName: "riskgate",
		SubjectPrefix:  s.cfg.NATSAlertSubject,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
	}, s.logger)
	if err != nil {
		s.logger.Warn("nats unavailable, alert fan-out disabled", "error", err)
		return
	}
	s.natsConn = conn
	s.notifier.AddPublisher(alerts.NewNATSPublisher(conn, s.cfg.NATSAlertSubject))
	s.checks.RegisterPing("nats", func(context.Context) error {
		if !conn.IsConnected() {
			return fmt.Errorf("nats %s", conn.Status())
		}
		return nil
	})
	s.logger.Info("nats alert fan-out enabled", "subject", s.cfg.NATSAlertSubject)
}

func (s *Server) setupServices() {
	var (
		blacklistStore blacklist.Store
		riskStore      risk.Store
		auditStore     wallets.AuditStore
		strikeStore    strikes.Store
	)
	if s.db != nil {
		blacklistStore = blacklist.NewPostgresStore(s.db)
		riskStore = risk.NewPostgresStore(s.db)
		auditStore = wallets.NewPostgresAuditStore(s.db)
		strikeStore = strikes.NewPostgresStore(s.db)
		s.blocked = gate.NewPostgresBlockedStore(s.db)
	} else {
		blacklistStore = blacklist.NewMemoryStore()
		riskStore = risk.NewMemoryStore()
		auditStore = wallets.NewMemoryAuditStore()
		strikeStore = strikes.NewMemoryStore(s.ledgerStore)
		s.blocked = gate.NewMemoryBlockedStore()
	}

	if s.redis != nil {
		blacklistStore = blacklist.NewCachedStore(
			blacklistStore,
			blacklist.NewRedisCache(s.redis, "riskgate:blacklist"),
			s.cfg.BlacklistTTL,
			s.logger,
		)
		s.logger.Info("blacklist cache enabled", "ttl", s.cfg.BlacklistTTL)
	}

	s.ledger = ledger.New(s.ledgerStore,
		ledger.WithRetry(s.cfg.CommitMaxAttempts, s.cfg.CommitRetryDelay),
		ledger.WithLogger(s.logger),
	)
	s.blacklist = blacklist.NewIndex(blacklistStore)
	s.riskService = risk.NewService(riskStore, s.ledgerStore, s.logger)
	s.wallets = wallets.NewService(s.ledgerStore, auditStore, s.notifier, s.logger)
	s.strikes = strikes.NewLedger(strikeStore,
		strikes.WithMaxWarnings(s.cfg.MaxWarnings),
		strikes.WithAlerts(s.notifier),
		strikes.WithAudit(s.wallets),
		strikes.WithRetry(s.cfg.CommitMaxAttempts, s.cfg.CommitRetryDelay),
		strikes.WithLogger(s.logger),
	)
	s.gate = gate.New(
		risk.NewEvaluator(s.blacklist, s.ledgerStore),
		s.ledger,
		s.strikes,
		s.blocked,
		gate.WithAssessments(s.riskService),
		gate.WithAlerts(s.notifier),
		gate.WithObservers(s.realtimeHub),
		gate.WithLogger(s.logger),
	)

	s.reconciler = reconciliation.NewRunner(s.ledger, s.ledgerStore, s.cfg.ReconcileWorkers, s.logger)
	if s.cfg.ReconcileInterval > 0 {
		s.reconcileTmr = reconciliation.NewTimer(s.reconciler, s.cfg.ReconcileInterval, s.logger)
	}

	s.logger.Info("transfer gate enabled",
		"max_warnings", s.cfg.MaxWarnings,
		"commit_attempts", s.cfg.CommitMaxAttempts,
	)
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
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	if s.redis != nil {
		s.router.Use(ratelimit.Middleware(ratelimit.NewDistributed(s.redis, rlCfg, s.rateLimiter, s.logger), "redis"))
	} else {
		s.router.Use(s.rateLimiter.Middleware())
	}

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
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
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	requireAdmin := auth.RequireAdmin(s.cfg.AdminSecret, s.cfg.IsDevelopment())

	// Alert and decision stream for operator consoles
	s.router.GET("/ws/alerts", requireAdmin, func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")

	ledgerHandler := ledger.NewHandler(s.ledger, s.logger)
	walletsHandler := wallets.NewHandler(s.wallets, s.logger)
	strikesHandler := strikes.NewHandler(s.strikes, s.logger)
	gateHandler := gate.NewHandler(s.gate, s.blocked, s.logger)

	ledgerHandler.RegisterRoutes(v1)
	walletsHandler.RegisterRoutes(v1)
	strikesHandler.RegisterRoutes(v1)
	gateHandler.RegisterRoutes(v1)

	admin := v1.Group("", requireAdmin)
	ledgerHandler.RegisterAdminRoutes(admin)
	walletsHandler.RegisterAdminRoutes(admin)
	strikesHandler.RegisterAdminRoutes(admin)
	gateHandler.RegisterAdminRoutes(admin)
	blacklist.NewHandler(s.blacklist, s.logger).RegisterAdminRoutes(admin)
	risk.NewHandler(s.riskService, s.logger).RegisterAdminRoutes(admin)
	alerts.NewHandler(s.notifier, s.logger).RegisterAdminRoutes(admin)
	reconciliation.NewHandler(s.reconciler, s.logger).RegisterAdminRoutes(admin)
	dashboard.NewHandler(s.ledgerStore, s.notifier, s.blocked, s.logger).RegisterAdminRoutes(admin)
	admin.GET("/admin/realtime", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse is returned by /health
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   s.version,
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
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
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	if s.reconcileTmr != nil {
		go s.reconcileTmr.Start(runCtx)
	}

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

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

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.reconcileTmr != nil {
		s.reconcileTmr.Stop()
		s.logger.Info("reconciliation timer stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.natsConn != nil {
		if err := s.natsConn.Drain(); err != nil {
			s.logger.Error("nats drain error", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
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

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
