package api

import (
	"context"
	"net/http"
	"time"

	"github.com/quantflow/futures-engine/internal/api/handlers"
	"github.com/quantflow/futures-engine/internal/api/middleware"
	"github.com/quantflow/futures-engine/internal/auth"
	"github.com/quantflow/futures-engine/internal/metrics"
	"github.com/quantflow/futures-engine/internal/realtime"
	"github.com/quantflow/futures-engine/internal/recovery"
	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	EnableSwagger   bool
}

// DefaultServerConfig returns default configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORSOrigins:     []string{"*"},
		EnableSwagger:   true,
	}
}

// Server is the API server
type Server struct {
	config      *ServerConfig
	echo        *echo.Echo
	authService *auth.Service
	realtime    *realtime.Service
	startedAt   time.Time
}

// NewServer creates a new API server backed by the realtime engine,
// the signal lifecycle store, the auth subsystem, and the metrics
// registry — replacing the teacher's single `*orchestrator.Orchestrator`
// dependency now that the pipeline is multi-symbol and componentized.
func NewServer(config *ServerConfig, svc *realtime.Service, signals *signal.Store, settingsStore *handlers.SettingsStore, authService *auth.Service, reg *metrics.Registry, rec *recovery.Service, initialBalance float64, db *storage.SQLiteDB) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	server := &Server{
		config:      config,
		echo:        e,
		authService: authService,
		realtime:    svc,
		startedAt:   time.Now(),
	}

	server.setupMiddleware()
	server.setupRoutes(svc, signals, settingsStore, reg, rec, initialBalance, db)

	return server
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(echoMiddleware.Recover())

	// Logger middleware
	s.echo.Use(middleware.Logger())

	// CORS middleware
	s.echo.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: s.config.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Request ID middleware
	s.echo.Use(echoMiddleware.RequestID())

	// Gzip compression
	s.echo.Use(echoMiddleware.Gzip())
}

// setupRoutes configures API routes against the new component stack,
// following the teacher's public/protected/v1-group shape but
// replacing every orchestrator-backed handler with one backed by the
// realtime service, the signal store, or the settings overlay.
func (s *Server) setupRoutes(svc *realtime.Service, signals *signal.Store, settingsStore *handlers.SettingsStore, reg *metrics.Registry, rec *recovery.Service, initialBalance float64, db *storage.SQLiteDB) {
	authMiddleware := middleware.NewAuthMiddleware(s.authService)

	authHandler := handlers.NewAuthHandler(s.authService)
	marketHandler := handlers.NewMarketHandler(svc, settingsStore)
	settingsHandler := handlers.NewSettingsHandler(settingsStore)
	signalHandler := handlers.NewSignalHandler(signals)
	tradesHandler := handlers.NewTradesHandler(svc, initialBalance)
	systemHandler := handlers.NewSystemHandler(svc, db, s.startedAt)
	streamHandler := handlers.NewStreamHandler(svc)
	tradingHandler := handlers.NewTradingHandler(rec)

	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	s.echo.GET("/system/status", systemHandler.GetStatus)
	if reg != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{})))
	}

	// Market data and the websocket stream are public: the UI needs
	// them before a user has logged in.
	s.echo.GET("/market/history", marketHandler.GetHistory)
	s.echo.GET("/market/symbols", marketHandler.GetSymbols)
	s.echo.GET("/ws/stream/:symbol", streamHandler.Handle)

	v1 := s.echo.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.RefreshToken)
	authGroup.POST("/password-reset", authHandler.RequestPasswordReset)
	authGroup.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)

	authProtected := authGroup.Group("", authMiddleware.Authenticate)
	authProtected.POST("/logout", authHandler.Logout)
	authProtected.GET("/me", authHandler.GetMe)
	authProtected.POST("/change-password", authHandler.ChangePassword)

	protected := v1.Group("", authMiddleware.Authenticate)

	protected.GET("/settings", settingsHandler.GetSettings)
	protected.POST("/settings", settingsHandler.UpdateSettings)

	protected.GET("/signals/history", signalHandler.GetHistory)
	protected.GET("/signals/pending", signalHandler.GetPending)
	protected.GET("/signals/export", signalHandler.Export)
	protected.GET("/signals/order/:order_id", signalHandler.GetByOrderID)
	protected.GET("/signals/:id", signalHandler.GetByID)
	protected.POST("/signals/:id/execute", signalHandler.Execute)
	protected.POST("/signals/:id/mark-pending", signalHandler.MarkPending)
	protected.POST("/signals/:id/expire", signalHandler.Expire)
	protected.POST("/signals/expire-stale", signalHandler.ExpireStale)

	protected.GET("/trades/history", tradesHandler.GetHistory)
	protected.GET("/trades/performance", tradesHandler.GetPerformance)
	protected.GET("/trades/portfolio", tradesHandler.GetPortfolio)
	protected.POST("/trades/close/:id", tradesHandler.ClosePosition)
	protected.POST("/trades/reset", tradesHandler.ResetAccount)

	protected.GET("/positions", tradesHandler.GetPositions)

	protected.GET("/trading/state", tradingHandler.GetState)
	protected.POST("/trading/resume", tradingHandler.Resume)
}

// Start starts the server
func (s *Server) Start() error {
	log.Info().Str("port", s.config.Port).Msg("Starting API server")
	return s.echo.Start(s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if s.realtime != nil {
		s.realtime.Manager().Close()
	}

	log.Info().Msg("Shutting down API server")
	return s.echo.Shutdown(ctx)
}

// GetEcho returns the Echo instance
func (s *Server) GetEcho() *echo.Echo {
	return s.echo
}
