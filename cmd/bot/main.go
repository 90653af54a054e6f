package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/quantflow/futures-engine/internal/api"
	"github.com/quantflow/futures-engine/internal/api/handlers"
	"github.com/quantflow/futures-engine/internal/auth"
	"github.com/quantflow/futures-engine/internal/binance"
	"github.com/quantflow/futures-engine/internal/config"
	"github.com/quantflow/futures-engine/internal/metrics"
	"github.com/quantflow/futures-engine/internal/realtime"
	"github.com/quantflow/futures-engine/internal/recovery"
	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/quantflow/futures-engine/internal/simulator"
	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("Starting futures trading engine...")

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}

	// PostgreSQL backs the auxiliary auth/operator subsystem only; the
	// engine degrades to running without authentication if it is absent.
	pgCfg := &storage.PostgresConfig{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxConns:        cfg.Postgres.MaxConns,
		MaxIdle:         cfg.Postgres.MaxIdle,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}

	pgDB, err := storage.NewPostgresDB(pgCfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to PostgreSQL, authentication will not be available")
		pgDB = nil
	}
	if pgDB != nil {
		defer pgDB.Close()
	}

	var authService *auth.Service
	if pgDB != nil {
		userRepo := storage.NewUserRepository(pgDB)
		sessionRepo := storage.NewSessionRepository(pgDB)
		tradingAccountRepo := storage.NewTradingAccountRepository(pgDB)

		authCfg := &auth.Config{
			JWTSecret:          cfg.Auth.JWTSecret,
			TokenExpiry:        cfg.Auth.TokenExpiry,
			RefreshTokenExpiry: cfg.Auth.RefreshTokenExpiry,
		}
		authService = auth.NewService(authCfg, userRepo, sessionRepo, tradingAccountRepo)
		log.Info().Msg("Authentication service initialized")
	} else {
		log.Warn().Msg("Running without authentication - PostgreSQL not available")
	}

	db, err := storage.NewSQLiteDB(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := recovery.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate trading_state table")
	}

	lifecycle := signal.NewStore(db)
	candleRepo := storage.NewCandleRepository(db)
	positionStore := simulator.NewStore(db)
	settingsStore := handlers.NewSettingsStore(db, cfg.Settings)
	settings := settingsStore.Current()

	guard := recovery.NewGuard(cfg.Recovery.ToGuardConfig(), cfg.Simulator.InitialBalance)
	recoverySvc := recovery.NewService(db, guard)

	binanceClient := binance.NewClient(&binance.Config{
		APIKey:    cfg.Binance.APIKey,
		SecretKey: cfg.Binance.SecretKey,
		Testnet:   cfg.Binance.Testnet,
		Timeout:   30 * time.Second,
	})

	if err := binanceClient.Ping(); err != nil {
		log.Warn().Err(err).Msg("Binance connection test failed")
	} else {
		log.Info().Msg("Binance connection successful")
	}

	genCfg := cfg.Signal.ToGeneratorConfig(settings)
	gateCfg := cfg.Signal.ToConfirmationConfig()
	simCfg := cfg.Simulator.ToSimulatorConfig(settings, cfg.Simulator.InitialBalance)

	svc := realtime.NewService(cfg.Trading.Symbols, cfg.Trading.Candle1mCapacity, genCfg, gateCfg, simCfg, lifecycle, recoverySvc, candleRepo, positionStore)

	reg := metrics.New()
	if cfg.Metrics.Enabled {
		svc.SetMetrics(reg)
	} else {
		reg = nil
	}

	// Reconcile the persisted trading_state against the simulator's own
	// ledger before the engine starts consuming live klines, so a
	// process restart can never silently forget an open position or a
	// halted symbol.
	if err := recoverySvc.Recover(cfg.Trading.Symbols, func(symbol string) bool {
		open, pending := svc.Simulator().Position(symbol)
		return open != nil || pending != nil
	}); err != nil {
		log.Error().Err(err).Msg("trading state recovery failed")
	}

	if err := svc.Warmup(binanceClient, cfg.Trading.WarmupCandles); err != nil {
		log.Warn().Err(err).Msg("warm-up had partial failures")
	}

	apiCfg := &api.ServerConfig{
		Port:         cfg.API.Port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		CORSOrigins:  cfg.API.CORSOrigins,
	}
	server := api.NewServer(apiCfg, svc, lifecycle, settingsStore, authService, reg, recoverySvc, cfg.Simulator.InitialBalance, db)

	ctx, cancel := context.WithCancel(context.Background())

	wsOpts := []binance.WSClientOption{
		binance.WithWSTestnet(cfg.Binance.Testnet),
		binance.WithReconnectWait(3 * time.Second),
		binance.WithPingInterval(30 * time.Second),
		binance.WithMaxReconnects(20),
	}

	go func() {
		if err := svc.Run(ctx, binanceClient, wsOpts...); err != nil {
			log.Error().Err(err).Msg("realtime service stopped")
		}
	}()

	if reg != nil {
		go pollMetrics(ctx, reg, svc)
	}

	go pruneCandles(ctx, db, cfg.Trading.CandleRetentionDays)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	log.Info().
		Strs("symbols", cfg.Trading.Symbols).
		Str("apiPort", cfg.API.Port).
		Msg("futures trading engine started")

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()

	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("API server shutdown error")
	}

	log.Info().Msg("futures trading engine stopped")
}

// pruneCandles runs the candles-table retention sweep once a day so the
// durable history Insert/InsertBatch builds up never grows unbounded.
func pruneCandles(ctx context.Context, db *storage.SQLiteDB, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.Cleanup(retentionDays); err != nil {
				log.Error().Err(err).Msg("candle retention cleanup failed")
			}
		}
	}
}

// pollMetrics samples the event bus and websocket manager every second
// to drive the gauges that have no natural counter call site.
func pollMetrics(ctx context.Context, reg *metrics.Registry, svc *realtime.Service) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last metrics.PollSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			busStats := svc.Bus().Stats()
			var realized float64
			for _, pos := range svc.Simulator().History() {
				realized += pos.RealizedPnL
			}
			reg.Apply(metrics.PollSnapshot{
				EventsPublished:  busStats.EventsPublished,
				EventsConsumed:   busStats.EventsConsumed,
				EventsDropped:    busStats.EventsDropped,
				QueueSize:        busStats.QueueSize,
				ClientsConnected: svc.Manager().TotalClients(),
				WalletBalance:    svc.Simulator().Balance(),
				RealizedPnL:      realized,
			}, &last)
		}
	}
}
