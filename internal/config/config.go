package config

import (
	"os"
	"time"

	"github.com/quantflow/futures-engine/internal/recovery"
	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/quantflow/futures-engine/internal/simulator"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Trading     TradingConfig     `yaml:"trading"`
	Binance     BinanceConfig     `yaml:"binance"`
	Signal      SignalConfig      `yaml:"signal"`
	Simulator   SimulatorConfig   `yaml:"simulator"`
	Settings    SettingsConfig    `yaml:"settings"`
	Database    DatabaseConfig    `yaml:"database"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Auth        AuthConfig        `yaml:"auth"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Recovery    RecoveryConfig    `yaml:"recovery"`
}

// TradingConfig configures the multi-symbol realtime pipeline: which
// symbols/timeframes C8 subscribes to and how deep each symbol's C1
// candle rings are.
type TradingConfig struct {
	Symbols          []string `yaml:"symbols"`          // e.g. ["BTCUSDT", "ETHUSDT"]
	PrimaryTimeframe string   `yaml:"primaryTimeframe"` // "1m" per spec
	Timeframes       []string `yaml:"timeframes"`       // ["1m", "15m", "1h"]
	Candle1mCapacity int      `yaml:"candle1mCapacity"` // >= 500
	CandleHTFCapacity int     `yaml:"candleHtfCapacity"` // >= 200, for 15m/1h
	WarmupCandles    int      `yaml:"warmupCandles"`    // historical candles fetched per timeframe at startup
	CandleRetentionDays int   `yaml:"candleRetentionDays"` // durable candle history kept before Cleanup prunes it
}

// BinanceConfig represents the upstream exchange client configuration.
type BinanceConfig struct {
	APIKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	Testnet   bool   `yaml:"testnet"`
}

// SignalConfig mirrors signal.GeneratorConfig and signal.ConfirmationConfig,
// as YAML-friendly fields the composition root converts at startup.
type SignalConfig struct {
	ADXHardFilter     float64       `yaml:"adxHardFilter"`
	NearBandTolerance float64       `yaml:"nearBandTolerance"`
	VWAPDistancePct   float64       `yaml:"vwapDistancePct"`
	StochOverboughtK  float64       `yaml:"stochOverboughtK"`
	VolumeSpikeThresh float64       `yaml:"volumeSpikeThreshold"`
	EntryOffsetPct    float64       `yaml:"entryOffsetPct"`
	MinConfirmations  int           `yaml:"minConfirmations"`
	MaxWait           time.Duration `yaml:"maxWait"`
}

// ToGeneratorConfig builds a signal.GeneratorConfig from config and the
// Settings values (risk_percent, rr_ratio). The composition root calls
// it once at startup; a later POST /settings change does not reach the
// running generator until the next start.
func (s SignalConfig) ToGeneratorConfig(settings SettingsConfig) signal.GeneratorConfig {
	cfg := signal.DefaultGeneratorConfig()
	cfg.ADXHardFilter = s.ADXHardFilter
	cfg.NearBandTolerance = s.NearBandTolerance
	cfg.VWAPDistancePct = s.VWAPDistancePct
	cfg.StochOverboughtK = s.StochOverboughtK
	cfg.VolumeSpikeThresh = s.VolumeSpikeThresh
	cfg.EntryOffsetPct = s.EntryOffsetPct
	cfg.RiskRewardRatio = settings.RRRatio
	cfg.RiskPercent = settings.RiskPercent
	return cfg
}

// ToConfirmationConfig builds a signal.ConfirmationConfig from config.
func (s SignalConfig) ToConfirmationConfig() signal.ConfirmationConfig {
	cfg := signal.DefaultConfirmationConfig()
	cfg.MinConfirmations = s.MinConfirmations
	cfg.MaxWait = s.MaxWait
	return cfg
}

// SimulatorConfig mirrors simulator.Config's structural tunables (the
// live-adjustable risk_percent/rr_ratio/max_positions/leverage knobs
// live in SettingsConfig instead, per §3's Settings entity).
type SimulatorConfig struct {
	InitialBalance   float64       `yaml:"initialBalance"`
	DefaultCooldown  time.Duration `yaml:"defaultCooldown"`
	ReversalCooldown time.Duration `yaml:"reversalCooldown"`
	PendingTTL       time.Duration `yaml:"pendingTTL"`
	AllowFlip        *bool         `yaml:"allowFlip"` // nil => true (default); explicit false is honored
	MinSLFraction    float64       `yaml:"minSLFraction"`
	MinNotional      float64       `yaml:"minNotional"`
	MaxLeverageUtil  float64       `yaml:"maxLeverageUtil"`
	BreakevenROE     float64       `yaml:"breakevenROE"`
	TrailingROE      float64       `yaml:"trailingROE"`
	TrailPct         float64       `yaml:"trailPct"`
}

// ToSimulatorConfig builds a simulator.Config from config and the
// live-tunable Settings.
func (sc SimulatorConfig) ToSimulatorConfig(settings SettingsConfig, initialBalance float64) simulator.Config {
	cfg := simulator.DefaultConfig()
	cfg.InitialBalance = initialBalance
	cfg.DefaultCooldown = sc.DefaultCooldown
	cfg.ReversalCooldown = sc.ReversalCooldown
	cfg.PendingTTL = sc.PendingTTL
	cfg.AllowFlip = sc.AllowFlip == nil || *sc.AllowFlip
	cfg.MinSLFraction = sc.MinSLFraction
	cfg.MinNotional = sc.MinNotional
	cfg.MaxLeverageUtil = sc.MaxLeverageUtil
	cfg.BreakevenROE = sc.BreakevenROE
	cfg.TrailingROE = sc.TrailingROE
	cfg.TrailPct = sc.TrailPct
	cfg.MaxPositions = settings.MaxPositions
	cfg.RiskPercent = settings.RiskPercent
	cfg.Leverage = settings.Leverage
	return cfg
}

// SettingsConfig is the YAML-sourced seed for the §3 Settings entity;
// the running value lives in the "config" table and is read and written
// through GET/POST /settings (see internal/api/handlers/settings.go).
// The simulator and generator read these values once at startup; a
// POST /settings change is persisted and served by GET /settings, and
// GET /market/symbols reads the token lists live, but the change does
// not reach the running simulator or generator until the next start.
type SettingsConfig struct {
	RiskPercent   float64  `yaml:"riskPercent"`   // 0.1..10
	RRRatio       float64  `yaml:"rrRatio"`       // 1..5
	MaxPositions  int      `yaml:"maxPositions"`  // 1..10
	Leverage      float64  `yaml:"leverage"`      // 1..20
	AutoExecute   bool     `yaml:"autoExecute"`
	EnabledTokens []string `yaml:"enabledTokens"`
	CustomTokens  []string `yaml:"customTokens"`
}

// DatabaseConfig represents the SQLite trading-data store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig represents the auxiliary operator/session store
// configuration, kept from the lineage to back the REST API's auth
// middleware.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int           `yaml:"maxConns"`
	MaxIdle         int           `yaml:"maxIdle"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwtSecret"`
	TokenExpiry        time.Duration `yaml:"tokenExpiry"`
	RefreshTokenExpiry time.Duration `yaml:"refreshTokenExpiry"`
}

// APIConfig represents API server configuration
type APIConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// MetricsConfig configures the Prometheus scrape surface (A6).
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RecoveryConfig configures the §7 StateRecoveryService's account-wide
// drawdown/consecutive-loss circuit breaker.
type RecoveryConfig struct {
	MaxDrawdownPct       float64       `yaml:"maxDrawdownPct"`
	ConsecutiveLossLimit int           `yaml:"consecutiveLossLimit"`
	HaltDuration         time.Duration `yaml:"haltDuration"`
}

// ToGuardConfig builds a recovery.GuardConfig from config.
func (r RecoveryConfig) ToGuardConfig() recovery.GuardConfig {
	cfg := recovery.DefaultGuardConfig()
	if r.MaxDrawdownPct > 0 {
		cfg.MaxDrawdownPct = r.MaxDrawdownPct
	}
	if r.ConsecutiveLossLimit > 0 {
		cfg.ConsecutiveLossLimit = r.ConsecutiveLossLimit
	}
	if r.HaltDuration > 0 {
		cfg.HaltDuration = r.HaltDuration
	}
	return cfg
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults applies default values to missing config fields
func applyDefaults(cfg *Config) {
	if len(cfg.Trading.Symbols) == 0 {
		cfg.Trading.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if cfg.Trading.PrimaryTimeframe == "" {
		cfg.Trading.PrimaryTimeframe = "1m"
	}
	if len(cfg.Trading.Timeframes) == 0 {
		cfg.Trading.Timeframes = []string{"1m", "15m", "1h"}
	}
	if cfg.Trading.Candle1mCapacity == 0 {
		cfg.Trading.Candle1mCapacity = 500
	}
	if cfg.Trading.CandleHTFCapacity == 0 {
		cfg.Trading.CandleHTFCapacity = 200
	}
	if cfg.Trading.WarmupCandles == 0 {
		cfg.Trading.WarmupCandles = 200
	}
	if cfg.Trading.CandleRetentionDays == 0 {
		cfg.Trading.CandleRetentionDays = 90
	}

	if cfg.Signal.ADXHardFilter == 0 {
		cfg.Signal.ADXHardFilter = 25
	}
	if cfg.Signal.NearBandTolerance == 0 {
		cfg.Signal.NearBandTolerance = 0.015
	}
	if cfg.Signal.VWAPDistancePct == 0 {
		cfg.Signal.VWAPDistancePct = 1.0
	}
	if cfg.Signal.StochOverboughtK == 0 {
		cfg.Signal.StochOverboughtK = 80
	}
	if cfg.Signal.VolumeSpikeThresh == 0 {
		cfg.Signal.VolumeSpikeThresh = 2.0
	}
	if cfg.Signal.EntryOffsetPct == 0 {
		cfg.Signal.EntryOffsetPct = 0.001
	}
	if cfg.Signal.MinConfirmations == 0 {
		cfg.Signal.MinConfirmations = 2
	}
	if cfg.Signal.MaxWait == 0 {
		cfg.Signal.MaxWait = 180 * time.Second
	}

	if cfg.Simulator.InitialBalance == 0 {
		cfg.Simulator.InitialBalance = 10000
	}
	if cfg.Simulator.DefaultCooldown == 0 {
		cfg.Simulator.DefaultCooldown = 300 * time.Second
	}
	if cfg.Simulator.ReversalCooldown == 0 {
		cfg.Simulator.ReversalCooldown = 600 * time.Second
	}
	if cfg.Simulator.PendingTTL == 0 {
		cfg.Simulator.PendingTTL = 45 * time.Minute
	}
	if cfg.Simulator.MinSLFraction == 0 {
		cfg.Simulator.MinSLFraction = 0.005
	}
	if cfg.Simulator.MinNotional == 0 {
		cfg.Simulator.MinNotional = 10
	}
	if cfg.Simulator.MaxLeverageUtil == 0 {
		cfg.Simulator.MaxLeverageUtil = 0.95
	}
	if cfg.Simulator.BreakevenROE == 0 {
		cfg.Simulator.BreakevenROE = 0.8
	}
	if cfg.Simulator.TrailingROE == 0 {
		cfg.Simulator.TrailingROE = 1.2
	}
	if cfg.Simulator.TrailPct == 0 {
		cfg.Simulator.TrailPct = 1.5
	}

	if cfg.Settings.RiskPercent == 0 {
		cfg.Settings.RiskPercent = 1.0
	}
	if cfg.Settings.RRRatio == 0 {
		cfg.Settings.RRRatio = 1.5
	}
	if cfg.Settings.MaxPositions == 0 {
		cfg.Settings.MaxPositions = 3
	}
	if cfg.Settings.Leverage == 0 {
		cfg.Settings.Leverage = 10
	}
	if len(cfg.Settings.EnabledTokens) == 0 {
		cfg.Settings.EnabledTokens = append([]string{}, cfg.Trading.Symbols...)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/trading.db"
	}

	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.User == "" {
		cfg.Postgres.User = "postgres"
	}
	if cfg.Postgres.Password == "" {
		cfg.Postgres.Password = "postgres"
	}
	if cfg.Postgres.DBName == "" {
		cfg.Postgres.DBName = "futures_engine"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = 25
	}
	if cfg.Postgres.MaxIdle == 0 {
		cfg.Postgres.MaxIdle = 5
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "change-me-in-production-to-a-secure-random-string"
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 15 * time.Minute
	}
	if cfg.Auth.RefreshTokenExpiry == 0 {
		cfg.Auth.RefreshTokenExpiry = 7 * 24 * time.Hour
	}

	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if len(cfg.API.CORSOrigins) == 0 {
		cfg.API.CORSOrigins = []string{"*"}
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Recovery.MaxDrawdownPct == 0 {
		cfg.Recovery.MaxDrawdownPct = 0.20
	}
	if cfg.Recovery.ConsecutiveLossLimit == 0 {
		cfg.Recovery.ConsecutiveLossLimit = 5
	}
	if cfg.Recovery.HaltDuration == 0 {
		cfg.Recovery.HaltDuration = 24 * time.Hour
	}
}

// Save saves configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
