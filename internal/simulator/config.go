package simulator

import "time"

// Config holds every tunable the simulator's formulas depend on,
// grounded on paper_trading_service.py's defaults.
type Config struct {
	InitialBalance float64

	DefaultCooldown   time.Duration // 300s
	ReversalCooldown  time.Duration // 600s after SIGNAL_REVERSAL
	PendingTTL        time.Duration // 45min
	MaxPositions      int           // 3
	AllowFlip         bool          // true

	RiskPercent     float64 // percent of wallet balance risked per trade
	Leverage        float64
	MinSLFraction   float64 // 0.005
	MinNotional     float64 // 10
	MaxLeverageUtil float64 // 0.95 cap on available_balance*leverage

	BreakevenROE float64 // 0.8
	TrailingROE  float64 // 1.2
	TrailPct     float64 // 1.5 (percent)
}

// DefaultConfig returns the parameterization used throughout the
// simulator, matching the original service's constants.
func DefaultConfig() Config {
	return Config{
		InitialBalance:   10000,
		DefaultCooldown:  300 * time.Second,
		ReversalCooldown: 600 * time.Second,
		PendingTTL:       45 * time.Minute,
		MaxPositions:     3,
		AllowFlip:        true,
		RiskPercent:      1.0,
		Leverage:         10,
		MinSLFraction:    0.005,
		MinNotional:      10,
		MaxLeverageUtil:  0.95,
		BreakevenROE:     0.8,
		TrailingROE:      1.2,
		TrailPct:         1.5,
	}
}
