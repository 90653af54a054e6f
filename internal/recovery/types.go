// Package recovery implements the §7 StateRecoveryService: a
// persisted per-symbol trading state (SCANNING / IN_POSITION / HALTED)
// reconciled against the simulator's own ledger at startup, plus the
// account-wide drawdown circuit breaker that drives a symbol into
// HALTED. Grounded on the lineage's internal/risk.Manager circuit
// breaker (consecutive-loss/drawdown tracking, halt/resume) for the
// halt trigger, and internal/storage.SQLiteDB's additive migration +
// hand-written-scan repository style for persistence.
package recovery

import "time"

// TradingState is the persisted state machine driving whether a
// symbol is eligible for new signals.
type TradingState string

const (
	// StateScanning is the default: the symbol has no open position
	// and is eligible for new signals.
	StateScanning TradingState = "SCANNING"
	// StateInPosition means the simulator has an OPEN or PENDING
	// position for this symbol.
	StateInPosition TradingState = "IN_POSITION"
	// StateHalted means trading for this symbol (or, when triggered
	// by the account-wide guard, every symbol) is suspended pending
	// explicit operator action. Never auto-resumed.
	StateHalted TradingState = "HALTED"
)

// Record is one symbol's persisted trading_state row.
type Record struct {
	Symbol     string
	State      TradingState
	HaltReason string
	UpdatedAt  time.Time
}

// GuardConfig configures the account-wide drawdown/consecutive-loss
// circuit breaker. Mirrors the subset of the lineage's risk.RiskConfig
// that is still meaningful once the simulator owns position sizing:
// the R/R, trading-hours and volatility-adjustment knobs there have no
// SPEC_FULL.md home and are dropped (see DESIGN.md).
type GuardConfig struct {
	MaxDrawdownPct       float64       // halt once equity falls this fraction below its peak
	ConsecutiveLossLimit int           // halt after this many consecutive losing closes
	HaltDuration         time.Duration // informational only; HALTED never auto-resumes per spec
}

// DefaultGuardConfig mirrors risk.DefaultRiskConfig's drawdown/circuit
// breaker defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxDrawdownPct:       0.20,
		ConsecutiveLossLimit: 5,
		HaltDuration:         24 * time.Hour,
	}
}
