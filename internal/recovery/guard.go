package recovery

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Guard is the account-wide drawdown/consecutive-loss circuit breaker.
// It observes realized closes through Observe and halts every symbol
// (via the Service it is paired with) once a limit trips. Adapted from
// risk.Manager.checkRiskLimits/triggerCircuitBreaker, trimmed to the
// drawdown and consecutive-loss checks — the only two the simulator
// doesn't already enforce itself (cooldowns, notional floor, SL
// distance live in internal/simulator).
type Guard struct {
	mu sync.Mutex
	cfg GuardConfig

	peakEquity        float64
	consecutiveLosses int

	halted     bool
	haltReason string

	onHalt func(reason string)
}

// NewGuard builds a Guard seeded with the account's starting balance
// as its first peak-equity watermark.
func NewGuard(cfg GuardConfig, initialBalance float64) *Guard {
	return &Guard{cfg: cfg, peakEquity: initialBalance}
}

// SetOnHalt registers the callback fired the moment the guard trips.
// NewService registers its HaltAll here, so a trip halts every symbol
// the paired Service tracks.
func (g *Guard) SetOnHalt(fn func(reason string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onHalt = fn
}

// Observe records one closed position's realized PnL against the
// current equity, updating the peak-equity watermark and the
// consecutive-loss streak, and trips the breaker if either limit is
// exceeded.
func (g *Guard) Observe(equity, realizedPnL float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if equity > g.peakEquity {
		g.peakEquity = equity
	}

	if realizedPnL < 0 {
		g.consecutiveLosses++
	} else {
		g.consecutiveLosses = 0
	}

	if g.halted {
		return
	}

	if g.peakEquity > 0 {
		drawdown := (g.peakEquity - equity) / g.peakEquity
		if drawdown >= g.cfg.MaxDrawdownPct {
			g.trip("max drawdown exceeded")
			return
		}
	}

	if g.cfg.ConsecutiveLossLimit > 0 && g.consecutiveLosses >= g.cfg.ConsecutiveLossLimit {
		g.trip("consecutive loss limit reached")
	}
}

func (g *Guard) trip(reason string) {
	g.halted = true
	g.haltReason = reason
	log.Error().Str("reason", reason).Msg("trading halted by circuit breaker")
	if g.onHalt != nil {
		g.onHalt(reason)
	}
}

// Allow reports whether new signals may still be accepted.
func (g *Guard) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.halted
}

// State returns whether the guard is halted and, if so, why.
func (g *Guard) State() (halted bool, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted, g.haltReason
}

// Resume clears the halt. Only ever called from an explicit operator
// action (POST /trading/resume) — the guard itself never auto-resumes.
func (g *Guard) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.halted = false
	g.haltReason = ""
	g.consecutiveLosses = 0
	log.Info().Msg("trading resumed by operator")
}
