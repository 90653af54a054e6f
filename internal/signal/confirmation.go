package signal

import (
	"sync"
	"time"
)

// ConfirmationConfig tunes the whipsaw-suppression gate.
type ConfirmationConfig struct {
	MinConfirmations int           // default 2
	MaxWait          time.Duration // default 180s
}

// DefaultConfirmationConfig returns the gate's default tunables.
func DefaultConfirmationConfig() ConfirmationConfig {
	return ConfirmationConfig{
		MinConfirmations: 2,
		MaxWait:          180 * time.Second,
	}
}

type pendingEntry struct {
	direction Direction
	count     int
	firstSeen time.Time
	latest    *TradingSignal
}

// ConfirmationGate suppresses single-bar whipsaws by requiring a
// direction to repeat MinConfirmations times within MaxWait before
// releasing it to the lifecycle store.
type ConfirmationGate struct {
	cfg     ConfirmationConfig
	mu      sync.Mutex
	pending map[string]*pendingEntry
	now     func() time.Time
}

// NewConfirmationGate builds a gate with the supplied configuration. A
// zero-value cfg is replaced with DefaultConfirmationConfig.
func NewConfirmationGate(cfg ConfirmationConfig) *ConfirmationGate {
	if cfg.MinConfirmations == 0 {
		cfg = DefaultConfirmationConfig()
	}
	return &ConfirmationGate{
		cfg:     cfg,
		pending: make(map[string]*pendingEntry),
		now:     time.Now,
	}
}

// Process runs one incoming non-NEUTRAL signal through the gate. It
// returns the released signal and true when the direction has reached
// MinConfirmations, or (nil, false) while still accumulating. NEUTRAL
// signals are not processed — callers should filter those upstream.
func (g *ConfirmationGate) Process(sig *TradingSignal) (*TradingSignal, bool) {
	if sig.Direction == DirectionNeutral {
		return nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	entry, ok := g.pending[sig.Symbol]

	if ok && now.Sub(entry.firstSeen) > g.cfg.MaxWait {
		ok = false
	}

	if !ok {
		g.pending[sig.Symbol] = &pendingEntry{
			direction: sig.Direction,
			count:     1,
			firstSeen: now,
			latest:    sig,
		}
		return nil, false
	}

	if entry.direction == sig.Direction {
		entry.count++
		entry.latest = sig
		if entry.count >= g.cfg.MinConfirmations {
			released := entry.latest
			delete(g.pending, sig.Symbol)
			return released, true
		}
		return nil, false
	}

	g.pending[sig.Symbol] = &pendingEntry{
		direction: sig.Direction,
		count:     1,
		firstSeen: now,
		latest:    sig,
	}
	return nil, false
}

// Pending reports the current accumulation state for a symbol, for
// observability endpoints; ok is false if nothing is pending.
func (g *ConfirmationGate) Pending(symbol string) (direction Direction, count int, firstSeen time.Time, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, found := g.pending[symbol]
	if !found {
		return "", 0, time.Time{}, false
	}
	return entry.direction, entry.count, entry.firstSeen, true
}

// Reset clears any pending accumulation for a symbol.
func (g *ConfirmationGate) Reset(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, symbol)
}

// SetClock overrides the gate's time source, letting a deterministic
// replay (the backtest driver) advance MaxWait against historical
// candle timestamps instead of wall-clock time.
func (g *ConfirmationGate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}
