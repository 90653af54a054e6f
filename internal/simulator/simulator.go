package simulator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/rs/zerolog/log"
)

// symbolState tracks the at-most-one PENDING and at-most-one OPEN
// position per symbol (merge-on-fill keeps this invariant true even
// when multiple signals arrive for the same symbol).
type symbolState struct {
	pending      *Position
	open         *Position
	cooldownTill time.Time
}

// Simulator is a strict per-symbol state machine over a shared
// account, implementing leveraged isolated-margin paper futures.
// Mutations are guarded by a single mutex; callbacks are always
// invoked with the lock released, mirroring the unlock-before-callback
// pattern used to avoid deadlocking on simulator-owned re-entrant
// calls.
type Simulator struct {
	mu     sync.Mutex
	cfg    Config
	oracle PriceOracle

	account Account
	states  map[string]*symbolState
	history []*Position

	onFilled OrderFilledFunc
	onClosed PositionClosedFunc
}

// NewSimulator builds a Simulator with the given configuration and
// price oracle.
func NewSimulator(cfg Config, oracle PriceOracle) *Simulator {
	return &Simulator{
		cfg:     cfg,
		oracle:  oracle,
		account: Account{WalletBalance: cfg.InitialBalance},
		states:  make(map[string]*symbolState),
	}
}

// SetCallbacks registers the observer hooks invoked on fill and close.
func (s *Simulator) SetCallbacks(onFilled OrderFilledFunc, onClosed PositionClosedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFilled = onFilled
	s.onClosed = onClosed
}

// Balance returns the current wallet balance.
func (s *Simulator) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.WalletBalance
}

// Reset wipes every position, cooldown, and the trade history, and
// restores the wallet balance to initialBalance. Backs POST
// /trades/reset — an operator action, never called from market-data
// processing.
func (s *Simulator) Reset(initialBalance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = Account{WalletBalance: initialBalance}
	s.states = make(map[string]*symbolState)
	s.history = nil
}

func (s *Simulator) stateFor(symbol string) *symbolState {
	st, ok := s.states[symbol]
	if !ok {
		st = &symbolState{}
		s.states[symbol] = st
	}
	return st
}

// availableBalance is wallet balance plus unrealized PnL across open
// positions, minus margin already committed to open and pending
// positions.
func (s *Simulator) availableBalance() float64 {
	available := s.account.WalletBalance
	for symbol, st := range s.states {
		if st.open != nil {
			mark, ok := s.oracle.LatestPrice(symbol)
			if ok {
				available += st.open.UnrealizedPnL(mark)
			}
			available -= st.open.Margin
		}
		if st.pending != nil {
			available -= st.pending.Margin
		}
	}
	return available
}

func (s *Simulator) openOrPendingSymbolCount() int {
	n := 0
	for _, st := range s.states {
		if st.open != nil || st.pending != nil {
			n++
		}
	}
	return n
}

// OnNewSignal processes an incoming non-NEUTRAL trading signal per the
// gate/zombie-killer/merge/sizing pipeline. It returns the newly
// inserted PENDING position, or nil with a reason string when the
// signal was rejected or deferred (e.g. same-direction hold, cooldown,
// MAX_POSITIONS cap).
func (s *Simulator) OnNewSignal(sig *signal.TradingSignal, now time.Time) (*Position, string) {
	s.mu.Lock()

	symbol := sig.Symbol
	st := s.stateFor(symbol)
	side := sideFromDirection(sig.Direction)

	if now.Before(st.cooldownTill) {
		s.mu.Unlock()
		return nil, "cooldown_active"
	}

	alreadyHeld := st.pending != nil || st.open != nil

	if st.pending != nil {
		cancelled := st.pending
		cancelled.Status = StatusCancelled
		cancelled.CloseReason = ReasonNewSignalOverride
		cancelled.CloseTime = now
		s.history = append(s.history, cancelled)
		st.pending = nil
	}

	if st.open != nil {
		if st.open.Side == side {
			s.mu.Unlock()
			return nil, "same_direction_hold"
		}

		closing := st.open
		s.closePositionLocked(symbol, closing, s.currentMark(symbol, sig.Price), ReasonSignalReversal, now)
		st.open = nil
		st.cooldownTill = now.Add(s.cfg.ReversalCooldown)

		if !s.cfg.AllowFlip {
			s.mu.Unlock()
			return nil, "reversal_no_flip"
		}
	}

	if !alreadyHeld && s.openOrPendingSymbolCount() >= s.cfg.MaxPositions {
		s.mu.Unlock()
		return nil, "max_positions_reached"
	}

	pos, reason := s.buildPendingPosition(sig, now)
	if pos == nil {
		s.mu.Unlock()
		return nil, reason
	}

	st.pending = pos
	s.mu.Unlock()
	return pos, ""
}

func (s *Simulator) currentMark(symbol string, fallback float64) float64 {
	if mark, ok := s.oracle.LatestPrice(symbol); ok {
		return mark
	}
	return fallback
}

// buildPendingPosition implements §4.6.1 step 4-6's sizing, margin cap
// and liquidation-price math. Caller must hold s.mu.
func (s *Simulator) buildPendingPosition(sig *signal.TradingSignal, now time.Time) (*Position, string) {
	entry := sig.EntryPrice
	if entry <= 0 {
		return nil, "invalid_entry_price"
	}

	slFrac := math.Abs(entry-sig.StopLoss) / entry
	if slFrac < s.cfg.MinSLFraction {
		return nil, "sl_distance_too_tight"
	}

	riskAmount := s.account.WalletBalance * (s.cfg.RiskPercent / 100)
	notional := riskAmount / slFrac

	notionalCap := s.availableBalance() * s.cfg.Leverage * s.cfg.MaxLeverageUtil
	if notional > notionalCap {
		notional = notionalCap
	}
	if notional < s.cfg.MinNotional {
		return nil, "notional_below_minimum"
	}

	quantity := notional / entry
	margin := notional / s.cfg.Leverage

	side := sideFromDirection(sig.Direction)
	var liq float64
	if side == SideLong {
		liq = entry - margin/quantity
	} else {
		liq = entry + margin/quantity
	}

	pos := &Position{
		ID:               uuid.New().String(),
		Symbol:           sig.Symbol,
		Side:             side,
		Status:           StatusPending,
		SignalID:         sig.ID,
		EntryPrice:       entry,
		Quantity:         quantity,
		Leverage:         s.cfg.Leverage,
		Margin:           margin,
		Notional:         notional,
		LiquidationPrice: liq,
		StopLoss:         sig.StopLoss,
		TakeProfit:       sig.TPLevels.TP1,
		HighestPrice:     entry,
		LowestPrice:      entry,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return pos, ""
}

// Tick advances one symbol's state machine by one market event,
// processing PENDING orders (fill/TTL/merge) and then OPEN positions
// (watermarks, trailing ladder, exit priority) per §4.6.2. It never
// touches any other symbol's positions.
func (s *Simulator) Tick(symbol string, candle Candle) {
	s.mu.Lock()
	st, ok := s.states[symbol]
	if !ok {
		s.mu.Unlock()
		return
	}

	s.processPending(st, candle)
	s.processOpen(symbol, st, candle)
	s.mu.Unlock()
}

func (s *Simulator) processPending(st *symbolState, candle Candle) {
	pos := st.pending
	if pos == nil {
		return
	}

	if candle.Time.Sub(pos.CreatedAt) > s.cfg.PendingTTL {
		pos.Status = StatusCancelled
		pos.CloseReason = ReasonTTLExpired
		pos.CloseTime = candle.Time
		s.history = append(s.history, pos)
		st.pending = nil
		return
	}

	filled := false
	if pos.Side == SideLong {
		filled = candle.Low <= pos.EntryPrice
	} else {
		filled = candle.High >= pos.EntryPrice
	}
	if !filled {
		return
	}

	if st.open != nil && st.open.Side == pos.Side {
		s.mergeOnFill(st.open, pos, candle.Time)
		pos.Status = StatusClosed
		pos.CloseReason = ReasonMerged
		pos.CloseTime = candle.Time
		s.history = append(s.history, pos)
		st.pending = nil
		return
	}

	pos.Status = StatusOpen
	pos.OpenTime = candle.Time
	pos.UpdatedAt = candle.Time
	st.open = pos
	st.pending = nil

	cb := s.onFilled
	symbol, signalID, posID := pos.Symbol, pos.SignalID, pos.ID
	if cb != nil {
		s.mu.Unlock()
		cb(symbol, posID, signalID)
		s.mu.Lock()
	}
}

// mergeOnFill implements §4.6.2's weighted-average entry recompute.
func (s *Simulator) mergeOnFill(parent, order *Position, now time.Time) {
	newQty := parent.Quantity + order.Quantity
	newMargin := parent.Margin + order.Margin
	newEntry := (parent.EntryPrice*parent.Quantity + order.EntryPrice*order.Quantity) / newQty

	parent.Quantity = newQty
	parent.Margin = newMargin
	parent.EntryPrice = newEntry
	parent.Notional = parent.Notional + order.Notional

	if parent.Side == SideLong {
		parent.LiquidationPrice = newEntry - newMargin/newQty
	} else {
		parent.LiquidationPrice = newEntry + newMargin/newQty
	}
	parent.UpdatedAt = now
}

func (s *Simulator) processOpen(symbol string, st *symbolState, candle Candle) {
	pos := st.open
	if pos == nil {
		return
	}

	if candle.High > pos.HighestPrice {
		pos.HighestPrice = candle.High
	}
	if candle.Low < pos.LowestPrice {
		pos.LowestPrice = candle.Low
	}

	s.applyTrailingLadder(pos, candle)

	if reason, exitPrice, hit := s.checkExit(pos, candle); hit {
		s.closePositionLocked(symbol, pos, exitPrice, reason, candle.Time)
		st.open = nil
		st.cooldownTill = candle.Time.Add(s.cooldownFor(reason))
	}
}

func (s *Simulator) cooldownFor(reason CloseReason) time.Duration {
	if reason == ReasonSignalReversal {
		return s.cfg.ReversalCooldown
	}
	return s.cfg.DefaultCooldown
}

// applyTrailingLadder implements §4.6.2's ROE-keyed breakeven/trailing
// stop adjustments. Adjustments are monotone: they never regress the
// stop loss away from the position.
func (s *Simulator) applyTrailingLadder(pos *Position, candle Candle) {
	roe := pos.ROE(candle.Close)

	if roe > s.cfg.BreakevenROE && !pos.BreakevenLocked {
		if s.improvesSL(pos, pos.EntryPrice) {
			pos.StopLoss = pos.EntryPrice
		}
		pos.BreakevenLocked = true
	}

	if roe > s.cfg.TrailingROE {
		trail := s.cfg.TrailPct / 100
		var candidate float64
		if pos.Side == SideLong {
			candidate = pos.HighestPrice * (1 - trail)
		} else {
			candidate = pos.LowestPrice * (1 + trail)
		}
		if s.improvesSL(pos, candidate) {
			pos.StopLoss = candidate
			pos.TrailingActive = true
		}
	}
}

// improvesSL reports whether candidate moves the stop closer to (or
// past) the current price without regressing protection already
// locked in.
func (s *Simulator) improvesSL(pos *Position, candidate float64) bool {
	if pos.StopLoss == 0 {
		return true
	}
	if pos.Side == SideLong {
		return candidate > pos.StopLoss
	}
	return candidate < pos.StopLoss
}

// checkExit applies the strict exit-priority order from §4.6.2:
// liquidation, then stop loss, then take profit.
func (s *Simulator) checkExit(pos *Position, candle Candle) (CloseReason, float64, bool) {
	if pos.Side == SideLong {
		if candle.Low <= pos.LiquidationPrice {
			return ReasonLiquidation, pos.LiquidationPrice, true
		}
		if pos.StopLoss > 0 && candle.Low <= pos.StopLoss {
			return s.stopLossReason(pos), pos.StopLoss, true
		}
		if pos.TakeProfit > 0 && candle.High >= pos.TakeProfit {
			return ReasonTakeProfit, pos.TakeProfit, true
		}
		return "", 0, false
	}

	if candle.High >= pos.LiquidationPrice {
		return ReasonLiquidation, pos.LiquidationPrice, true
	}
	if pos.StopLoss > 0 && candle.High >= pos.StopLoss {
		return s.stopLossReason(pos), pos.StopLoss, true
	}
	if pos.TakeProfit > 0 && candle.Low <= pos.TakeProfit {
		return ReasonTakeProfit, pos.TakeProfit, true
	}
	return "", 0, false
}

func (s *Simulator) stopLossReason(pos *Position) CloseReason {
	if pos.TrailingActive {
		return ReasonTrailingStop
	}
	if pos.BreakevenLocked {
		return ReasonBreakeven
	}
	return ReasonStopLoss
}

// closePositionLocked realizes PnL, updates the account and history,
// then invokes the close callback with the lock released. Caller must
// hold s.mu on entry; it is released and re-acquired internally.
func (s *Simulator) closePositionLocked(symbol string, pos *Position, exitPrice float64, reason CloseReason, now time.Time) {
	pos.RealizedPnL = pos.UnrealizedPnL(exitPrice)
	pos.Status = StatusClosed
	pos.CloseReason = reason
	pos.CloseTime = now
	pos.UpdatedAt = now

	s.account.WalletBalance += pos.RealizedPnL
	s.history = append(s.history, pos)

	cb := s.onClosed
	posID, pnl := pos.ID, pos.RealizedPnL
	if cb != nil {
		s.mu.Unlock()
		cb(symbol, posID, reason, pnl)
		s.mu.Lock()
	}

	log.Debug().
		Str("symbol", symbol).
		Str("position_id", posID).
		Str("reason", string(reason)).
		Float64("realized_pnl", pnl).
		Msg("paper position closed")
}

// Position returns the current OPEN and PENDING positions for a
// symbol, or nil if none exist.
func (s *Simulator) Position(symbol string) (open, pending *Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	if !ok {
		return nil, nil
	}
	return st.open, st.pending
}

// PositionByID returns the position with the given id for symbol,
// checking the pending slot, the open slot, and finally the closed
// history (newest first). Returns nil if no match exists.
func (s *Simulator) PositionByID(symbol, id string) *Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[symbol]; ok {
		if st.pending != nil && st.pending.ID == id {
			return st.pending
		}
		if st.open != nil && st.open.ID == id {
			return st.open
		}
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Symbol == symbol && s.history[i].ID == id {
			return s.history[i]
		}
	}
	return nil
}

// History returns a snapshot of every closed/cancelled position
// recorded so far.
func (s *Simulator) History() []*Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Position, len(s.history))
	copy(out, s.history)
	return out
}

// OpenPositions returns every currently OPEN position across symbols.
func (s *Simulator) OpenPositions() []*Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Position
	for _, st := range s.states {
		if st.open != nil {
			out = append(out, st.open)
		}
	}
	return out
}

// CancelPending cancels a pending order directly (used for manual
// intervention / shutdown), returning an error if none exists.
func (s *Simulator) CancelPending(symbol string, reason CloseReason, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	if !ok || st.pending == nil {
		return fmt.Errorf("no pending position for %s", symbol)
	}
	st.pending.Status = StatusCancelled
	st.pending.CloseReason = reason
	st.pending.CloseTime = now
	s.history = append(s.history, st.pending)
	st.pending = nil
	return nil
}

// CloseOpen closes the symbol's OPEN position at the oracle's current
// mark (used for manual intervention, e.g. a `POST /trades/close`
// request), returning an error if no position is open.
func (s *Simulator) CloseOpen(symbol string, reason CloseReason, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	if !ok || st.open == nil {
		return fmt.Errorf("no open position for %s", symbol)
	}
	mark := s.currentMark(symbol, st.open.EntryPrice)
	pos := st.open
	st.open = nil
	st.cooldownTill = now.Add(s.cfg.DefaultCooldown)
	s.closePositionLocked(symbol, pos, mark, reason, now)
	return nil
}
