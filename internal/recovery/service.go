package recovery

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/rs/zerolog/log"
)

// Service is the §7 StateRecoveryService: it persists one TradingState
// per symbol and reconciles it against the simulator's ledger at
// startup, per the spec's "if IN_POSITION, verify against the
// simulator's own ledger — if present, restore; if absent, drop to
// SCANNING" rule. A HALTED state is never auto-resumed by Recover.
type Service struct {
	db *storage.SQLiteDB

	mu     sync.RWMutex
	states map[string]Record

	guard *Guard
}

// NewService builds a Service backed by db, paired with an account-wide
// Guard (may be nil to disable the circuit breaker).
func NewService(db *storage.SQLiteDB, guard *Guard) *Service {
	s := &Service{db: db, states: make(map[string]Record), guard: guard}
	if guard != nil {
		guard.SetOnHalt(s.HaltAll)
	}
	return s
}

// Migrate creates the trading_state table if absent. Additive only,
// matching storage.SQLiteDB's own migration convention.
func Migrate(db *storage.SQLiteDB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS trading_state (
		symbol TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		halt_reason TEXT,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("migrate trading_state: %w", err)
	}
	return nil
}

// hasOpenOrPending reports whether the live simulator still carries a
// position for symbol, used to reconcile a persisted IN_POSITION row.
type hasOpenOrPending func(symbol string) bool

// Recover loads the persisted trading_state for every symbol and
// reconciles IN_POSITION rows against the simulator via isOpen. Rows
// with no persisted state default to SCANNING. HALTED rows are left
// untouched — per spec, resuming requires an explicit operator call to
// Resume.
func (s *Service) Recover(symbols []string, isOpen hasOpenOrPending) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, symbol := range symbols {
		rec, err := s.load(symbol)
		if err != nil {
			return fmt.Errorf("load trading_state for %s: %w", symbol, err)
		}
		if rec == nil {
			rec = &Record{Symbol: symbol, State: StateScanning, UpdatedAt: time.Now()}
		}

		switch rec.State {
		case StateInPosition:
			if isOpen(symbol) {
				log.Info().Str("symbol", symbol).Msg("recovered IN_POSITION state, position verified")
			} else {
				log.Warn().Str("symbol", symbol).Msg("persisted IN_POSITION has no matching live position, dropping to SCANNING")
				rec.State = StateScanning
			}
		case StateHalted:
			log.Warn().Str("symbol", symbol).Str("reason", rec.HaltReason).Msg("symbol recovered in HALTED state, awaiting operator resume")
			if s.guard != nil {
				s.guard.mu.Lock()
				s.guard.halted = true
				s.guard.haltReason = rec.HaltReason
				s.guard.mu.Unlock()
			}
		case "":
			rec.State = StateScanning
		}

		s.states[symbol] = *rec
		if err := s.persist(*rec); err != nil {
			return fmt.Errorf("persist recovered state for %s: %w", symbol, err)
		}
	}
	return nil
}

func (s *Service) load(symbol string) (*Record, error) {
	row := s.db.QueryRow(`SELECT symbol, state, halt_reason, updated_at FROM trading_state WHERE symbol = ?`, symbol)
	var rec Record
	var haltReason sql.NullString
	if err := row.Scan(&rec.Symbol, &rec.State, &haltReason, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.HaltReason = haltReason.String
	return &rec, nil
}

func (s *Service) persist(rec Record) error {
	_, err := s.db.Exec(`
		INSERT INTO trading_state (symbol, state, halt_reason, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET state = excluded.state, halt_reason = excluded.halt_reason, updated_at = excluded.updated_at`,
		rec.Symbol, string(rec.State), rec.HaltReason, time.Now())
	return err
}

// MarkInPosition transitions symbol to IN_POSITION, called when the
// simulator accepts a new PENDING position for the symbol
// (SymbolContext.onPrimaryClose).
func (s *Service) MarkInPosition(symbol string) {
	s.set(symbol, StateInPosition, "")
}

// MarkScanning transitions symbol back to SCANNING, called from the
// simulator's on-position-closed hook once no position remains open
// or pending for that symbol.
func (s *Service) MarkScanning(symbol string) {
	s.mu.RLock()
	cur := s.states[symbol]
	s.mu.RUnlock()
	if cur.State == StateHalted {
		return
	}
	s.set(symbol, StateScanning, "")
}

// HaltAll transitions every known symbol to HALTED with reason. Wired
// as the Guard's onHalt callback.
func (s *Service) HaltAll(reason string) {
	s.mu.Lock()
	symbols := make([]string, 0, len(s.states))
	for sym := range s.states {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	for _, sym := range symbols {
		s.set(sym, StateHalted, reason)
	}
}

// Resume clears HALTED back to SCANNING for every symbol and resumes
// the paired Guard. Only ever called from POST /trading/resume.
func (s *Service) Resume() {
	if s.guard != nil {
		s.guard.Resume()
	}
	s.mu.Lock()
	symbols := make([]string, 0, len(s.states))
	for sym, rec := range s.states {
		if rec.State == StateHalted {
			symbols = append(symbols, sym)
		}
	}
	s.mu.Unlock()

	for _, sym := range symbols {
		s.set(sym, StateScanning, "")
	}
}

func (s *Service) set(symbol string, state TradingState, haltReason string) {
	s.mu.Lock()
	rec := Record{Symbol: symbol, State: state, HaltReason: haltReason, UpdatedAt: time.Now()}
	s.states[symbol] = rec
	s.mu.Unlock()

	if err := s.persist(rec); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist trading_state transition")
	}
}

// State returns the current in-memory state for symbol.
func (s *Service) State(symbol string) Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[symbol]
}

// States returns a snapshot of every tracked symbol's state.
func (s *Service) States() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Allow reports whether symbol may accept a new signal: it must not be
// HALTED, and the paired Guard (if any) must not have tripped.
func (s *Service) Allow(symbol string) bool {
	if s.guard != nil && !s.guard.Allow() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[symbol].State != StateHalted
}

// Observe forwards a closed position's realized PnL to the paired
// Guard, a no-op if no Guard is configured.
func (s *Service) Observe(equity, realizedPnL float64) {
	if s.guard != nil {
		s.guard.Observe(equity, realizedPnL)
	}
}
