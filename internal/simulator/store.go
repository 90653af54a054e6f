package simulator

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/quantflow/futures-engine/internal/storage"
)

// Store persists Position snapshots to the paper_positions table.
// Schema migration lives in storage.SQLiteDB, following its permissive
// "CREATE TABLE IF NOT EXISTS" convention; Store itself does its own
// SQL against *storage.SQLiteDB rather than going through a
// storage-package repository, the same split signal.Store uses to
// keep domain persistence out of the storage package.
type Store struct {
	db *storage.SQLiteDB
}

// NewStore builds a Store backed by the supplied database.
func NewStore(db *storage.SQLiteDB) *Store {
	return &Store{db: db}
}

// Save upserts a position snapshot, keyed by its ID. Call it whenever
// a position is created, filled, or closed so paper_positions always
// reflects the simulator's current state.
func (s *Store) Save(pos *Position) error {
	if pos == nil {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT INTO paper_positions (
			id, symbol, side, status, entry_price, quantity, leverage, margin,
			notional, stop_loss, take_profit, liquidation_price, highest_price,
			lowest_price, realized_pnl, close_reason, signal_id, open_time,
			close_time, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			quantity = excluded.quantity,
			margin = excluded.margin,
			notional = excluded.notional,
			stop_loss = excluded.stop_loss,
			take_profit = excluded.take_profit,
			highest_price = excluded.highest_price,
			lowest_price = excluded.lowest_price,
			realized_pnl = excluded.realized_pnl,
			close_reason = excluded.close_reason,
			close_time = excluded.close_time,
			updated_at = excluded.updated_at
	`,
		pos.ID, pos.Symbol, string(pos.Side), string(pos.Status), pos.EntryPrice,
		pos.Quantity, pos.Leverage, pos.Margin, pos.Notional, pos.StopLoss,
		pos.TakeProfit, pos.LiquidationPrice, pos.HighestPrice, pos.LowestPrice,
		pos.RealizedPnL, string(pos.CloseReason), pos.SignalID, pos.OpenTime,
		nullTime(pos.CloseTime), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// GetByID returns the persisted position with the given id, or nil if
// not found.
func (s *Store) GetByID(id string) (*Position, error) {
	row := s.db.QueryRow(`
		SELECT id, symbol, side, status, entry_price, quantity, leverage, margin,
		       notional, stop_loss, take_profit, liquidation_price, highest_price,
		       lowest_price, realized_pnl, close_reason, signal_id, open_time, close_time
		FROM paper_positions WHERE id = ?`, id)
	return scanPosition(row)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(sc scanner) (*Position, error) {
	var (
		pos                  Position
		side, status, reason sql.NullString
		closeTime            sql.NullTime
	)
	err := sc.Scan(
		&pos.ID, &pos.Symbol, &side, &status, &pos.EntryPrice, &pos.Quantity,
		&pos.Leverage, &pos.Margin, &pos.Notional, &pos.StopLoss, &pos.TakeProfit,
		&pos.LiquidationPrice, &pos.HighestPrice, &pos.LowestPrice, &pos.RealizedPnL,
		&reason, &pos.SignalID, &pos.OpenTime, &closeTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pos.Side = Side(side.String)
	pos.Status = Status(status.String)
	pos.CloseReason = CloseReason(reason.String)
	if closeTime.Valid {
		pos.CloseTime = closeTime.Time
	}
	return &pos, nil
}
