package signal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantflow/futures-engine/internal/storage"
)

// Store persists TradingSignal lifecycle transitions and exposes a
// paginated query surface. Schema migration lives in storage.SQLiteDB,
// following its permissive "CREATE TABLE IF NOT EXISTS" convention.
type Store struct {
	db *storage.SQLiteDB
}

// NewStore builds a Store backed by the supplied database.
func NewStore(db *storage.SQLiteDB) *Store {
	return &Store{db: db}
}

// Register persists a new signal, assigning an id if missing and
// forcing status to GENERATED.
func (s *Store) Register(sig *TradingSignal) error {
	if sig.ID == "" {
		sig.ID = NewTradingSignal().ID
	}
	sig.Status = StatusGenerated

	indicatorsJSON, err := json.Marshal(sig.Indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}
	reasonsJSON, err := json.Marshal(sig.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO signals (
			id, symbol, direction, confidence, price, entry_price, stop_loss,
			tp1, tp2, tp3, position_size, risk_reward_ratio, indicators,
			reasons, status, generated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.Symbol, string(sig.Direction), sig.Confidence, sig.Price,
		sig.EntryPrice, sig.StopLoss, sig.TPLevels.TP1, sig.TPLevels.TP2,
		sig.TPLevels.TP3, sig.PositionSize, sig.RiskRewardRatio,
		string(indicatorsJSON), string(reasonsJSON), string(sig.Status),
		sig.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("register signal: %w", err)
	}
	return nil
}

// transition applies fn to the actionable signal identified by id,
// no-op if the signal is missing or already terminal (idempotent).
func (s *Store) transition(id string, fn func(sig *TradingSignal) error) error {
	sig, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if sig == nil || !sig.Status.actionable() {
		return nil
	}
	return fn(sig)
}

// MarkPending transitions a GENERATED signal to PENDING.
func (s *Store) MarkPending(id string) error {
	return s.transition(id, func(sig *TradingSignal) error {
		now := time.Now()
		_, err := s.db.Exec(`UPDATE signals SET status = ?, pending_at = ? WHERE id = ?`,
			string(StatusPending), now, id)
		return err
	})
}

// MarkExecuted transitions an actionable signal to EXECUTED, recording
// the order id that filled it.
func (s *Store) MarkExecuted(id, orderID string) error {
	return s.transition(id, func(sig *TradingSignal) error {
		now := time.Now()
		_, err := s.db.Exec(`UPDATE signals SET status = ?, executed_at = ?, order_id = ? WHERE id = ?`,
			string(StatusExecuted), now, orderID, id)
		return err
	})
}

// MarkExpired transitions an actionable signal to EXPIRED.
func (s *Store) MarkExpired(id string) error {
	return s.transition(id, func(sig *TradingSignal) error {
		now := time.Now()
		_, err := s.db.Exec(`UPDATE signals SET status = ?, expired_at = ? WHERE id = ?`,
			string(StatusExpired), now, id)
		return err
	})
}

// ExpireStale bulk-transitions actionable signals older than ttl to
// EXPIRED and returns the count affected.
func (s *Store) ExpireStale(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	res, err := s.db.Exec(`
		UPDATE signals SET status = ?, expired_at = ?
		WHERE status IN (?, ?) AND generated_at < ?`,
		string(StatusExpired), time.Now(), string(StatusGenerated), string(StatusPending), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("expire stale signals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// GetByID returns the signal with the given id, or nil if not found.
func (s *Store) GetByID(id string) (*TradingSignal, error) {
	row := s.db.QueryRow(`
		SELECT id, symbol, direction, confidence, price, entry_price, stop_loss,
		       tp1, tp2, tp3, position_size, risk_reward_ratio, indicators,
		       reasons, status, generated_at, pending_at, executed_at, expired_at,
		       order_id, outcome
		FROM signals WHERE id = ?`, id)
	return scanSignal(row)
}

// GetByOrderID returns the signal that was executed with the given
// order id, or nil if none matches.
func (s *Store) GetByOrderID(orderID string) (*TradingSignal, error) {
	row := s.db.QueryRow(`
		SELECT id, symbol, direction, confidence, price, entry_price, stop_loss,
		       tp1, tp2, tp3, position_size, risk_reward_ratio, indicators,
		       reasons, status, generated_at, pending_at, executed_at, expired_at,
		       order_id, outcome
		FROM signals WHERE order_id = ?`, orderID)
	return scanSignal(row)
}

// QueryFilter narrows a paginated history query.
type QueryFilter struct {
	Symbol        string
	Direction     Direction
	Status        Status
	MinConfidence float64
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// Query returns a page of signal history matching the filter, newest
// first.
func (s *Store) Query(f QueryFilter) ([]*TradingSignal, error) {
	where := "WHERE 1=1"
	args := []interface{}{}

	if f.Symbol != "" {
		where += " AND symbol = ?"
		args = append(args, f.Symbol)
	}
	if f.Direction != "" {
		where += " AND direction = ?"
		args = append(args, string(f.Direction))
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.MinConfidence > 0 {
		where += " AND confidence >= ?"
		args = append(args, f.MinConfidence)
	}
	if f.From != nil {
		where += " AND generated_at >= ?"
		args = append(args, *f.From)
	}
	if f.To != nil {
		where += " AND generated_at <= ?"
		args = append(args, *f.To)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, symbol, direction, confidence, price, entry_price, stop_loss,
		       tp1, tp2, tp3, position_size, risk_reward_ratio, indicators,
		       reasons, status, generated_at, pending_at, executed_at, expired_at,
		       order_id, outcome
		FROM signals %s ORDER BY generated_at DESC LIMIT ? OFFSET ?`, where)
	args = append(args, limit, f.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []*TradingSignal
	for rows.Next() {
		sig, err := scanSignalRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row *sql.Row) (*TradingSignal, error) {
	sig, err := scanSignalGeneric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sig, err
}

func scanSignalRows(rows *sql.Rows) (*TradingSignal, error) {
	return scanSignalGeneric(rows)
}

func scanSignalGeneric(sc scanner) (*TradingSignal, error) {
	var (
		sig                                     TradingSignal
		direction, status                       string
		indicatorsJSON, reasonsJSON             sql.NullString
		pendingAt, executedAt, expiredAt        sql.NullTime
		orderID, outcome                        sql.NullString
	)

	err := sc.Scan(
		&sig.ID, &sig.Symbol, &direction, &sig.Confidence, &sig.Price,
		&sig.EntryPrice, &sig.StopLoss, &sig.TPLevels.TP1, &sig.TPLevels.TP2,
		&sig.TPLevels.TP3, &sig.PositionSize, &sig.RiskRewardRatio,
		&indicatorsJSON, &reasonsJSON, &status, &sig.GeneratedAt,
		&pendingAt, &executedAt, &expiredAt, &orderID, &outcome,
	)
	if err != nil {
		return nil, err
	}

	sig.Direction = Direction(direction)
	sig.Status = Status(status)
	sig.OrderID = orderID.String
	sig.Outcome = outcome.String

	if pendingAt.Valid {
		t := pendingAt.Time
		sig.PendingAt = &t
	}
	if executedAt.Valid {
		t := executedAt.Time
		sig.ExecutedAt = &t
	}
	if expiredAt.Valid {
		t := expiredAt.Time
		sig.ExpiredAt = &t
	}

	sig.Indicators = make(map[string]float64)
	if indicatorsJSON.Valid && indicatorsJSON.String != "" {
		_ = json.Unmarshal([]byte(indicatorsJSON.String), &sig.Indicators)
	}
	sig.Reasons = nil
	if reasonsJSON.Valid && reasonsJSON.String != "" {
		_ = json.Unmarshal([]byte(reasonsJSON.String), &sig.Reasons)
	}

	return &sig, nil
}
