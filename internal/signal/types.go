package signal

import (
	"time"

	"github.com/google/uuid"
)

// Direction is the trade direction a TradingSignal recommends.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// Status is a TradingSignal's position in the lifecycle DAG.
// GENERATED -> PENDING -> EXECUTED
//                      \-> EXPIRED
// There is no transition back to GENERATED from any other state.
type Status string

const (
	StatusGenerated Status = "GENERATED"
	StatusPending   Status = "PENDING"
	StatusExecuted  Status = "EXECUTED"
	StatusExpired   Status = "EXPIRED"
)

// actionable reports whether a signal in this status can still transition.
func (s Status) actionable() bool {
	return s == StatusGenerated || s == StatusPending
}

// TPLevels holds the three take-profit targets derived from rr_ratio.
type TPLevels struct {
	TP1 float64 `json:"tp1"`
	TP2 float64 `json:"tp2"`
	TP3 float64 `json:"tp3"`
}

// TradingSignal is the output of the Signal Generator (C3) after passing
// through the Confirmation Gate (C4) and being registered with the
// Lifecycle Store (C5).
type TradingSignal struct {
	ID                string            `json:"id" db:"id"`
	Symbol            string            `json:"symbol" db:"symbol"`
	Direction         Direction         `json:"direction" db:"direction"`
	Confidence        float64           `json:"confidence" db:"confidence"`
	Price             float64           `json:"price" db:"price"`
	EntryPrice        float64           `json:"entry_price" db:"entry_price"`
	StopLoss          float64           `json:"stop_loss" db:"stop_loss"`
	TPLevels          TPLevels          `json:"tp_levels" db:"-"`
	PositionSize      float64           `json:"position_size" db:"position_size"`
	RiskRewardRatio   float64           `json:"risk_reward_ratio" db:"risk_reward_ratio"`
	Indicators        map[string]float64 `json:"indicators" db:"-"`
	Reasons           []string          `json:"reasons" db:"-"`
	GeneratedAt       time.Time         `json:"generated_at" db:"generated_at"`
	Status            Status            `json:"status" db:"status"`
	PendingAt         *time.Time        `json:"pending_at,omitempty" db:"pending_at"`
	ExecutedAt        *time.Time        `json:"executed_at,omitempty" db:"executed_at"`
	ExpiredAt         *time.Time        `json:"expired_at,omitempty" db:"expired_at"`
	OrderID           string            `json:"order_id,omitempty" db:"order_id"`
	Outcome           string            `json:"outcome,omitempty" db:"outcome"`
}

// NewTradingSignal builds a GENERATED signal, assigning an id if the
// caller has not already set one.
func NewTradingSignal() *TradingSignal {
	return &TradingSignal{
		ID:          uuid.New().String(),
		Status:      StatusGenerated,
		GeneratedAt: time.Now(),
		Indicators:  make(map[string]float64),
		Reasons:     make([]string, 0, 5),
	}
}

// validateDirectionalInvariant enforces §3's ordering for BUY/SELL
// signals: for BUY, stop_loss < entry_price < tp1 <= tp2 <= tp3; for
// SELL the mirror. NEUTRAL signals have no ordering requirement.
func (s *TradingSignal) validateDirectionalInvariant() bool {
	switch s.Direction {
	case DirectionBuy:
		return s.StopLoss < s.EntryPrice &&
			s.EntryPrice < s.TPLevels.TP1 &&
			s.TPLevels.TP1 <= s.TPLevels.TP2 &&
			s.TPLevels.TP2 <= s.TPLevels.TP3
	case DirectionSell:
		return s.StopLoss > s.EntryPrice &&
			s.EntryPrice > s.TPLevels.TP1 &&
			s.TPLevels.TP1 >= s.TPLevels.TP2 &&
			s.TPLevels.TP2 >= s.TPLevels.TP3
	default:
		return true
	}
}
