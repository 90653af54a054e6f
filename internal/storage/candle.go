package storage

import "time"

// Candle represents OHLCV candlestick data
type Candle struct {
	ID        int64     `db:"id" json:"id,omitempty"`
	Symbol    string    `db:"symbol" json:"symbol"`
	Timeframe string    `db:"timeframe" json:"timeframe"`
	OpenTime  time.Time `db:"open_time" json:"open_time"`
	CloseTime time.Time `db:"close_time" json:"close_time"`
	Open      float64   `db:"open" json:"open"`
	High      float64   `db:"high" json:"high"`
	Low       float64   `db:"low" json:"low"`
	Close     float64   `db:"close" json:"close"`
	Volume    float64   `db:"volume" json:"volume"`
	Trades    int       `db:"trades" json:"trades"`
	IsClosed  bool      `db:"is_closed" json:"is_closed"`
}
