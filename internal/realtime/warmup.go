package realtime

import (
	"fmt"
	"time"

	"github.com/quantflow/futures-engine/internal/binance"
	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/rs/zerolog/log"
)

// Warmup backfills every symbol's candle queues from the REST API so
// the generator has enough history to evaluate on the first live 1m
// close, instead of waiting out a full warm-up window after connect.
// Grounded on the teacher's Orchestrator.loadHistoricalData, widened
// from a single symbol to every configured SymbolContext.
func (s *Service) Warmup(client *binance.Client, limit int) error {
	var firstErr error
	for symbol, sc := range s.symbols {
		for _, tf := range Timeframes {
			klines, err := client.GetKlines(symbol, tf, limit, 0, 0)
			if err != nil {
				log.Warn().Str("symbol", symbol).Str("timeframe", tf).Err(err).Msg("warm-up fetch failed")
				if firstErr == nil {
					firstErr = fmt.Errorf("warm-up %s/%s: %w", symbol, tf, err)
				}
				continue
			}
			sc.seedHistory(tf, klines)
			log.Debug().Str("symbol", symbol).Str("timeframe", tf).Int("count", len(klines)).Msg("warm-up loaded")
		}
	}
	return firstErr
}

// seedHistory pushes closed historical candles into the given
// timeframe's queue in chronological order and, for the primary 1m
// timeframe, rebuilds the session VWAP accumulator and records the
// latest close time so the very next live close is recognized as new
// rather than re-triggering a duplicate signal.
func (sc *SymbolContext) seedHistory(timeframe string, klines []binance.Kline) {
	queue, ok := sc.candles[timeframe]
	if !ok || len(klines) == 0 {
		return
	}

	for _, k := range klines {
		candle := klineToCandle(k, sc.Symbol, timeframe)
		candle.IsClosed = true
		queue.Push(candle)
		if timeframe == "1m" {
			sc.updateVWAP(candle)
		}
	}

	if timeframe == "1m" {
		if latest, ok := queue.GetLatest(); ok {
			sc.lastCandleTime = latest.CloseTime
		}
	}
}

func klineToCandle(k binance.Kline, symbol, timeframe string) storage.Candle {
	return storage.Candle{
		Symbol:    symbol,
		Timeframe: timeframe,
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
		Trades:    int(k.NumberOfTrades),
	}
}

// RefillGap backfills a symbol/timeframe's queue from its last known
// close time to now, covering the candles missed while the upstream
// websocket was disconnected. The multi-symbol client reconnects with
// a fresh combined-streams dial and no replay, so without this a
// reconnect silently leaves a hole in the series.
func (s *Service) RefillGap(client *binance.Client, symbol string) error {
	sc, ok := s.symbols[symbol]
	if !ok {
		return fmt.Errorf("unknown symbol %s", symbol)
	}

	for _, tf := range Timeframes {
		queue, ok := sc.candles[tf]
		if !ok {
			continue
		}
		latest, ok := queue.GetLatest()
		if !ok {
			continue
		}
		klines, err := client.GetHistoricalKlines(symbol, tf, latest.CloseTime, time.Now())
		if err != nil {
			return fmt.Errorf("gap refill %s/%s: %w", symbol, tf, err)
		}
		for _, k := range klines {
			candle := klineToCandle(k, symbol, tf)
			if !candle.OpenTime.After(latest.OpenTime) {
				continue
			}
			candle.IsClosed = true
			queue.Push(candle)
			if tf == "1m" {
				sc.updateVWAP(candle)
				sc.lastCandleTime = candle.CloseTime
			}
		}
	}
	return nil
}
