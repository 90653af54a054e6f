package realtime

import (
	"strconv"
	"time"

	"github.com/quantflow/futures-engine/internal/binance"
	"github.com/quantflow/futures-engine/internal/eventbus"
	"github.com/quantflow/futures-engine/internal/metrics"
	"github.com/quantflow/futures-engine/internal/recovery"
	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/quantflow/futures-engine/internal/simulator"
	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/rs/zerolog/log"
)

// Timeframes the pipeline tracks per symbol; 1m is primary (the
// generator evaluates on every 1m close), 15m/1h feed the warm-up
// window and higher-timeframe context.
var Timeframes = []string{"1m", "15m", "1h"}

// SymbolContext owns one symbol's entire realtime pipeline: its candle
// stores per timeframe, confirmation gate, and session VWAP
// accumulator. It shares the process-wide Simulator, lifecycle store
// and EventBus injected by the composition root rather than
// constructing its own.
type SymbolContext struct {
	Symbol string

	candles    map[string]*storage.CandleQueue
	gen        *signal.Generator
	gate       *signal.ConfirmationGate
	lifecycle  *signal.Store
	sim        *simulator.Simulator
	bus        *eventbus.Bus
	recovery   *recovery.Service
	metrics    *metrics.Registry
	candleRepo *storage.CandleRepository
	positions  *simulator.Store

	vwapCumVol   float64
	vwapCumPV    float64
	vwapSessionDay int
	vwapSeries   []float64

	lastCandleTime time.Time
}

// NewSymbolContext builds a pipeline for one symbol, sharing the
// process-wide simulator, lifecycle store and event bus. rec may be
// nil to run without the §7 StateRecoveryService/circuit breaker gate.
func NewSymbolContext(symbol string, candleCapacity int, gen *signal.Generator, gate *signal.ConfirmationGate, lifecycle *signal.Store, sim *simulator.Simulator, bus *eventbus.Bus, rec *recovery.Service, candleRepo *storage.CandleRepository, positions *simulator.Store) *SymbolContext {
	candles := make(map[string]*storage.CandleQueue, len(Timeframes))
	for _, tf := range Timeframes {
		candles[tf] = storage.NewCandleQueue(candleCapacity)
	}
	return &SymbolContext{
		Symbol:     symbol,
		candles:    candles,
		gen:        gen,
		gate:       gate,
		lifecycle:  lifecycle,
		sim:        sim,
		bus:        bus,
		recovery:   rec,
		candleRepo: candleRepo,
		positions:  positions,
	}
}

// OnKline handles one incoming kline event for this symbol's
// timeframe. Still-forming candles overwrite the queue's latest slot;
// a kline older than what is already stored is rejected outright so a
// late or duplicate websocket frame can never regress the series.
func (sc *SymbolContext) OnKline(timeframe string, event binance.KlineEvent) {
	queue, ok := sc.candles[timeframe]
	if !ok {
		return
	}

	openTime := time.UnixMilli(event.Kline.StartTime)
	closeTime := time.UnixMilli(event.Kline.CloseTime)

	if latest, exists := queue.GetLatest(); exists && openTime.Before(latest.OpenTime) {
		log.Warn().Str("symbol", sc.Symbol).Str("timeframe", timeframe).
			Time("open_time", openTime).Msg("stale kline rejected")
		return
	}

	candle := storage.Candle{
		Symbol:    sc.Symbol,
		Timeframe: timeframe,
		OpenTime:  openTime,
		CloseTime: closeTime,
		Open:      parseFloat(event.Kline.Open),
		High:      parseFloat(event.Kline.High),
		Low:       parseFloat(event.Kline.Low),
		Close:     parseFloat(event.Kline.Close),
		Volume:    parseFloat(event.Kline.Volume),
		Trades:    int(event.Kline.NumberTrades),
		IsClosed:  event.Kline.IsClosed,
	}

	if latest, exists := queue.GetLatest(); exists && latest.OpenTime.Equal(openTime) {
		queue.UpdateLatest(candle)
	} else {
		queue.Push(candle)
	}

	if candle.IsClosed && sc.candleRepo != nil {
		if err := sc.candleRepo.Insert(candle); err != nil {
			log.Error().Err(err).Str("symbol", sc.Symbol).Str("timeframe", timeframe).
				Msg("failed to persist closed candle")
		}
	}

	if timeframe == "1m" {
		sc.updateVWAP(candle)
		sc.bus.Publish("candle.updated", candle)

		if candle.IsClosed && !candle.CloseTime.Equal(sc.lastCandleTime) {
			sc.lastCandleTime = candle.CloseTime
			sc.onPrimaryClose()
		}

		// The simulator's SL/TP/liquidation checks assume each Tick
		// carries one primary-timeframe candle's high/low; ticking it
		// from 15m/1h bars too would let a wider intrabar range trip
		// an exit before the 1m close path (onPrimaryClose) reaches it.
		if sc.sim != nil {
			sc.sim.Tick(sc.Symbol, simulator.Candle{
				Open: candle.Open, High: candle.High, Low: candle.Low, Close: candle.Close, Time: candle.CloseTime,
			})
		}
	}
}

// updateVWAP accumulates the session VWAP, resetting at UTC midnight.
func (sc *SymbolContext) updateVWAP(candle storage.Candle) {
	day := candle.OpenTime.UTC().YearDay()
	if day != sc.vwapSessionDay {
		sc.vwapSessionDay = day
		sc.vwapCumVol = 0
		sc.vwapCumPV = 0
	}

	typical := (candle.High + candle.Low + candle.Close) / 3
	sc.vwapCumPV += typical * candle.Volume
	sc.vwapCumVol += candle.Volume

	vwap := candle.Close
	if sc.vwapCumVol > 0 {
		vwap = sc.vwapCumPV / sc.vwapCumVol
	}
	sc.vwapSeries = append(sc.vwapSeries, vwap)
	if len(sc.vwapSeries) > 500 {
		sc.vwapSeries = sc.vwapSeries[len(sc.vwapSeries)-500:]
	}
}

// onPrimaryClose runs the full generate -> confirm -> register ->
// simulate pipeline on every closed 1m candle.
func (sc *SymbolContext) onPrimaryClose() {
	queue := sc.candles["1m"]
	opens, highs, lows, closes, volumes := queue.GetOHLCV()
	if len(closes) == 0 {
		return
	}

	snap := signal.BuildSnapshot(sc.Symbol, opens, highs, lows, closes, volumes, sc.vwapSeries)

	balance := 0.0
	if sc.sim != nil {
		balance = sc.sim.Balance()
	}

	sig := sc.gen.Generate(snap, balance)
	if sig.Direction == signal.DirectionNeutral {
		return
	}

	released, ok := sc.gate.Process(sig)
	if !ok {
		return
	}

	if sc.lifecycle != nil {
		if err := sc.lifecycle.Register(released); err != nil {
			log.Error().Err(err).Str("symbol", sc.Symbol).Msg("failed to register signal")
		}
	}

	sc.bus.Publish("signal.generated", released)
	if sc.metrics != nil {
		sc.metrics.SignalsGenerated.WithLabelValues(sc.Symbol, string(released.Direction)).Inc()
	}

	if sc.recovery != nil && !sc.recovery.Allow(sc.Symbol) {
		log.Info().Str("symbol", sc.Symbol).Msg("signal dropped: trading halted")
		return
	}

	if sc.sim != nil {
		pos, reason := sc.sim.OnNewSignal(released, time.Now())
		if pos != nil {
			if sc.lifecycle != nil {
				_ = sc.lifecycle.MarkPending(released.ID)
			}
			if sc.recovery != nil {
				sc.recovery.MarkInPosition(sc.Symbol)
			}
			if sc.positions != nil {
				if err := sc.positions.Save(pos); err != nil {
					log.Error().Err(err).Str("symbol", sc.Symbol).Str("position_id", pos.ID).
						Msg("failed to persist new position")
				}
			}
		}
		if reason != "" {
			log.Debug().Str("symbol", sc.Symbol).Str("reason", reason).Msg("signal not opened by simulator")
		}
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
