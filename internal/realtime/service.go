package realtime

import (
	"context"
	"sync"

	"github.com/quantflow/futures-engine/internal/binance"
	"github.com/quantflow/futures-engine/internal/eventbus"
	"github.com/quantflow/futures-engine/internal/metrics"
	"github.com/quantflow/futures-engine/internal/recovery"
	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/quantflow/futures-engine/internal/simulator"
	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/quantflow/futures-engine/internal/wsmanager"
	"github.com/rs/zerolog/log"
)

// Oracle resolves the latest traded price per symbol from each
// SymbolContext's own 1m candle queue, so the simulator's unrealized
// PnL never reads another symbol's price.
type Oracle struct {
	mu      sync.RWMutex
	symbols map[string]*SymbolContext
}

// NewOracle builds an empty Oracle; symbols are registered as their
// SymbolContext is created.
func NewOracle() *Oracle {
	return &Oracle{symbols: make(map[string]*SymbolContext)}
}

func (o *Oracle) register(sc *SymbolContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.symbols[sc.Symbol] = sc
}

// LatestPrice implements simulator.PriceOracle.
func (o *Oracle) LatestPrice(symbol string) (float64, bool) {
	o.mu.RLock()
	sc, ok := o.symbols[symbol]
	o.mu.RUnlock()
	if !ok {
		return 0, false
	}
	queue, ok := sc.candles["1m"]
	if !ok {
		return 0, false
	}
	candle, ok := queue.GetLatest()
	if !ok {
		return 0, false
	}
	return candle.Close, true
}

// Service is the composition root's per-process realtime pipeline: it
// owns the shared Simulator, EventBus, and wsmanager.Manager, and one
// SymbolContext per configured symbol.
type Service struct {
	symbols   map[string]*SymbolContext
	bus       *eventbus.Bus
	ws        *wsmanager.Manager
	sim       *simulator.Simulator
	lifecycle *signal.Store
	recovery  *recovery.Service
	metrics   *metrics.Registry
	wsClient  *binance.WSClient
	positions *simulator.Store
}

// SetMetrics attaches a metrics.Registry so position/signal counters
// are incremented as they occur; safe to leave unset (nil checks
// guard every use).
func (s *Service) SetMetrics(reg *metrics.Registry) {
	s.metrics = reg
	for _, sc := range s.symbols {
		sc.metrics = reg
	}
}

// NewService wires a multi-symbol realtime pipeline sharing one
// Simulator/EventBus/wsmanager.Manager across symbols, per the
// ownership rule: every simulator and bus call is scoped to a single
// symbol, but the instances themselves are process-wide. rec may be
// nil to run without the §7 StateRecoveryService/circuit breaker.
func NewService(symbols []string, candleCapacity int, genCfg signal.GeneratorConfig, gateCfg signal.ConfirmationConfig, simCfg simulator.Config, lifecycle *signal.Store, rec *recovery.Service, candleRepo *storage.CandleRepository, positions *simulator.Store) *Service {
	oracle := NewOracle()
	sim := simulator.NewSimulator(simCfg, oracle)
	bus := eventbus.New(eventbus.DefaultConfig())
	ws := wsmanager.New()

	svc := &Service{
		symbols:   make(map[string]*SymbolContext, len(symbols)),
		bus:       bus,
		ws:        ws,
		sim:       sim,
		lifecycle: lifecycle,
		recovery:  rec,
		positions: positions,
	}

	for _, symbol := range symbols {
		sc := NewSymbolContext(symbol, candleCapacity, signal.NewGenerator(genCfg), signal.NewConfirmationGate(gateCfg), lifecycle, sim, bus, rec, candleRepo, positions)
		svc.symbols[symbol] = sc
		oracle.register(sc)
	}

	sim.SetCallbacks(svc.onOrderFilled, svc.onPositionClosed)
	bus.Subscribe(svc.broadcastEvent)

	return svc
}

func (s *Service) onOrderFilled(symbol, positionID, signalID string) {
	if s.lifecycle != nil && signalID != "" {
		if err := s.lifecycle.MarkExecuted(signalID, positionID); err != nil {
			log.Error().Err(err).Str("signal_id", signalID).Msg("failed to mark signal executed")
		}
	}
	s.persistPosition(symbol, positionID)
	s.bus.Publish("position.opened", positionID)
	if s.metrics != nil {
		s.metrics.PositionsOpened.WithLabelValues(symbol).Inc()
	}
}

// persistPosition looks up the live position by id and saves its
// current snapshot, best-effort (a logged miss never blocks trading).
func (s *Service) persistPosition(symbol, positionID string) {
	if s.positions == nil {
		return
	}
	pos := s.sim.PositionByID(symbol, positionID)
	if pos == nil {
		return
	}
	if err := s.positions.Save(pos); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Str("position_id", positionID).
			Msg("failed to persist position")
	}
}

// onPositionClosed feeds the closed position's realized PnL into the
// StateRecoveryService's circuit breaker and, once the simulator
// confirms no position remains open or pending for that symbol, drops
// the symbol back to SCANNING.
func (s *Service) onPositionClosed(symbol, positionID string, reason simulator.CloseReason, realizedPnL float64) {
	s.persistPosition(symbol, positionID)
	if s.recovery != nil {
		s.recovery.Observe(s.sim.Balance(), realizedPnL)
		if open, pending := s.sim.Position(symbol); open == nil && pending == nil {
			s.recovery.MarkScanning(symbol)
		}
	}
	if s.metrics != nil {
		s.metrics.PositionsClosed.WithLabelValues(symbol, string(reason)).Inc()
		s.metrics.RealizedPnL.Add(realizedPnL)
		s.metrics.WalletBalance.Set(s.sim.Balance())
	}
	s.bus.Publish("position.closed", map[string]interface{}{
		"position_id":  positionID,
		"symbol":       symbol,
		"reason":       reason,
		"realized_pnl": realizedPnL,
	})
}

func (s *Service) broadcastEvent(evt eventbus.Event) {
	symbol := ""
	switch p := evt.Payload.(type) {
	case interface{ GetSymbol() string }:
		symbol = p.GetSymbol()
	case storage.Candle:
		symbol = p.Symbol
	case *signal.TradingSignal:
		symbol = p.Symbol
	case map[string]interface{}:
		symbol, _ = p["symbol"].(string)
	}
	if symbol == "" {
		return
	}
	s.ws.Broadcast(symbol, map[string]interface{}{
		"type":      evt.Type,
		"data":      evt.Payload,
		"timestamp": evt.Timestamp,
	})
}

// Run starts the event bus consumer and the upstream Binance
// multi-symbol kline client, blocking until ctx is cancelled. restClient,
// when non-nil, is used to backfill whatever candles were missed
// during a dropped connection once the websocket resubscribes.
func (s *Service) Run(ctx context.Context, restClient *binance.Client, opts ...binance.WSClientOption) error {
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}

	var onReconnect func()
	if restClient != nil {
		onReconnect = func() {
			for _, sym := range symbols {
				if err := s.RefillGap(restClient, sym); err != nil {
					log.Warn().Str("symbol", sym).Err(err).Msg("gap refill after reconnect failed")
				}
			}
		}
	}

	client := binance.NewMultiSymbolKlineWSClient(symbols, Timeframes, s.dispatchKline, onReconnect, opts...)
	s.wsClient = client

	go s.bus.Run(ctx)

	if err := client.Connect(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	client.Disconnect()
	return nil
}

func (s *Service) dispatchKline(symbol string, event binance.KlineEvent) {
	sc, ok := s.symbols[symbol]
	if !ok {
		return
	}
	sc.OnKline(event.Kline.Interval, event)
}

// Manager exposes the wsmanager for REST/WS route wiring.
func (s *Service) Manager() *wsmanager.Manager { return s.ws }

// Simulator exposes the shared simulator for REST route wiring.
func (s *Service) Simulator() *simulator.Simulator { return s.sim }

// Bus exposes the shared event bus for metrics wiring.
func (s *Service) Bus() *eventbus.Bus { return s.bus }

// Symbols returns the configured symbol list.
func (s *Service) Symbols() []string {
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// HasSymbol reports whether symbol is configured on this service.
func (s *Service) HasSymbol(symbol string) bool {
	_, ok := s.symbols[symbol]
	return ok
}

// Candles returns up to limit candles (oldest to newest) for a
// symbol/timeframe pair directly from the in-memory ring buffer,
// which is this engine's local persisted store (the durable `candles`
// table is write-only history, not a read path).
func (s *Service) Candles(symbol, timeframe string, limit int) []storage.Candle {
	sc, ok := s.symbols[symbol]
	if !ok {
		return nil
	}
	queue, ok := sc.candles[timeframe]
	if !ok {
		return nil
	}
	if limit <= 0 {
		return queue.GetAll()
	}
	return queue.GetLast(limit)
}

// Snapshot builds the current indicator snapshot for a symbol from
// its 1m series, for the websocket stream's initial frame.
func (s *Service) Snapshot(symbol string) (*signal.Snapshot, bool) {
	sc, ok := s.symbols[symbol]
	if !ok {
		return nil, false
	}
	queue, ok := sc.candles["1m"]
	if !ok {
		return nil, false
	}
	opens, highs, lows, closes, volumes := queue.GetOHLCV()
	if len(closes) == 0 {
		return nil, false
	}
	snap := signal.BuildSnapshot(symbol, opens, highs, lows, closes, volumes, sc.vwapSeries)
	return &snap, true
}
