package signal

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// clampConfidence keeps a confidence reading inside [min, max].
func clampConfidence(v, min, max float64) float64 {
	return math.Min(max, math.Max(min, v))
}

// GeneratorConfig holds the tunables for the deterministic scoring rule.
type GeneratorConfig struct {
	MinConditions      int     // minimum fired conditions to trigger, default 4
	TotalConditions    int     // conditions evaluated per direction, default 5
	ADXHardFilter      float64 // veto gate: trending strength required, default 25
	NearBandTolerance  float64 // default 0.015
	VWAPDistancePct    float64 // default 1.0
	StochOverboughtK   float64 // default 80
	VolumeSpikeThresh  float64 // default 2.0
	EntryOffsetPct     float64 // limit offset from current price, default 0.001
	RiskRewardRatio    float64 // rr_ratio driving TP ladder, default 1.5
	RiskPercent        float64 // percent of account balance risked, default 1.0
	MinConfidence      float64 // confidence floor when firing, default 0.6
	MaxConfidence      float64 // confidence ceiling when firing, default 1.0
}

// DefaultGeneratorConfig returns the parameterization used throughout
// the signal stack.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MinConditions:     4,
		TotalConditions:   5,
		ADXHardFilter:     25,
		NearBandTolerance: 0.015,
		VWAPDistancePct:   1.0,
		StochOverboughtK:  80,
		VolumeSpikeThresh: 2.0,
		EntryOffsetPct:    0.001,
		RiskRewardRatio:   1.5,
		RiskPercent:       1.0,
		MinConfidence:     0.6,
		MaxConfidence:     1.0,
	}
}

// Generator evaluates the deterministic 5-condition scoring rule on
// every closed 1m candle.
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator builds a Generator with the supplied configuration. A
// zero-value cfg is replaced with DefaultGeneratorConfig.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.TotalConditions == 0 {
		cfg = DefaultGeneratorConfig()
	}
	return &Generator{cfg: cfg}
}

// conditionSet holds the five boolean checks for one direction, in the
// fixed evaluation order the tally depends on.
type conditionSet struct {
	trend   bool
	setup   bool
	trigger bool
	candle  bool
	volume  bool
}

func (c conditionSet) score() int {
	n := 0
	for _, fired := range []bool{c.trend, c.setup, c.trigger, c.candle, c.volume} {
		if fired {
			n++
		}
	}
	return n
}

func (c conditionSet) reasons(direction string) []string {
	labels := []string{"trend", "setup", "trigger", "candle", "volume"}
	fired := []bool{c.trend, c.setup, c.trigger, c.candle, c.volume}
	out := make([]string, 0, 5)
	for i, ok := range fired {
		if ok {
			out = append(out, fmt.Sprintf("%s:%s", direction, labels[i]))
		}
	}
	return out
}

func (g *Generator) buyConditions(snap Snapshot) conditionSet {
	distVWAP := DistanceFromVWAPPct(snap.Price, snap.VWAP)
	_, volSpike := VolumeSpike(snap.Volume, snap.SMAVolume20, g.cfg.VolumeSpikeThresh)
	spiked := volSpike >= g.cfg.VolumeSpikeThresh

	return conditionSet{
		trend:   snap.VWAP.Valid && snap.Price > snap.VWAP.Float64,
		setup:   NearLowerBand(snap.Price, snap.BBLower, g.cfg.NearBandTolerance) || distVWAP < g.cfg.VWAPDistancePct,
		trigger: snap.StochRSI.CrossUp(20) && snap.StochRSI.K < g.cfg.StochOverboughtK,
		candle:  snap.Close > snap.Open,
		volume:  spiked,
	}
}

func (g *Generator) sellConditions(snap Snapshot) conditionSet {
	distVWAP := DistanceFromVWAPPct(snap.Price, snap.VWAP)
	_, volSpike := VolumeSpike(snap.Volume, snap.SMAVolume20, g.cfg.VolumeSpikeThresh)
	spiked := volSpike >= g.cfg.VolumeSpikeThresh

	return conditionSet{
		trend:   snap.VWAP.Valid && snap.Price < snap.VWAP.Float64,
		setup:   NearUpperBand(snap.Price, snap.BBUpper, g.cfg.NearBandTolerance) || distVWAP < g.cfg.VWAPDistancePct,
		trigger: snap.StochRSI.CrossDown(80) && snap.StochRSI.K > (100-g.cfg.StochOverboughtK),
		candle:  snap.Close < snap.Open,
		volume:  spiked,
	}
}

// Generate evaluates the snapshot and emits a GENERATED TradingSignal,
// which may be NEUTRAL. Balance is the account's current wallet balance
// used for position sizing.
func (g *Generator) Generate(snap Snapshot, balance float64) *TradingSignal {
	sig := NewTradingSignal()
	sig.Symbol = snap.Symbol
	sig.Price = snap.Price

	if !snap.isWarmedUp() {
		sig.Direction = DirectionNeutral
		sig.Reasons = []string{"insufficient_history"}
		return sig
	}

	buy := g.buyConditions(snap)
	sell := g.sellConditions(snap)
	buyScore, sellScore := buy.score(), sell.score()

	buyFires := buyScore >= g.cfg.MinConditions
	sellFires := sellScore >= g.cfg.MinConditions

	if buyFires && sellFires {
		sig.Direction = DirectionNeutral
		sig.Reasons = []string{"conflicting_directions"}
		return sig
	}

	hardFilterPass := snap.ADX14.Valid && snap.ADX14.Float64 >= g.cfg.ADXHardFilter

	switch {
	case buyFires:
		sig.Reasons = buy.reasons("buy")
		if !hardFilterPass {
			sig.Direction = DirectionNeutral
			sig.Reasons = append(sig.Reasons, "hard_filter_adx_veto")
			return sig
		}
		sig.Direction = DirectionBuy
		sig.Confidence = clampConfidence(float64(buyScore)/float64(g.cfg.TotalConditions), g.cfg.MinConfidence, g.cfg.MaxConfidence)
	case sellFires:
		sig.Reasons = sell.reasons("sell")
		if !hardFilterPass {
			sig.Direction = DirectionNeutral
			sig.Reasons = append(sig.Reasons, "hard_filter_adx_veto")
			return sig
		}
		sig.Direction = DirectionSell
		sig.Confidence = clampConfidence(float64(sellScore)/float64(g.cfg.TotalConditions), g.cfg.MinConfidence, g.cfg.MaxConfidence)
	default:
		sig.Direction = DirectionNeutral
		sig.Reasons = []string{"no_condition_majority"}
		return sig
	}

	g.populateEntryExit(sig, snap)
	g.populateSize(sig, balance)

	sig.Indicators = snap.toIndicatorMap()

	if !sig.validateDirectionalInvariant() {
		log.Warn().Str("symbol", sig.Symbol).Str("direction", string(sig.Direction)).
			Msg("signal failed directional invariant, downgrading to neutral")
		sig.Direction = DirectionNeutral
		sig.Reasons = append(sig.Reasons, "invariant_violation")
	}

	return sig
}

func (g *Generator) populateEntryExit(sig *TradingSignal, snap Snapshot) {
	atr := snap.ATR14.Float64
	if !snap.ATR14.Valid || atr <= 0 {
		atr = snap.Price * 0.01
	}

	switch sig.Direction {
	case DirectionBuy:
		sig.EntryPrice = snap.Price * (1 - g.cfg.EntryOffsetPct)
		sig.StopLoss = sig.EntryPrice - atr*1.5
		risk := sig.EntryPrice - sig.StopLoss
		sig.TPLevels = TPLevels{
			TP1: sig.EntryPrice + risk*g.cfg.RiskRewardRatio,
			TP2: sig.EntryPrice + risk*g.cfg.RiskRewardRatio*1.5,
			TP3: sig.EntryPrice + risk*g.cfg.RiskRewardRatio*2.0,
		}
	case DirectionSell:
		sig.EntryPrice = snap.Price * (1 + g.cfg.EntryOffsetPct)
		sig.StopLoss = sig.EntryPrice + atr*1.5
		risk := sig.StopLoss - sig.EntryPrice
		sig.TPLevels = TPLevels{
			TP1: sig.EntryPrice - risk*g.cfg.RiskRewardRatio,
			TP2: sig.EntryPrice - risk*g.cfg.RiskRewardRatio*1.5,
			TP3: sig.EntryPrice - risk*g.cfg.RiskRewardRatio*2.0,
		}
	}
	sig.RiskRewardRatio = g.cfg.RiskRewardRatio
}

func (g *Generator) populateSize(sig *TradingSignal, balance float64) {
	if balance <= 0 || sig.EntryPrice <= 0 {
		return
	}
	slFrac := math.Abs(sig.EntryPrice-sig.StopLoss) / sig.EntryPrice
	if slFrac < 0.005 {
		sig.Direction = DirectionNeutral
		sig.Reasons = append(sig.Reasons, "sl_distance_too_tight")
		return
	}
	riskAmount := balance * (g.cfg.RiskPercent / 100)
	notional := riskAmount / slFrac
	sig.PositionSize = notional / sig.EntryPrice
}

// isWarmedUp reports whether enough indicators are valid for the
// generator to evaluate conditions meaningfully.
func (s Snapshot) isWarmedUp() bool {
	return s.VWAP.Valid && s.BBLower.Valid && s.BBUpper.Valid && s.StochRSI.IsWarmedUp
}

func (s Snapshot) toIndicatorMap() map[string]float64 {
	m := make(map[string]float64, 12)
	if s.EMA7.Valid {
		m["ema7"] = s.EMA7.Float64
	}
	if s.EMA25.Valid {
		m["ema25"] = s.EMA25.Float64
	}
	if s.EMA99.Valid {
		m["ema99"] = s.EMA99.Float64
	}
	if s.RSI6.Valid {
		m["rsi6"] = s.RSI6.Float64
	}
	if s.RSI14.Valid {
		m["rsi14"] = s.RSI14.Float64
	}
	if s.VWAP.Valid {
		m["vwap"] = s.VWAP.Float64
	}
	if s.ATR14.Valid {
		m["atr14"] = s.ATR14.Float64
	}
	if s.ADX14.Valid {
		m["adx14"] = s.ADX14.Float64
	}
	if s.StochRSI.IsWarmedUp {
		m["stoch_k"] = s.StochRSI.K
		m["stoch_d"] = s.StochRSI.D
	}
	return m
}
