package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quantflow/futures-engine/internal/realtime"
	"github.com/quantflow/futures-engine/internal/simulator"
	"github.com/labstack/echo/v4"
)

// TradesHandler exposes the paper futures simulator's (C6) open and
// historical positions, and the shared paper account.
type TradesHandler struct {
	svc            *realtime.Service
	initialBalance float64
}

// NewTradesHandler builds a TradesHandler. initialBalance seeds the
// wallet on POST /trades/reset.
func NewTradesHandler(svc *realtime.Service, initialBalance float64) *TradesHandler {
	return &TradesHandler{svc: svc, initialBalance: initialBalance}
}

// ResetAccount handles POST /trades/reset: wipes every position,
// cooldown, and the trade history, and restores the wallet to its
// configured starting balance. An operator action only.
func (h *TradesHandler) ResetAccount(c echo.Context) error {
	h.svc.Simulator().Reset(h.initialBalance)
	return c.JSON(http.StatusOK, map[string]interface{}{"balance": h.initialBalance})
}

// GetHistory handles GET /trades/history.
func (h *TradesHandler) GetHistory(c echo.Context) error {
	sim := h.svc.Simulator()
	history := sim.History()

	symbol := strings.ToUpper(c.QueryParam("symbol"))
	side := strings.ToUpper(c.QueryParam("side"))

	filtered := make([]*simulator.Position, 0, len(history))
	for _, pos := range history {
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		if side != "" && string(pos.Side) != side {
			continue
		}
		filtered = append(filtered, pos)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CloseTime.After(filtered[j].CloseTime)
	})

	page, limit := parsePageLimit(c)
	start := (page - 1) * limit
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"trades":      filtered[start:end],
		"total":       len(filtered),
		"total_pages": (len(filtered) + limit - 1) / limit,
	})
}

// GetPortfolio handles GET /trades/portfolio.
func (h *TradesHandler) GetPortfolio(c echo.Context) error {
	sim := h.svc.Simulator()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"balance": sim.Balance(),
		"open":    sim.OpenPositions(),
	})
}

// GetPerformance handles GET /trades/performance?days.
func (h *TradesHandler) GetPerformance(c echo.Context) error {
	sim := h.svc.Simulator()
	history := sim.History()

	var since time.Time
	if n, err := strconv.Atoi(c.QueryParam("days")); err == nil && n > 0 {
		since = time.Now().AddDate(0, 0, -n)
	}

	var wins, losses int
	var realizedPnL float64
	for _, pos := range history {
		if !since.IsZero() && pos.CloseTime.Before(since) {
			continue
		}
		realizedPnL += pos.RealizedPnL
		if pos.RealizedPnL >= 0 {
			wins++
		} else {
			losses++
		}
	}

	winRate := 0.0
	if total := wins + losses; total > 0 {
		winRate = float64(wins) / float64(total) * 100
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total_trades": wins + losses,
		"wins":         wins,
		"losses":       losses,
		"win_rate_pct": winRate,
		"realized_pnl": realizedPnL,
	})
}

// ClosePosition handles POST /trades/close/{id} — a manual close of
// whichever position (OPEN at the current mark, or PENDING before
// fill) matches id.
func (h *TradesHandler) ClosePosition(c echo.Context) error {
	id := c.Param("id")
	sim := h.svc.Simulator()
	for _, symbol := range h.svc.Symbols() {
		open, pending := sim.Position(symbol)
		switch {
		case open != nil && open.ID == id:
			if err := sim.CloseOpen(symbol, simulator.ReasonManualClose, time.Now()); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			return c.NoContent(http.StatusOK)
		case pending != nil && pending.ID == id:
			if err := sim.CancelPending(symbol, simulator.ReasonManualClose, time.Now()); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			return c.NoContent(http.StatusOK)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "position not found")
}

// GetPositions handles GET /positions — every symbol's current OPEN
// position; pending orders are not included.
func (h *TradesHandler) GetPositions(c echo.Context) error {
	sim := h.svc.Simulator()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"positions": sim.OpenPositions(),
	})
}
