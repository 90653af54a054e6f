package handlers

import (
	"net/http"

	"github.com/quantflow/futures-engine/internal/recovery"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// TradingHandler exposes the §7 StateRecoveryService's per-symbol
// trading state and the operator-only resume action for a HALTED
// circuit breaker.
type TradingHandler struct {
	rec *recovery.Service
}

// NewTradingHandler builds a TradingHandler. rec may be nil if the
// engine is running without the recovery service, in which case
// GetState reports an empty state map and Resume answers 503 Service
// Unavailable.
func NewTradingHandler(rec *recovery.Service) *TradingHandler {
	return &TradingHandler{rec: rec}
}

// GetState handles GET /trading/state, returning each tracked symbol's
// persisted SCANNING/IN_POSITION/HALTED state.
func (h *TradingHandler) GetState(c echo.Context) error {
	if h.rec == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"states": map[string]string{}})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"states": h.rec.States()})
}

// Resume handles POST /trading/resume: the explicit operator action
// required to clear a HALTED state. A HALTED state is never cleared
// automatically.
func (h *TradingHandler) Resume(c echo.Context) error {
	if h.rec == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "recovery service not configured")
	}
	h.rec.Resume()
	log.Info().Msg("trading resumed via API")
	return c.JSON(http.StatusOK, map[string]interface{}{"states": h.rec.States()})
}
