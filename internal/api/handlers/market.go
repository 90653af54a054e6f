package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/quantflow/futures-engine/internal/realtime"
	"github.com/labstack/echo/v4"
)

// MarketHandler serves candle history and the active symbol list,
// backed directly by the realtime service's in-memory candle queues
// rather than a database round trip.
type MarketHandler struct {
	svc      *realtime.Service
	settings *SettingsStore
}

// NewMarketHandler builds a MarketHandler.
func NewMarketHandler(svc *realtime.Service, settings *SettingsStore) *MarketHandler {
	return &MarketHandler{svc: svc, settings: settings}
}

// GetHistory handles GET /market/history?symbol&timeframe&limit
func (h *MarketHandler) GetHistory(c echo.Context) error {
	symbol := strings.ToUpper(c.QueryParam("symbol"))
	timeframe := c.QueryParam("timeframe")
	if timeframe == "" {
		timeframe = "1m"
	}
	limit := 500
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			if n > 1000 {
				n = 1000
			}
			limit = n
		}
	}

	if symbol == "" || !h.svc.HasSymbol(symbol) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown symbol")
	}
	switch timeframe {
	case "1m", "15m", "1h":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "timeframe must be one of 1m, 15m, 1h")
	}

	candles := h.svc.Candles(symbol, timeframe, limit)
	snap, hasSnap := h.svc.Snapshot(symbol)

	resp := map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"candles":   candles,
	}
	if hasSnap {
		resp["indicators"] = snap
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSymbols handles GET /market/symbols: the active list is derived
// from Settings (enabled_tokens union custom_tokens), first entry is
// the default UI selection.
func (h *MarketHandler) GetSymbols(c echo.Context) error {
	settings := h.settings.Current()

	seen := make(map[string]bool, len(settings.EnabledTokens)+len(settings.CustomTokens))
	var symbols []string
	for _, group := range [][]string{settings.EnabledTokens, settings.CustomTokens} {
		for _, sym := range group {
			sym = strings.ToUpper(sym)
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		symbols = h.svc.Symbols()
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"symbols": symbols,
		"default": firstOrEmpty(symbols),
	})
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
