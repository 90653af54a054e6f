package handlers

import (
	"net/http"
	"strings"

	"github.com/quantflow/futures-engine/internal/realtime"
	"github.com/labstack/echo/v4"
)

// StreamHandler upgrades GET /ws/stream/{symbol} and sends the
// initial snapshot frame before handing the connection to the shared
// wsmanager for event-bus fan-out.
type StreamHandler struct {
	svc *realtime.Service
}

// NewStreamHandler builds a StreamHandler.
func NewStreamHandler(svc *realtime.Service) *StreamHandler {
	return &StreamHandler{svc: svc}
}

// Handle handles GET /ws/stream/{symbol}.
func (h *StreamHandler) Handle(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))
	if !h.svc.HasSymbol(symbol) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown symbol")
	}

	client, err := h.svc.Manager().Accept(c, symbol)
	if err != nil {
		return err
	}

	frame := map[string]interface{}{"type": "snapshot", "symbol": symbol}
	if snap, ok := h.svc.Snapshot(symbol); ok {
		frame["data"] = snap
	}
	if candles := h.svc.Candles(symbol, "1m", 1); len(candles) == 1 {
		frame["candle"] = candles[0]
	}
	h.svc.Manager().Send(client.ID, frame)

	return nil
}
