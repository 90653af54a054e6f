package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/quantflow/futures-engine/internal/signal"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// SignalHandler exposes the Signal Lifecycle Store (C5) over REST.
type SignalHandler struct {
	store *signal.Store
}

// NewSignalHandler builds a SignalHandler.
func NewSignalHandler(store *signal.Store) *SignalHandler {
	return &SignalHandler{store: store}
}

func parsePageLimit(c echo.Context) (page, limit int) {
	page = 1
	limit = 50
	if raw := c.QueryParam("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	return page, limit
}

func (h *SignalHandler) queryFilter(c echo.Context) signal.QueryFilter {
	page, limit := parsePageLimit(c)

	f := signal.QueryFilter{
		Symbol: c.QueryParam("symbol"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if st := c.QueryParam("status"); st != "" {
		f.Status = signal.Status(st)
	}
	if d := c.QueryParam("signal_type"); d != "" {
		f.Direction = signal.Direction(d)
	}
	if mc := c.QueryParam("min_confidence"); mc != "" {
		if v, err := strconv.ParseFloat(mc, 64); err == nil {
			f.MinConfidence = v
		}
	}
	if days := c.QueryParam("days"); days != "" {
		if n, err := strconv.Atoi(days); err == nil && n > 0 {
			from := time.Now().AddDate(0, 0, -n)
			f.From = &from
		}
	}
	return f
}

// GetHistory handles GET /signals/history.
func (h *SignalHandler) GetHistory(c echo.Context) error {
	f := h.queryFilter(c)
	sigs, err := h.store.Query(f)
	if err != nil {
		log.Error().Err(err).Msg("failed to query signal history")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to query signals")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"signals": sigs})
}

// GetPending handles GET /signals/pending.
func (h *SignalHandler) GetPending(c echo.Context) error {
	f := signal.QueryFilter{Status: signal.StatusPending, Limit: 200}
	sigs, err := h.store.Query(f)
	if err != nil {
		log.Error().Err(err).Msg("failed to query pending signals")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to query signals")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"signals": sigs})
}

// GetByID handles GET /signals/{id}.
func (h *SignalHandler) GetByID(c echo.Context) error {
	sig, err := h.store.GetByID(c.Param("id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch signal")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch signal")
	}
	if sig == nil {
		return echo.NewHTTPError(http.StatusNotFound, "signal not found")
	}
	return c.JSON(http.StatusOK, sig)
}

// GetByOrderID handles GET /signals/order/{order_id}.
func (h *SignalHandler) GetByOrderID(c echo.Context) error {
	sig, err := h.store.GetByOrderID(c.Param("order_id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch signal by order id")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch signal")
	}
	if sig == nil {
		return echo.NewHTTPError(http.StatusNotFound, "signal not found")
	}
	return c.JSON(http.StatusOK, sig)
}

type executeRequest struct {
	OrderID string `json:"order_id"`
}

// Execute handles POST /signals/{id}/execute.
func (h *SignalHandler) Execute(c echo.Context) error {
	var req executeRequest
	_ = c.Bind(&req)
	if err := h.store.MarkExecuted(c.Param("id"), req.OrderID); err != nil {
		log.Error().Err(err).Msg("failed to mark signal executed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark signal executed")
	}
	return c.NoContent(http.StatusOK)
}

// MarkPending handles POST /signals/{id}/mark-pending.
func (h *SignalHandler) MarkPending(c echo.Context) error {
	if err := h.store.MarkPending(c.Param("id")); err != nil {
		log.Error().Err(err).Msg("failed to mark signal pending")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark signal pending")
	}
	return c.NoContent(http.StatusOK)
}

// Expire handles POST /signals/{id}/expire.
func (h *SignalHandler) Expire(c echo.Context) error {
	if err := h.store.MarkExpired(c.Param("id")); err != nil {
		log.Error().Err(err).Msg("failed to expire signal")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to expire signal")
	}
	return c.NoContent(http.StatusOK)
}

// ExpireStale handles POST /signals/expire-stale.
func (h *SignalHandler) ExpireStale(c echo.Context) error {
	ttl := 300 * time.Second
	if raw := c.QueryParam("ttl_minutes"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			ttl = time.Duration(n) * time.Minute
		}
	}
	count, err := h.store.ExpireStale(ttl)
	if err != nil {
		log.Error().Err(err).Msg("failed to expire stale signals")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to expire stale signals")
	}
	return c.JSON(http.StatusOK, map[string]int{"expired": count})
}

// Export handles GET /signals/export?format=csv|json.
func (h *SignalHandler) Export(c echo.Context) error {
	f := h.queryFilter(c)
	f.Limit = 10000
	sigs, err := h.store.Query(f)
	if err != nil {
		log.Error().Err(err).Msg("failed to query signals for export")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to export signals")
	}

	format := c.QueryParam("format")
	if format == "json" {
		return c.JSON(http.StatusOK, sigs)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"ID", "Symbol", "Type", "Status", "Confidence", "Price", "Entry", "StopLoss",
		"TP1", "TP2", "TP3", "R:R Ratio", "Generated At", "Executed At", "Order ID",
		"Indicators", "Reasons",
	})
	for _, sig := range sigs {
		executedAt := ""
		if sig.ExecutedAt != nil {
			executedAt = sig.ExecutedAt.Format(time.RFC3339)
		}
		indicators, _ := json.Marshal(sig.Indicators)
		_ = w.Write([]string{
			sig.ID, sig.Symbol, string(sig.Direction), string(sig.Status),
			fmt.Sprintf("%.4f", sig.Confidence), fmt.Sprintf("%.8f", sig.Price),
			fmt.Sprintf("%.8f", sig.EntryPrice), fmt.Sprintf("%.8f", sig.StopLoss),
			fmt.Sprintf("%.8f", sig.TPLevels.TP1), fmt.Sprintf("%.8f", sig.TPLevels.TP2),
			fmt.Sprintf("%.8f", sig.TPLevels.TP3), fmt.Sprintf("%.4f", sig.RiskRewardRatio),
			sig.GeneratedAt.Format(time.RFC3339), executedAt, sig.OrderID,
			string(indicators), joinReasons(sig.Reasons),
		})
	}
	w.Flush()

	c.Response().Header().Set("Content-Disposition", "attachment; filename=signals.csv")
	return c.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}
