package handlers

import (
	"net/http"
	"time"

	"github.com/quantflow/futures-engine/internal/realtime"
	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// SystemHandler serves liveness and top-level process status.
type SystemHandler struct {
	svc       *realtime.Service
	db        *storage.SQLiteDB
	startedAt time.Time
}

// NewSystemHandler builds a SystemHandler.
func NewSystemHandler(svc *realtime.Service, db *storage.SQLiteDB, startedAt time.Time) *SystemHandler {
	return &SystemHandler{svc: svc, db: db, startedAt: startedAt}
}

// GetStatus handles GET /system/status.
func (h *SystemHandler) GetStatus(c echo.Context) error {
	body := map[string]interface{}{
		"status":     "healthy",
		"symbols":    h.svc.Symbols(),
		"uptime_sec": time.Since(h.startedAt).Seconds(),
	}

	if h.db != nil {
		if stats, err := h.db.GetStats(); err != nil {
			log.Warn().Err(err).Msg("failed to read database stats")
		} else {
			body["db"] = stats
		}
	}

	return c.JSON(http.StatusOK, body)
}
