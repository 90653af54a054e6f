package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/quantflow/futures-engine/internal/config"
	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const settingsConfigKey = "settings"

// SettingsStore holds the live-tunable overlay on top of the YAML
// config's defaults (risk_percent, rr_ratio, max_positions, leverage,
// auto_execute, enabled_tokens, custom_tokens), persisted through the
// teacher's existing `config` key/value table rather than a second
// settings table, per the Open Question resolved during expansion.
type SettingsStore struct {
	mu  sync.RWMutex
	cur config.SettingsConfig
	db  *storage.SQLiteDB
}

// NewSettingsStore loads the persisted overlay if present, otherwise
// seeds it from the YAML defaults.
func NewSettingsStore(db *storage.SQLiteDB, defaults config.SettingsConfig) *SettingsStore {
	s := &SettingsStore{cur: defaults, db: db}

	raw, err := db.GetConfig(settingsConfigKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted settings, using config defaults")
		return s
	}
	if raw == "" {
		return s
	}
	var loaded config.SettingsConfig
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		log.Warn().Err(err).Msg("failed to parse persisted settings, using config defaults")
		return s
	}
	s.cur = loaded
	return s
}

// Current returns a copy of the live settings.
func (s *SettingsStore) Current() config.SettingsConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update merges the positive numeric fields and non-nil token lists
// from patch into the live settings, always takes auto_execute from
// patch, and persists the result.
func (s *SettingsStore) Update(patch config.SettingsConfig) (config.SettingsConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.RiskPercent > 0 {
		s.cur.RiskPercent = patch.RiskPercent
	}
	if patch.RRRatio > 0 {
		s.cur.RRRatio = patch.RRRatio
	}
	if patch.MaxPositions > 0 {
		s.cur.MaxPositions = patch.MaxPositions
	}
	if patch.Leverage > 0 {
		s.cur.Leverage = patch.Leverage
	}
	s.cur.AutoExecute = patch.AutoExecute
	if patch.EnabledTokens != nil {
		s.cur.EnabledTokens = patch.EnabledTokens
	}
	if patch.CustomTokens != nil {
		s.cur.CustomTokens = patch.CustomTokens
	}

	raw, err := json.Marshal(s.cur)
	if err != nil {
		return s.cur, fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.db.SetConfig(settingsConfigKey, string(raw)); err != nil {
		return s.cur, fmt.Errorf("persist settings: %w", err)
	}
	return s.cur, nil
}

// SettingsHandler exposes the Settings entity over REST.
type SettingsHandler struct {
	store *SettingsStore
}

// NewSettingsHandler builds a SettingsHandler.
func NewSettingsHandler(store *SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettings handles GET /settings.
func (h *SettingsHandler) GetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Current())
}

// UpdateSettings handles POST /settings.
func (h *SettingsHandler) UpdateSettings(c echo.Context) error {
	var patch config.SettingsConfig
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	updated, err := h.store.Update(patch)
	if err != nil {
		log.Error().Err(err).Msg("failed to update settings")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update settings")
	}
	return c.JSON(http.StatusOK, updated)
}
