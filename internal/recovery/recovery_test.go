package recovery

import (
	"path/filepath"
	"testing"

	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.SQLiteDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "recovery.db")
	db, err := storage.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGuard_TripsOnMaxDrawdown(t *testing.T) {
	g := NewGuard(GuardConfig{MaxDrawdownPct: 0.2, ConsecutiveLossLimit: 100}, 1000)

	g.Observe(1000, 0)
	assert.True(t, g.Allow())

	g.Observe(790, -210) // 21% below peak of 1000
	halted, reason := g.State()
	assert.True(t, halted)
	assert.Equal(t, "max drawdown exceeded", reason)
	assert.False(t, g.Allow())
}

func TestGuard_TripsOnConsecutiveLosses(t *testing.T) {
	g := NewGuard(GuardConfig{MaxDrawdownPct: 0.9, ConsecutiveLossLimit: 3}, 1000)

	g.Observe(990, -10)
	g.Observe(980, -10)
	assert.True(t, g.Allow())

	g.Observe(970, -10)
	halted, reason := g.State()
	assert.True(t, halted)
	assert.Equal(t, "consecutive loss limit reached", reason)
}

func TestGuard_WinResetsConsecutiveLossStreak(t *testing.T) {
	g := NewGuard(GuardConfig{MaxDrawdownPct: 0.9, ConsecutiveLossLimit: 3}, 1000)

	g.Observe(990, -10)
	g.Observe(980, -10)
	g.Observe(1000, 30) // win resets the streak
	g.Observe(990, -10)
	g.Observe(980, -10)

	assert.True(t, g.Allow(), "two losses after a reset should not trip a limit of 3")
}

func TestGuard_NeverAutoResumes(t *testing.T) {
	g := NewGuard(GuardConfig{MaxDrawdownPct: 0.1, ConsecutiveLossLimit: 100}, 1000)
	g.Observe(850, -150)
	require.False(t, g.Allow())

	// Further observations, even winning ones, never clear the halt on
	// their own — only Resume does.
	g.Observe(1200, 350)
	assert.False(t, g.Allow())

	g.Resume()
	assert.True(t, g.Allow())
}

func TestGuard_OnHaltFiresCallback(t *testing.T) {
	g := NewGuard(GuardConfig{MaxDrawdownPct: 0.1, ConsecutiveLossLimit: 100}, 1000)
	var gotReason string
	g.SetOnHalt(func(reason string) { gotReason = reason })

	g.Observe(850, -150)
	assert.Equal(t, "max drawdown exceeded", gotReason)
}

func TestService_RecoverDefaultsToScanning(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	err := svc.Recover([]string{"BTCUSDT", "ETHUSDT"}, func(symbol string) bool { return false })
	require.NoError(t, err)

	assert.Equal(t, StateScanning, svc.State("BTCUSDT").State)
	assert.Equal(t, StateScanning, svc.State("ETHUSDT").State)
}

func TestService_RecoverDropsStaleInPositionToScanning(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)
	svc.MarkInPosition("BTCUSDT")

	// Simulate a restart: a fresh Service instance reloads the
	// persisted row, and the simulator reports no live position.
	fresh := NewService(db, nil)
	err := fresh.Recover([]string{"BTCUSDT"}, func(symbol string) bool { return false })
	require.NoError(t, err)

	assert.Equal(t, StateScanning, fresh.State("BTCUSDT").State)
}

func TestService_RecoverKeepsVerifiedInPosition(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)
	svc.MarkInPosition("BTCUSDT")

	fresh := NewService(db, nil)
	err := fresh.Recover([]string{"BTCUSDT"}, func(symbol string) bool { return true })
	require.NoError(t, err)

	assert.Equal(t, StateInPosition, fresh.State("BTCUSDT").State)
}

func TestService_RecoverLeavesHaltedUntouched(t *testing.T) {
	db := newTestDB(t)
	guard := NewGuard(DefaultGuardConfig(), 1000)
	svc := NewService(db, guard)
	svc.MarkScanning("BTCUSDT")
	svc.HaltAll("max drawdown exceeded")

	fresh :=NewService(db, NewGuard(DefaultGuardConfig(), 1000))
	err := fresh.Recover([]string{"BTCUSDT"}, func(symbol string) bool { return false })
	require.NoError(t, err)

	rec := fresh.State("BTCUSDT")
	assert.Equal(t, StateHalted, rec.State)
	assert.Equal(t, "max drawdown exceeded", rec.HaltReason)
	assert.False(t, fresh.Allow("BTCUSDT"), "recovered HALTED state must not auto-resume")
}

func TestService_ResumeClearsHaltedSymbolsAndGuard(t *testing.T) {
	db := newTestDB(t)
	guard := NewGuard(GuardConfig{MaxDrawdownPct: 0.1, ConsecutiveLossLimit: 100}, 1000)
	svc := NewService(db, guard)

	guard.Observe(850, -150) // trips the guard, fans out via onHalt -> HaltAll
	svc.MarkInPosition("ETHUSDT")
	svc.HaltAll("max drawdown exceeded")

	assert.False(t, svc.Allow("BTCUSDT"))
	assert.False(t, svc.Allow("ETHUSDT"))

	svc.Resume()

	assert.True(t, svc.Allow("BTCUSDT"))
	assert.True(t, svc.Allow("ETHUSDT"))
	assert.True(t, guard.Allow())
}

func TestService_MarkScanningDoesNotClearHalted(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)
	svc.MarkScanning("BTCUSDT")
	svc.HaltAll("manual test halt")

	svc.MarkScanning("BTCUSDT")

	assert.Equal(t, StateHalted, svc.State("BTCUSDT").State)
}
