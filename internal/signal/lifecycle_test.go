package signal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/quantflow/futures-engine/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "signals.db")
	db, err := storage.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestStore_RegisterAndGetByID(t *testing.T) {
	store := newTestStore(t)
	sig := NewTradingSignal()
	sig.Symbol = "BTCUSDT"
	sig.Direction = DirectionBuy
	sig.Confidence = 0.8
	sig.Indicators = map[string]float64{"rsi14": 42.5}
	sig.Reasons = []string{"buy:trend"}

	require.NoError(t, store.Register(sig))

	fetched, err := store.GetByID(sig.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, sig.Symbol, fetched.Symbol)
	assert.Equal(t, StatusGenerated, fetched.Status)
	assert.Equal(t, 42.5, fetched.Indicators["rsi14"])
	assert.Equal(t, []string{"buy:trend"}, fetched.Reasons)
}

func TestStore_LifecycleTransitionsAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	sig := NewTradingSignal()
	sig.Symbol = "ETHUSDT"
	sig.Direction = DirectionSell
	require.NoError(t, store.Register(sig))

	require.NoError(t, store.MarkPending(sig.ID))
	fetched, _ := store.GetByID(sig.ID)
	assert.Equal(t, StatusPending, fetched.Status)

	require.NoError(t, store.MarkExecuted(sig.ID, "order-123"))
	fetched, _ = store.GetByID(sig.ID)
	assert.Equal(t, StatusExecuted, fetched.Status)
	assert.Equal(t, "order-123", fetched.OrderID)

	// Already terminal: MarkExpired must be a no-op, not an error.
	require.NoError(t, store.MarkExpired(sig.ID))
	fetched, _ = store.GetByID(sig.ID)
	assert.Equal(t, StatusExecuted, fetched.Status)

	byOrder, err := store.GetByOrderID("order-123")
	require.NoError(t, err)
	require.NotNil(t, byOrder)
	assert.Equal(t, sig.ID, byOrder.ID)
}

func TestStore_ExpireStale(t *testing.T) {
	store := newTestStore(t)
	sig := NewTradingSignal()
	sig.Symbol = "BTCUSDT"
	sig.Direction = DirectionBuy
	sig.GeneratedAt = time.Now().Add(-1 * time.Hour)
	require.NoError(t, store.Register(sig))

	_, err := store.db.Exec(`UPDATE signals SET generated_at = ? WHERE id = ?`, sig.GeneratedAt, sig.ID)
	require.NoError(t, err)

	n, err := store.ExpireStale(10 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fetched, _ := store.GetByID(sig.ID)
	assert.Equal(t, StatusExpired, fetched.Status)
}

func TestStore_QueryFilters(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		sig := NewTradingSignal()
		sig.Symbol = "BTCUSDT"
		sig.Direction = DirectionBuy
		sig.Confidence = 0.7
		require.NoError(t, store.Register(sig))
	}
	other := NewTradingSignal()
	other.Symbol = "ETHUSDT"
	other.Direction = DirectionSell
	other.Confidence = 0.9
	require.NoError(t, store.Register(other))

	results, err := store.Query(QueryFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = store.Query(QueryFilter{MinConfidence: 0.85})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ETHUSDT", results[0].Symbol)
}
