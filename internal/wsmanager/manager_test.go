package wsmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// register is a test-only helper that inserts a client without going
// through the real websocket upgrade, so broadcast/disconnect
// bookkeeping can be exercised directly.
func (m *Manager) register(id, symbol string) *ClientConnection {
	client := &ClientConnection{ID: id, Symbol: symbol, send: make(chan []byte, 4)}
	m.mu.Lock()
	if m.bySymbol[symbol] == nil {
		m.bySymbol[symbol] = make(map[string]*ClientConnection)
	}
	m.bySymbol[symbol][id] = client
	m.byClientID[id] = client
	m.mu.Unlock()
	return client
}

func TestManager_BroadcastReachesOnlySameSymbolClients(t *testing.T) {
	m := New()
	btc := m.register("c1", "BTCUSDT")
	eth := m.register("c2", "ETHUSDT")

	m.Broadcast("BTCUSDT", map[string]string{"type": "kline"})

	select {
	case msg := <-btc.send:
		assert.Contains(t, string(msg), "kline")
	default:
		t.Fatal("BTCUSDT client did not receive broadcast")
	}

	select {
	case <-eth.send:
		t.Fatal("ETHUSDT client should not have received a BTCUSDT broadcast")
	default:
	}
}

func TestManager_DisconnectRemovesFromBothIndexes(t *testing.T) {
	m := New()
	m.register("c1", "BTCUSDT")
	require.Equal(t, 1, m.ClientCount("BTCUSDT"))
	require.Equal(t, 1, m.TotalClients())

	m.Disconnect("c1")

	assert.Equal(t, 0, m.ClientCount("BTCUSDT"))
	assert.Equal(t, 0, m.TotalClients())
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	m := New()
	m.register("c1", "BTCUSDT")

	assert.NotPanics(t, func() {
		m.Disconnect("c1")
		m.Disconnect("c1")
	})
}

func TestManager_SendTargetsOneClient(t *testing.T) {
	m := New()
	c1 := m.register("c1", "BTCUSDT")
	c2 := m.register("c2", "BTCUSDT")

	m.Send("c1", map[string]string{"type": "pong"})

	select {
	case <-c1.send:
	default:
		t.Fatal("c1 should have received the direct message")
	}
	select {
	case <-c2.send:
		t.Fatal("c2 should not have received a message addressed to c1")
	default:
	}
}

func TestManager_CloseDisconnectsEveryClient(t *testing.T) {
	m := New()
	m.register("c1", "BTCUSDT")
	m.register("c2", "ETHUSDT")

	m.Close()

	assert.Equal(t, 0, m.TotalClients())
}
