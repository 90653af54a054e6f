package wsmanager

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientConnection is one subscriber's outbound connection, scoped to
// a single symbol's stream.
type ClientConnection struct {
	ID     string
	Symbol string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

// Manager maintains a symbol -> {client_id -> ClientConnection}
// registry, plus a flat client_id index for direct lookups, so a
// disconnect or targeted send never has to scan every symbol.
type Manager struct {
	mu          sync.RWMutex
	bySymbol    map[string]map[string]*ClientConnection
	byClientID  map[string]*ClientConnection
}

// New builds an empty Manager.
func New() *Manager {
	return &Manager{
		bySymbol:   make(map[string]map[string]*ClientConnection),
		byClientID: make(map[string]*ClientConnection),
	}
}

// Accept upgrades an HTTP request to a websocket and registers the
// resulting connection under the given symbol's fan-out group.
func (m *Manager) Accept(c echo.Context, symbol string) (*ClientConnection, error) {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil, err
	}

	client := &ClientConnection{
		ID:     uuid.New().String(),
		Symbol: symbol,
		conn:   conn,
		send:   make(chan []byte, 256),
	}

	m.mu.Lock()
	if m.bySymbol[symbol] == nil {
		m.bySymbol[symbol] = make(map[string]*ClientConnection)
	}
	m.bySymbol[symbol][client.ID] = client
	m.byClientID[client.ID] = client
	m.mu.Unlock()

	log.Debug().Str("client_id", client.ID).Str("symbol", symbol).Msg("websocket client connected")

	go client.writePump()
	go m.readPump(client)

	return client, nil
}

// Broadcast sends a message to every client subscribed to symbol.
// Clients whose send buffer is full are treated as dead and
// disconnected as part of the broadcast, mirroring the
// close-on-full-buffer cleanup used for the global hub this was
// generalized from.
func (m *Manager) Broadcast(symbol string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal websocket broadcast payload")
		return
	}

	m.mu.RLock()
	group := m.bySymbol[symbol]
	targets := make([]*ClientConnection, 0, len(group))
	for _, client := range group {
		targets = append(targets, client)
	}
	m.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- data:
		default:
			m.Disconnect(client.ID)
		}
	}
}

// Send delivers a message to exactly one client, looked up by id.
func (m *Manager) Send(clientID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal websocket payload")
		return
	}

	m.mu.RLock()
	client, ok := m.byClientID[clientID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case client.send <- data:
	default:
		m.Disconnect(clientID)
	}
}

// Disconnect idempotently removes a client from both indexes and
// closes its send channel exactly once.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.byClientID[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byClientID, clientID)
	if group, exists := m.bySymbol[client.Symbol]; exists {
		delete(group, clientID)
		if len(group) == 0 {
			delete(m.bySymbol, client.Symbol)
		}
	}
	m.mu.Unlock()

	client.once.Do(func() {
		close(client.send)
	})
}

// ClientCount returns the number of clients subscribed to symbol.
func (m *Manager) ClientCount(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySymbol[symbol])
}

// TotalClients returns the number of clients across every symbol.
func (m *Manager) TotalClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byClientID)
}

// Close disconnects every client across every symbol.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.byClientID))
	for id := range m.byClientID {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Disconnect(id)
	}
}

// clientFrame is a client->server control frame: {"type":"ping"} or
// {"type":"subscribe","symbol":"..."}.
type clientFrame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func (m *Manager) readPump(client *ClientConnection) {
	defer m.Disconnect(client.ID)

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("client_id", client.ID).Msg("websocket read error")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "ping":
			m.Send(client.ID, map[string]string{"type": "pong"})
		case "subscribe":
			if frame.Symbol != "" {
				m.resubscribe(client, frame.Symbol)
			}
		}
	}
}

// resubscribe moves a client from its current symbol group to a new
// one, so a single connection can follow the UI as the operator
// switches the active symbol instead of reconnecting.
func (m *Manager) resubscribe(client *ClientConnection, symbol string) {
	m.mu.Lock()
	if group, exists := m.bySymbol[client.Symbol]; exists {
		delete(group, client.ID)
		if len(group) == 0 {
			delete(m.bySymbol, client.Symbol)
		}
	}
	client.Symbol = symbol
	if m.bySymbol[symbol] == nil {
		m.bySymbol[symbol] = make(map[string]*ClientConnection)
	}
	m.bySymbol[symbol][client.ID] = client
	m.mu.Unlock()
}

func (c *ClientConnection) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
