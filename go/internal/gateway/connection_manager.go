package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/lobby/events"
)

// ConnectionManager manages WebSocket connections for lobby events.
// Each (lobby, player) pair has at most one live connection.
type ConnectionManager struct {
	// Connections organized by lobby ID then player ID
	lobbyConnections map[int64]map[int64]*Connection
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	// Called when a client goes away without the server asking it to
	onDisconnect func(lobbyID, playerID int64)
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	PlayerID int64
	LobbyID  int64
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	// set when the server removed the connection, so its exit is not a client disconnect
	dropped atomic.Bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     90 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 64
	}
	return &ConnectionManager{
		lobbyConnections: make(map[int64]map[int64]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		clock:  clock,
	}
}

// OnDisconnect sets the callback fired when a client drops or idles out
func (cm *ConnectionManager) OnDisconnect(fn func(lobbyID, playerID int64)) {
	cm.onDisconnect = fn
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers it
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, lobbyID, playerID int64) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		LobbyID:     lobbyID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	cm.Register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Int64("player_id", playerID).
		Int64("lobby_id", lobbyID).
		Msg("WebSocket connection established")

	return nil
}

// Register adds a connection, replacing and closing any earlier connection
// for the same player in the same lobby.
func (cm *ConnectionManager) Register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	players := cm.lobbyConnections[conn.LobbyID]
	if players == nil {
		players = make(map[int64]*Connection)
		cm.lobbyConnections[conn.LobbyID] = players
	}
	if old, ok := players[conn.PlayerID]; ok && old != conn {
		old.dropped.Store(true)
		close(old.Send)
		log.Debug().
			Str("connection_id", old.ID).
			Int64("player_id", old.PlayerID).
			Msg("connection replaced by reconnect")
	}
	players[conn.PlayerID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Int64("lobby_id", conn.LobbyID).
		Int("total_connections", len(players)).
		Msg("connection registered")
}

// Unregister removes and closes the player's connection in the lobby, if any.
// Events already queued are still written before the close frame.
func (cm *ConnectionManager) Unregister(lobbyID, playerID int64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn, ok := cm.lobbyConnections[lobbyID][playerID]; ok {
		conn.dropped.Store(true)
		cm.removeLocked(conn)
	}
}

// removeLocked deletes conn if it is still the registered one and closes its
// send queue. cm.mu must be held for writing.
func (cm *ConnectionManager) removeLocked(conn *Connection) bool {
	players, ok := cm.lobbyConnections[conn.LobbyID]
	if !ok || players[conn.PlayerID] != conn {
		return false
	}
	delete(players, conn.PlayerID)
	close(conn.Send)
	if len(players) == 0 {
		delete(cm.lobbyConnections, conn.LobbyID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Int64("player_id", conn.PlayerID).
		Int64("lobby_id", conn.LobbyID).
		Msg("connection unregistered")
	return true
}

// Broadcast queues an event on every connection in the lobby. A connection
// whose queue is full is closed; the others still get the event.
func (cm *ConnectionManager) Broadcast(ctx context.Context, lobbyID int64, event events.Event) {
	eventData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	connections := cm.lobbyConnections[lobbyID]
	for _, conn := range connections {
		select {
		case conn.Send <- eventData:
		default:
			slow = append(slow, conn)
		}
	}
	delivered := len(connections) - len(slow)
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Int64("player_id", conn.PlayerID).
			Msg("connection send buffer full, closing connection")
		cm.drop(conn)
	}

	log.Debug().
		Str("event", event.StatusCode.String()).
		Int64("lobby_id", lobbyID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// Disconnect implements the app's Broadcaster
func (cm *ConnectionManager) Disconnect(ctx context.Context, lobbyID, playerID int64) {
	cm.Unregister(lobbyID, playerID)
}

// CloseLobby closes every connection in the lobby after its queued events
func (cm *ConnectionManager) CloseLobby(ctx context.Context, lobbyID int64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, conn := range cm.lobbyConnections[lobbyID] {
		conn.dropped.Store(true)
		cm.removeLocked(conn)
	}
}

// drop closes a misbehaving connection without treating it as a leave
func (cm *ConnectionManager) drop(conn *Connection) {
	conn.dropped.Store(true)
	cm.mu.Lock()
	cm.removeLocked(conn)
	cm.mu.Unlock()
}

// clientGone handles a connection whose reader exited. The player leaves the
// lobby unless the server removed the connection itself.
func (cm *ConnectionManager) clientGone(conn *Connection) {
	cm.mu.Lock()
	removed := cm.removeLocked(conn)
	cm.mu.Unlock()

	if !removed || conn.dropped.Load() || cm.onDisconnect == nil {
		return
	}
	log.Info().
		Str("connection_id", conn.ID).
		Int64("player_id", conn.PlayerID).
		Int64("lobby_id", conn.LobbyID).
		Msg("client went away")
	cm.onDisconnect(conn.LobbyID, conn.PlayerID)
}

// sendTo queues data for a single connection if it is still registered
func (cm *ConnectionManager) sendTo(conn *Connection, data []byte) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.lobbyConnections[conn.LobbyID][conn.PlayerID] != conn {
		return
	}
	select {
	case conn.Send <- data:
	default:
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	for _, connections := range cm.lobbyConnections {
		totalConnections += len(connections)
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_lobbies":    len(cm.lobbyConnections),
	}
}

// IsConnected reports whether the player has a live connection in the lobby
func (cm *ConnectionManager) IsConnected(lobbyID, playerID int64) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.lobbyConnections[lobbyID][playerID]
	return ok
}

// writePump sends queued events and a heartbeat every PingInterval
func (c *Connection) writePump() {
	ticker := c.Manager.clock.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	heartbeat, _ := json.Marshal(events.Heartbeat("heartbeat"))

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(c.Manager.clock.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed by the server
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(c.Manager.clock.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, heartbeat); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send heartbeat")
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump watches for inbound traffic. Silence longer than IdleTimeout
// counts as the client being gone.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.clientGone(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(c.Manager.clock.Now().Add(c.Manager.config.IdleTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(c.Manager.clock.Now().Add(c.Manager.config.IdleTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.Conn.SetReadDeadline(c.Manager.clock.Now().Add(c.Manager.config.IdleTimeout))
		c.handleClientMessage(message)
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// handleClientMessage accepts keep-alives; the channel is otherwise push only
func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err == nil && (msg.Type == "ping" || msg.Type == "heartbeat") {
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Int64("player_id", c.PlayerID).
		Msg("unsupported client message")

	data, _ := json.Marshal(events.InvalidRequest("unsupported message"))
	c.Manager.sendTo(c, data)
}
