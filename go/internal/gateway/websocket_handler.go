package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/lobby/events"
)

// MembershipChecker decides who may attach to a lobby's event stream
type MembershipChecker interface {
	IsMember(ctx context.Context, lobbyID, playerID int64) (bool, error)
}

// WebSocketHandler handles WebSocket upgrade requests for lobby connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	members           MembershipChecker
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, members MembershipChecker) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		members:           members,
	}
}

// HandleLobbyConnection handles GET /ws/lobby/{id}?playerId=
func (h *WebSocketHandler) HandleLobbyConnection(w http.ResponseWriter, r *http.Request) {
	lobbyID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid lobby id", http.StatusBadRequest)
		return
	}
	playerID, err := strconv.ParseInt(r.URL.Query().Get("playerId"), 10, 64)
	if err != nil {
		http.Error(w, "playerId is required", http.StatusBadRequest)
		return
	}

	member, err := h.members.IsMember(r.Context(), lobbyID, playerID)
	if err != nil || !member {
		// Tell the client why over the socket itself, then hang up
		reason := events.LobbyNotFound()
		if err == nil {
			reason = events.InvalidRequest("player is not in this lobby")
		}
		h.reject(w, r, reason)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, lobbyID, playerID); err != nil {
		log.Error().
			Err(err).
			Int64("lobby_id", lobbyID).
			Int64("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

func (h *WebSocketHandler) reject(w http.ResponseWriter, r *http.Request, event events.Event) {
	conn, err := h.connectionManager.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("failed to upgrade rejected connection")
		return
	}
	defer conn.Close()

	deadline := time.Now().Add(h.connectionManager.config.WriteTimeout)
	conn.SetWriteDeadline(deadline)
	data, _ := json.Marshal(event)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Debug().Err(err).Msg("failed to send rejection")
		return
	}
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, event.Message), deadline)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/lobby/{id}", h.HandleLobbyConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
