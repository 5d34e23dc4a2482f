package lobby

import (
	"time"

	"github.com/mcdev12/matchmaker/go/internal/models"
)

// CreateLobbyRequest represents the data needed to open a lobby
type CreateLobbyRequest struct {
	CreatorID int64  `json:"creatorId"`
	Name      string `json:"name"`
	Password  string `json:"password,omitempty"`
}

// JoinLobbyRequest is used to take a seat or to spectate
type JoinLobbyRequest struct {
	PlayerID int64  `json:"playerId"`
	Password string `json:"password,omitempty"`
}

type LeaveLobbyRequest struct {
	LobbyID  int64 `json:"lobbyId"`
	PlayerID int64 `json:"playerId"`
}

// CloseGameRequest is reported by the game server when a match ends
type CloseGameRequest struct {
	RequestID string  `json:"requestId"`
	Winner    int64   `json:"winner"`
	Losers    []int64 `json:"losers"`
}

// CloseGameResult lists losers whose rating could not be updated
type CloseGameResult struct {
	LobbyID      int64   `json:"lobbyId"`
	Winner       int64   `json:"winner"`
	FailedLosers []int64 `json:"failedLosers"`
}

type NotifyRequest struct {
	Message string `json:"message"`
}

// LobbyResponse is the public view of a lobby. The password never leaves the server.
type LobbyResponse struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	HasPassword   bool      `json:"hasPassword"`
	Players       []int64   `json:"players"`
	Spectators    []int64   `json:"spectators"`
	Capacity      int       `json:"capacity"`
	State         string    `json:"state"`
	ServerAddress string    `json:"serverAddress,omitempty"`
	RequestID     string    `json:"requestId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toLobbyResponse(l *models.Lobby) LobbyResponse {
	resp := LobbyResponse{
		ID:            l.ID,
		Name:          l.Name,
		HasPassword:   l.HasPassword(),
		Players:       l.Players,
		Spectators:    l.Spectators,
		Capacity:      l.Capacity,
		State:         string(l.State),
		ServerAddress: l.ServerAddress(),
		CreatedAt:     l.CreatedAt,
	}
	if resp.Players == nil {
		resp.Players = []int64{}
	}
	if resp.Spectators == nil {
		resp.Spectators = []int64{}
	}
	if l.Deployment != nil {
		resp.RequestID = l.Deployment.RequestID
	}
	return resp
}
