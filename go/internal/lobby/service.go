package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/models"
)

// LobbyApp defines what the service layer needs from the lobby application
type LobbyApp interface {
	CreateLobby(ctx context.Context, req CreateLobbyRequest) (*models.Lobby, error)
	JoinLobby(ctx context.Context, lobbyID int64, req JoinLobbyRequest) (*models.Lobby, error)
	SpectateLobby(ctx context.Context, lobbyID int64, req JoinLobbyRequest) (*models.Lobby, error)
	LeaveLobby(ctx context.Context, lobbyID, playerID int64) error
	StartGame(ctx context.Context, lobbyID int64) (*models.Lobby, error)
	CloseGame(ctx context.Context, req CloseGameRequest) (*CloseGameResult, error)
	CloseLobby(ctx context.Context, lobbyID int64) error
	Notify(ctx context.Context, lobbyID int64, message string) error
	GetLobby(ctx context.Context, lobbyID int64) (*models.Lobby, error)
	GetLobbyByCreator(ctx context.Context, playerID int64) (*models.Lobby, error)
	FindOpenLobby(ctx context.Context) (*models.Lobby, error)
	ListLobbies(ctx context.Context, filter string) ([]*models.Lobby, error)
}

// Service exposes the lobby app over JSON HTTP
type Service struct {
	app LobbyApp
}

// NewService creates a new lobby HTTP service
func NewService(app LobbyApp) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the lobby HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /lobby", s.HandleCreate)
	mux.HandleFunc("GET /lobby", s.HandleList)
	mux.HandleFunc("GET /lobby/any", s.HandleFindOpen)
	mux.HandleFunc("GET /lobby/{id}", s.HandleGet)
	mux.HandleFunc("GET /lobby/creator/{id}", s.HandleGetByCreator)
	mux.HandleFunc("POST /lobby/{id}/join", s.HandleJoin)
	mux.HandleFunc("POST /lobby/{id}/spectate", s.HandleSpectate)
	mux.HandleFunc("POST /lobby/{id}/start", s.HandleStart)
	mux.HandleFunc("POST /lobby/{id}/close", s.HandleClose)
	mux.HandleFunc("POST /lobby/{id}/notify", s.HandleNotify)
	mux.HandleFunc("POST /lobby/leave", s.HandleLeave)
	mux.HandleFunc("POST /lobby/closeGame", s.HandleCloseGame)
	log.Info().Msg("lobby routes registered")
}

// HandleCreate handles POST /lobby
func (s *Service) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateLobbyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lobby, err := s.app.CreateLobby(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLobbyResponse(lobby))
}

// HandleList handles GET /lobby?filter=
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	lobbies, err := s.app.ListLobbies(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]LobbyResponse, 0, len(lobbies))
	for _, l := range lobbies {
		resp = append(resp, toLobbyResponse(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleFindOpen handles GET /lobby/any
func (s *Service) HandleFindOpen(w http.ResponseWriter, r *http.Request) {
	lobby, err := s.app.FindOpenLobby(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLobbyResponse(lobby))
}

// HandleGet handles GET /lobby/{id}
func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	lobby, err := s.app.GetLobby(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLobbyResponse(lobby))
}

// HandleGetByCreator handles GET /lobby/creator/{id}
func (s *Service) HandleGetByCreator(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	lobby, err := s.app.GetLobbyByCreator(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLobbyResponse(lobby))
}

// HandleJoin handles POST /lobby/{id}/join
func (s *Service) HandleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req JoinLobbyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lobby, err := s.app.JoinLobby(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLobbyResponse(lobby))
}

// HandleSpectate handles POST /lobby/{id}/spectate
func (s *Service) HandleSpectate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req JoinLobbyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lobby, err := s.app.SpectateLobby(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLobbyResponse(lobby))
}

// HandleStart handles POST /lobby/{id}/start. The response is written once
// the game server is running or provisioning has been given up.
func (s *Service) HandleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	lobby, err := s.app.StartGame(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLobbyResponse(lobby))
}

// HandleClose handles POST /lobby/{id}/close
func (s *Service) HandleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.app.CloseLobby(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleNotify handles POST /lobby/{id}/notify
func (s *Service) HandleNotify(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req NotifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.Notify(r.Context(), id, req.Message); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleLeave handles POST /lobby/leave
func (s *Service) HandleLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveLobbyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.LeaveLobby(r.Context(), req.LobbyID, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleCloseGame handles POST /lobby/closeGame
func (s *Service) HandleCloseGame(w http.ResponseWriter, r *http.Request) {
	var req CloseGameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.app.CloseGame(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("lobby request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("lobby request rejected")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
