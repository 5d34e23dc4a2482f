package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/lobby/events"
	"github.com/mcdev12/matchmaker/go/internal/models"
	"github.com/mcdev12/matchmaker/go/internal/provisioner"
)

// Broadcaster defines what the app needs from the realtime gateway
type Broadcaster interface {
	Broadcast(ctx context.Context, lobbyID int64, event events.Event)
	Disconnect(ctx context.Context, lobbyID, playerID int64)
	CloseLobby(ctx context.Context, lobbyID int64)
}

// Provisioner defines what the app needs to run dedicated game servers
type Provisioner interface {
	StartSession(ctx context.Context, lobby *models.Lobby) (string, error)
	PollStatus(ctx context.Context, requestID string) provisioner.Status
	StopSession(ctx context.Context, requestID string) bool
}

// ProfileClient defines what the app needs from the player profile service
type ProfileClient interface {
	GetPlayerRegionIP(ctx context.Context, playerID int64) (string, error)
	UpdatePlayerRating(ctx context.Context, playerID int64, delta int) error
}

// Config tunes the game lifecycle
type Config struct {
	PollAttempts      int
	PollInterval      time.Duration
	WinnerRatingDelta int
	LoserRatingDelta  int
	DisconnectTimeout time.Duration
}

// DefaultConfig returns the default lifecycle configuration
func DefaultConfig() Config {
	return Config{
		PollAttempts:      10,
		PollInterval:      2 * time.Second,
		WinnerRatingDelta: 25,
		LoserRatingDelta:  -25,
		DisconnectTimeout: 10 * time.Second,
	}
}

// App drives lobbies through their lifecycle: membership changes, game server
// provisioning, and teardown, notifying connected clients along the way.
type App struct {
	store       *Store
	broadcaster Broadcaster
	provisioner Provisioner
	profiles    ProfileClient
	clock       clockwork.Clock
	config      Config
}

// NewApp creates a new lobby app
func NewApp(store *Store, broadcaster Broadcaster, provisioner Provisioner, profiles ProfileClient, clock clockwork.Clock, config Config) *App {
	if config.PollAttempts <= 0 {
		config.PollAttempts = 1
	}
	return &App{
		store:       store,
		broadcaster: broadcaster,
		provisioner: provisioner,
		profiles:    profiles,
		clock:       clock,
		config:      config,
	}
}

// CreateLobby opens a lobby for creatorID, or returns the lobby the creator
// already sits in.
func (a *App) CreateLobby(ctx context.Context, req CreateLobbyRequest) (*models.Lobby, error) {
	if req.CreatorID == 0 {
		return nil, fmt.Errorf("%w: creatorId is required", ErrInvalid)
	}

	existing, err := a.store.FindByPlayer(ctx, req.CreatorID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	region, err := a.regionAddress(ctx, req.CreatorID)
	if err != nil {
		return nil, err
	}

	lobby, _, err := a.store.Create(ctx, req.CreatorID, req.Name, req.Password, region)
	return lobby, err
}

// JoinLobby seats a player and tells everyone already connected
func (a *App) JoinLobby(ctx context.Context, lobbyID int64, req JoinLobbyRequest) (*models.Lobby, error) {
	if req.PlayerID == 0 {
		return nil, fmt.Errorf("%w: playerId is required", ErrInvalid)
	}

	// fail fast before calling out to the profile service
	current, err := a.store.Get(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if !current.CheckPassword(req.Password) {
		return nil, ErrBadPassword
	}
	if current.IsPlayer(req.PlayerID) {
		return current, nil
	}

	region, err := a.regionAddress(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}

	lobby, joined, err := a.store.Join(ctx, lobbyID, req.PlayerID, req.Password, region)
	if err != nil {
		return nil, err
	}
	if joined {
		log.Info().Int64("lobby_id", lobbyID).Int64("player_id", req.PlayerID).Str("state", string(lobby.State)).Msg("player joined lobby")
		a.broadcaster.Broadcast(ctx, lobbyID, events.PlayerJoined(req.PlayerID))
	}
	return lobby, nil
}

// SpectateLobby adds a spectator
func (a *App) SpectateLobby(ctx context.Context, lobbyID int64, req JoinLobbyRequest) (*models.Lobby, error) {
	if req.PlayerID == 0 {
		return nil, fmt.Errorf("%w: playerId is required", ErrInvalid)
	}

	lobby, added, err := a.store.Spectate(ctx, lobbyID, req.PlayerID, req.Password)
	if err != nil {
		return nil, err
	}
	if added {
		a.broadcaster.Broadcast(ctx, lobbyID, events.SpectatorJoined(req.PlayerID))
	}
	return lobby, nil
}

// LeaveLobby removes a player or spectator. Leaving a lobby you are not in is
// not an error.
func (a *App) LeaveLobby(ctx context.Context, lobbyID, playerID int64) error {
	lobby, left, err := a.store.Leave(ctx, lobbyID, playerID)
	if err != nil {
		return err
	}
	if !left {
		return nil
	}

	log.Info().Int64("lobby_id", lobbyID).Int64("player_id", playerID).Str("state", string(lobby.State)).Msg("player left lobby")
	a.broadcaster.Broadcast(ctx, lobbyID, events.PlayerLeft(playerID))
	a.broadcaster.Disconnect(ctx, lobbyID, playerID)

	switch {
	case lobby.State == models.LobbyStateClosed:
		a.teardown(ctx, lobby)
	case lobby.State == models.LobbyStateActive && lobby.IsEmpty():
		// closeGame can no longer find this lobby; only an admin close stops its server
		evt := log.Warn().Int64("lobby_id", lobbyID)
		if lobby.Deployment != nil {
			evt = evt.Str("request_id", lobby.Deployment.RequestID)
		}
		evt.Msg("active lobby has no members left")
	}
	return nil
}

// HandleDisconnect is called by the gateway when a client connection dies
// without the player leaving explicitly.
func (a *App) HandleDisconnect(lobbyID, playerID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.DisconnectTimeout)
	defer cancel()

	if err := a.LeaveLobby(ctx, lobbyID, playerID); err != nil && !errors.Is(err, ErrNotFound) {
		log.Error().Err(err).Int64("lobby_id", lobbyID).Int64("player_id", playerID).Msg("failed to remove disconnected player")
	}
}

// IsMember reports whether playerID may attach to the lobby's notification stream
func (a *App) IsMember(ctx context.Context, lobbyID, playerID int64) (bool, error) {
	lobby, err := a.store.Get(ctx, lobbyID)
	if err != nil {
		return false, err
	}
	return lobby.IsMember(playerID), nil
}

// StartGame provisions a game server for a full lobby and blocks until the
// server is running or provisioning is given up. Cancelling ctx does not
// abandon a provisioning request already sent.
func (a *App) StartGame(ctx context.Context, lobbyID int64) (*models.Lobby, error) {
	lobby, err := a.store.Mutate(ctx, lobbyID, func(l *models.Lobby) error {
		switch l.State {
		case models.LobbyStateFull:
		case models.LobbyStateStarting, models.LobbyStateActive:
			return ErrAlreadyStarted
		default:
			return ErrWrongOccupancy
		}
		if l.Occupants() != l.Capacity {
			return ErrWrongOccupancy
		}
		l.State = models.LobbyStateStarting
		l.Deployment = &models.Deployment{Status: models.DeploymentStatusRequesting}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("lobby_id", lobbyID).Msg("starting game")
	a.broadcaster.Broadcast(ctx, lobbyID, events.GameIsStarting())

	ctx = context.WithoutCancel(ctx)

	requestID, err := a.provisioner.StartSession(ctx, lobby)
	if err != nil {
		log.Error().Err(err).Int64("lobby_id", lobbyID).Msg("failed to request game server")
		a.abortStart(ctx, lobbyID, "")
		return nil, fmt.Errorf("%w: %v", ErrProvisioningSubmit, err)
	}

	_, err = a.store.Mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State != models.LobbyStateStarting {
			return ErrLobbyNotFound
		}
		l.Deployment = &models.Deployment{RequestID: requestID, Status: models.DeploymentStatusPending}
		return nil
	})
	if err != nil {
		a.stopSession(ctx, lobbyID, requestID)
		return nil, err
	}

	status, ok := a.awaitRunning(ctx, lobbyID, requestID)
	if !ok {
		a.abortStart(ctx, lobbyID, requestID)
		return nil, ErrProvisioningFailed
	}

	lobby, err = a.store.Mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State != models.LobbyStateStarting {
			return ErrLobbyNotFound
		}
		l.State = models.LobbyStateActive
		l.Deployment = &models.Deployment{
			RequestID: requestID,
			Hostname:  status.Host,
			Port:      status.Port,
			Status:    models.DeploymentStatusRunning,
		}
		return nil
	})
	if err != nil {
		// the lobby emptied out while the server was booting
		a.stopSession(ctx, lobbyID, requestID)
		return nil, err
	}

	address := lobby.ServerAddress()
	log.Info().Int64("lobby_id", lobbyID).Str("request_id", requestID).Str("address", address).Msg("game server running")
	a.broadcaster.Broadcast(ctx, lobbyID, events.GameStarted(address))
	return lobby, nil
}

// awaitRunning polls the deployment up to PollAttempts times, waiting
// PollInterval between attempts.
func (a *App) awaitRunning(ctx context.Context, lobbyID int64, requestID string) (provisioner.Status, bool) {
	for attempt := 1; attempt <= a.config.PollAttempts; attempt++ {
		status := a.provisioner.PollStatus(ctx, requestID)
		switch status.Phase {
		case provisioner.PhaseRunning:
			return status, true
		case provisioner.PhaseFailed:
			log.Warn().Int64("lobby_id", lobbyID).Str("request_id", requestID).Str("reason", status.Reason).Msg("game server failed to deploy")
			return status, false
		}

		log.Debug().Int64("lobby_id", lobbyID).Str("request_id", requestID).Int("attempt", attempt).Msg("game server not ready")
		if attempt == a.config.PollAttempts {
			break
		}

		select {
		case <-a.clock.After(a.config.PollInterval):
		case <-ctx.Done():
			return provisioner.Status{}, false
		}
	}
	return provisioner.Status{}, false
}

// abortStart puts a lobby whose game could not start back to its pre-start
// occupancy and reports the failure to its clients once.
func (a *App) abortStart(ctx context.Context, lobbyID int64, requestID string) {
	if requestID != "" {
		a.stopSession(ctx, lobbyID, requestID)
	}

	_, err := a.store.Mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State != models.LobbyStateStarting {
			return nil
		}
		l.Deployment = nil
		l.State = models.LobbyStateOpen
		l.RecomputeOccupancy()
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Error().Err(err).Int64("lobby_id", lobbyID).Msg("failed to revert lobby after failed start")
	}

	a.broadcaster.Broadcast(ctx, lobbyID, events.ProvisioningError())
}

// CloseGame ends a finished match: the lobby is closed, its server stopped and
// ratings forwarded. A winner rating failure fails the call; loser failures
// are reported in the result.
func (a *App) CloseGame(ctx context.Context, req CloseGameRequest) (*CloseGameResult, error) {
	if req.Winner == 0 {
		return nil, fmt.Errorf("%w: winner is required", ErrInvalid)
	}

	lobby, err := a.store.FindByPlayer(ctx, req.Winner)
	if err != nil {
		return nil, err
	}
	if lobby == nil {
		return nil, ErrLobbyNotFound
	}

	lobby, err = a.store.Mutate(ctx, lobby.ID, func(l *models.Lobby) error {
		if l.State != models.LobbyStateActive && l.State != models.LobbyStateStarting {
			return ErrGameNotStarted
		}
		if req.RequestID != "" && (l.Deployment == nil || l.Deployment.RequestID != req.RequestID) {
			return ErrDeploymentMismatch
		}
		l.State = models.LobbyStateClosed
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("lobby_id", lobby.ID).Int64("winner", req.Winner).Ints64("losers", req.Losers).Msg("closing game")
	a.teardown(ctx, lobby)

	result := &CloseGameResult{LobbyID: lobby.ID, Winner: req.Winner, FailedLosers: []int64{}}
	if err := a.profiles.UpdatePlayerRating(ctx, req.Winner, a.config.WinnerRatingDelta); err != nil {
		log.Error().Err(err).Int64("player_id", req.Winner).Msg("failed to update winner rating")
		return nil, fmt.Errorf("%w: winner %d: %v", ErrRatingUpdate, req.Winner, err)
	}
	for _, loser := range req.Losers {
		if err := a.profiles.UpdatePlayerRating(ctx, loser, a.config.LoserRatingDelta); err != nil {
			log.Warn().Err(err).Int64("player_id", loser).Msg("failed to update loser rating")
			result.FailedLosers = append(result.FailedLosers, loser)
		}
	}
	return result, nil
}

// CloseLobby closes a lobby regardless of its state
func (a *App) CloseLobby(ctx context.Context, lobbyID int64) error {
	lobby, err := a.store.Mutate(ctx, lobbyID, func(l *models.Lobby) error {
		l.State = models.LobbyStateClosed
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Int64("lobby_id", lobbyID).Msg("closing lobby")
	a.teardown(ctx, lobby)
	return nil
}

// Notify relays an operator message to everyone connected to a lobby
func (a *App) Notify(ctx context.Context, lobbyID int64, message string) error {
	if message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalid)
	}
	if _, err := a.store.Get(ctx, lobbyID); err != nil {
		return err
	}
	a.broadcaster.Broadcast(ctx, lobbyID, events.Heartbeat(message))
	return nil
}

// GetLobby returns a live lobby
func (a *App) GetLobby(ctx context.Context, lobbyID int64) (*models.Lobby, error) {
	return a.store.Get(ctx, lobbyID)
}

// GetLobbyByCreator returns the lobby created by playerID
func (a *App) GetLobbyByCreator(ctx context.Context, playerID int64) (*models.Lobby, error) {
	lobby, err := a.store.GetByCreator(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if lobby == nil {
		return nil, ErrLobbyNotFound
	}
	return lobby, nil
}

// FindOpenLobby returns a lobby waiting for an opponent
func (a *App) FindOpenLobby(ctx context.Context) (*models.Lobby, error) {
	lobby, err := a.store.FindOpen(ctx)
	if err != nil {
		return nil, err
	}
	if lobby == nil {
		return nil, ErrLobbyNotFound
	}
	return lobby, nil
}

// ListLobbies returns live lobbies filtered by name
func (a *App) ListLobbies(ctx context.Context, filter string) ([]*models.Lobby, error) {
	return a.store.List(ctx, filter)
}

// teardown notifies and disconnects a closed lobby's clients, stops a running
// server and forgets the lobby. A server still booting is stopped by StartGame.
func (a *App) teardown(ctx context.Context, lobby *models.Lobby) {
	a.broadcaster.Broadcast(ctx, lobby.ID, events.LobbyClosed())
	a.broadcaster.CloseLobby(ctx, lobby.ID)

	if d := lobby.Deployment; d != nil && d.RequestID != "" && d.Status == models.DeploymentStatusRunning {
		a.stopSession(ctx, lobby.ID, d.RequestID)
	}

	if err := a.store.Delete(ctx, lobby.ID); err != nil {
		log.Error().Err(err).Int64("lobby_id", lobby.ID).Msg("failed to delete closed lobby")
	}
}

func (a *App) stopSession(ctx context.Context, lobbyID int64, requestID string) {
	if !a.provisioner.StopSession(ctx, requestID) {
		log.Warn().Int64("lobby_id", lobbyID).Str("request_id", requestID).Msg("failed to stop game server")
	}
}

func (a *App) regionAddress(ctx context.Context, playerID int64) (string, error) {
	region, err := a.profiles.GetPlayerRegionIP(ctx, playerID)
	if err != nil {
		log.Error().Err(err).Int64("player_id", playerID).Msg("failed to look up region address")
		return "", fmt.Errorf("%w: player %d: %v", ErrRegionLookup, playerID, err)
	}
	return region, nil
}
