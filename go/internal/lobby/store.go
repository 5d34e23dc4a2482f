package lobby

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/lobby/repository"
	"github.com/mcdev12/matchmaker/go/internal/models"
)

// Repository defines what the lobby store needs from persistence.
// Update must serialize concurrent calls for the same id.
type Repository interface {
	NextID(ctx context.Context) (int64, error)
	Get(ctx context.Context, id int64) (*models.Lobby, error)
	Put(ctx context.Context, lobby *models.Lobby) error
	Update(ctx context.Context, id int64, fn func(l *models.Lobby) error) (*models.Lobby, error)
	Delete(ctx context.Context, id int64) error
	Scan(ctx context.Context) ([]*models.Lobby, error)
}

// Store is the authoritative record of lobbies. It owns membership rules
// (capacity, passwords, one seat per player) and leaves lifecycle side
// effects to the App.
type Store struct {
	repo     Repository
	clock    clockwork.Clock
	capacity int
	players  *keyedMutex
}

// NewStore creates a lobby store over repo
func NewStore(repo Repository, clock clockwork.Clock, capacity int) *Store {
	if capacity <= 0 {
		capacity = models.DefaultLobbyCapacity
	}
	return &Store{
		repo:     repo,
		clock:    clock,
		capacity: capacity,
		players:  newKeyedMutex(),
	}
}

// Create opens a lobby seated with its creator. If the creator already holds a
// seat somewhere, that lobby is returned instead and created is false.
func (s *Store) Create(ctx context.Context, creatorID int64, name, password, regionAddress string) (lobby *models.Lobby, created bool, err error) {
	unlock := s.players.Lock(creatorID)
	defer unlock()

	existing, err := s.FindByPlayer(ctx, creatorID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	id, err := s.repo.NextID(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to allocate lobby id: %v", ErrStore, err)
	}

	lobby = models.NewLobby(id, creatorID, name, password, regionAddress, s.capacity, s.clock.Now().UTC())
	if err := s.repo.Put(ctx, lobby); err != nil {
		return nil, false, fmt.Errorf("%w: failed to save lobby: %v", ErrStore, err)
	}

	log.Info().
		Int64("lobby_id", id).
		Int64("player_id", creatorID).
		Str("name", name).
		Msg("lobby created")
	return lobby, true, nil
}

// Join seats a player. Joining a lobby the player already sits in is a no-op
// and reports joined as false.
func (s *Store) Join(ctx context.Context, lobbyID, playerID int64, password, regionAddress string) (lobby *models.Lobby, joined bool, err error) {
	// held until the seat commits so the player cannot be seated twice
	unlock := s.players.Lock(playerID)
	defer unlock()

	elsewhere, err := s.FindByPlayer(ctx, playerID)
	if err != nil {
		return nil, false, err
	}
	if elsewhere != nil && elsewhere.ID != lobbyID {
		return nil, false, ErrAlreadyInLobby
	}

	lobby, err = s.Mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if !l.CheckPassword(password) {
			return ErrBadPassword
		}
		if l.IsPlayer(playerID) {
			joined = false
			return nil
		}
		if l.State != models.LobbyStateOpen || l.Occupants() >= l.Capacity {
			return ErrLobbyFull
		}
		l.Remove(playerID) // a spectator taking a seat stops spectating
		l.AddPlayer(playerID, regionAddress)
		l.RecomputeOccupancy()
		joined = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return lobby, joined, nil
}

// Spectate adds a watcher. Spectators are uncapped and never affect Open/Full.
func (s *Store) Spectate(ctx context.Context, lobbyID, playerID int64, password string) (lobby *models.Lobby, added bool, err error) {
	lobby, err = s.Mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if !l.CheckPassword(password) {
			return ErrBadPassword
		}
		if l.IsMember(playerID) {
			added = false
			return nil
		}
		l.AddSpectator(playerID)
		added = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return lobby, added, nil
}

// Leave removes a player or spectator. A lobby left with nobody in it before
// its game went Active is marked Closed; the caller tears it down.
func (s *Store) Leave(ctx context.Context, lobbyID, playerID int64) (lobby *models.Lobby, left bool, err error) {
	lobby, err = s.Mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if !l.Remove(playerID) {
			left = false
			return nil
		}
		left = true
		if l.IsEmpty() && l.State != models.LobbyStateActive {
			l.State = models.LobbyStateClosed
			return nil
		}
		l.RecomputeOccupancy()
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return lobby, left, nil
}

// Mutate applies fn atomically to a non-closed lobby
func (s *Store) Mutate(ctx context.Context, lobbyID int64, fn func(l *models.Lobby) error) (*models.Lobby, error) {
	lobby, err := s.repo.Update(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State == models.LobbyStateClosed {
			return ErrLobbyNotFound
		}
		if err := fn(l); err != nil {
			return err
		}
		l.UpdatedAt = s.clock.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return lobby, nil
}

// Get returns a lobby that has not been closed
func (s *Store) Get(ctx context.Context, lobbyID int64) (*models.Lobby, error) {
	lobby, err := s.repo.Get(ctx, lobbyID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if lobby.State == models.LobbyStateClosed {
		return nil, ErrLobbyNotFound
	}
	return lobby, nil
}

// Delete removes the lobby record
func (s *Store) Delete(ctx context.Context, lobbyID int64) error {
	if err := s.repo.Delete(ctx, lobbyID); err != nil {
		return fmt.Errorf("%w: failed to delete lobby: %v", ErrStore, err)
	}
	return nil
}

// FindOpen returns the first open lobby with exactly one seated player, or nil
func (s *Store) FindOpen(ctx context.Context) (*models.Lobby, error) {
	return s.find(ctx, func(l *models.Lobby) bool {
		return l.State == models.LobbyStateOpen && l.Occupants() == 1
	})
}

// GetByCreator returns the lobby whose first seat belongs to playerID, or nil
func (s *Store) GetByCreator(ctx context.Context, playerID int64) (*models.Lobby, error) {
	return s.find(ctx, func(l *models.Lobby) bool {
		return l.CreatorID() == playerID
	})
}

// FindByPlayer returns the lobby where playerID holds a seat, or nil
func (s *Store) FindByPlayer(ctx context.Context, playerID int64) (*models.Lobby, error) {
	return s.find(ctx, func(l *models.Lobby) bool {
		return l.IsPlayer(playerID)
	})
}

// List returns live lobbies whose name contains filter, ignoring case
func (s *Store) List(ctx context.Context, filter string) ([]*models.Lobby, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	lobbies := make([]*models.Lobby, 0, len(all))
	for _, l := range all {
		if l.MatchesFilter(filter) {
			lobbies = append(lobbies, l)
		}
	}
	return lobbies, nil
}

func (s *Store) find(ctx context.Context, match func(l *models.Lobby) bool) (*models.Lobby, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range all {
		if match(l) {
			return l, nil
		}
	}
	return nil, nil
}

// scan returns every non-closed lobby ordered by id
func (s *Store) scan(ctx context.Context) ([]*models.Lobby, error) {
	all, err := s.repo.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan lobbies: %v", ErrStore, err)
	}
	live := all[:0]
	for _, l := range all {
		if l.State != models.LobbyStateClosed {
			live = append(live, l)
		}
	}
	return live, nil
}

func mapRepositoryError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrLobbyNotFound
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalid):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
}
