package repository

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mcdev12/matchmaker/go/internal/models"
)

// MemoryRepository keeps lobbies in process memory for single-instance deployments.
// Each lobby has its own mutex so read-modify-write sequences on one lobby are
// serialized while different lobbies proceed in parallel.
type MemoryRepository struct {
	mu      sync.RWMutex
	lobbies map[int64]*memoryEntry
	seq     atomic.Int64
}

type memoryEntry struct {
	mu      sync.Mutex
	lobby   *models.Lobby
	deleted bool
}

// NewMemoryRepository creates an empty in-memory lobby repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		lobbies: make(map[int64]*memoryEntry),
	}
}

// NextID hands out monotonically increasing lobby ids starting at 1
func (r *MemoryRepository) NextID(ctx context.Context) (int64, error) {
	return r.seq.Add(1), nil
}

// Get returns a copy of the stored lobby
func (r *MemoryRepository) Get(ctx context.Context, id int64) (*models.Lobby, error) {
	e := r.entry(id)
	if e == nil {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}
	return e.lobby.Clone(), nil
}

// Put inserts or replaces a lobby
func (r *MemoryRepository) Put(ctx context.Context, lobby *models.Lobby) error {
	r.mu.Lock()
	e, exists := r.lobbies[lobby.ID]
	if !exists {
		r.lobbies[lobby.ID] = &memoryEntry{lobby: lobby.Clone()}
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	e.mu.Lock()
	e.lobby = lobby.Clone()
	e.deleted = false
	e.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the lobby while holding that lobby's lock.
// Nothing is stored when fn returns an error.
func (r *MemoryRepository) Update(ctx context.Context, id int64, fn func(l *models.Lobby) error) (*models.Lobby, error) {
	e := r.entry(id)
	if e == nil {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}

	next := e.lobby.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.lobby = next
	return next.Clone(), nil
}

// Delete removes a lobby. Deleting a missing lobby is not an error.
func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	e, exists := r.lobbies[id]
	delete(r.lobbies, id)
	r.mu.Unlock()

	if exists {
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	return nil
}

// Scan returns copies of every stored lobby ordered by id
func (r *MemoryRepository) Scan(ctx context.Context) ([]*models.Lobby, error) {
	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.lobbies))
	for _, e := range r.lobbies {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	lobbies := make([]*models.Lobby, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			lobbies = append(lobbies, e.lobby.Clone())
		}
		e.mu.Unlock()
	}

	sortByID(lobbies)
	return lobbies, nil
}

func (r *MemoryRepository) entry(id int64) *memoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lobbies[id]
}
