package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/models"
)

const (
	natsLobbyKeyPrefix = "lobby."
	natsSequenceKey    = "seq.lobby"
)

// NATSConfig holds configuration for the JetStream key-value bucket
type NATSConfig struct {
	Bucket     string
	Replicas   int
	TTL        time.Duration // Idle lobbies expire after this long; zero keeps them forever
	MaxRetries int           // Compare-and-swap attempts before giving up
}

// DefaultNATSConfig returns default key-value bucket configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Bucket:     "LOBBIES",
		Replicas:   1,
		TTL:        6 * time.Hour,
		MaxRetries: 16,
	}
}

// NATSRepository stores lobbies in a JetStream key-value bucket so several
// matchmaker instances share one view. Updates are compare-and-swap on the
// entry revision, so concurrent writers on one lobby never lose updates.
type NATSRepository struct {
	kv     jetstream.KeyValue
	config NATSConfig
}

// NewNATSRepository creates or binds the lobby bucket
func NewNATSRepository(ctx context.Context, js jetstream.JetStream, config NATSConfig) (*NATSRepository, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: "Matchmaker lobby state",
		History:     1,
		TTL:         config.TTL,
		Storage:     jetstream.FileStorage,
		Replicas:    config.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("create key-value bucket: %w", err)
	}

	log.Info().Str("bucket", config.Bucket).Msg("lobby key-value bucket ready")
	return &NATSRepository{kv: kv, config: config}, nil
}

// NextID increments the shared lobby counter
func (r *NATSRepository) NextID(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		entry, err := r.kv.Get(ctx, natsSequenceKey)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			if _, err := r.kv.Create(ctx, natsSequenceKey, []byte("1")); err != nil {
				if isRevisionMismatch(err) {
					continue
				}
				return 0, fmt.Errorf("failed to create lobby sequence: %w", err)
			}
			return 1, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read lobby sequence: %w", err)
		}

		current, err := strconv.ParseInt(string(entry.Value()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt lobby sequence %q: %w", entry.Value(), err)
		}
		next := current + 1
		if _, err := r.kv.Update(ctx, natsSequenceKey, []byte(strconv.FormatInt(next, 10)), entry.Revision()); err != nil {
			if isRevisionMismatch(err) {
				continue
			}
			return 0, fmt.Errorf("failed to advance lobby sequence: %w", err)
		}
		return next, nil
	}
	return 0, ErrContention
}

// Get returns the stored lobby
func (r *NATSRepository) Get(ctx context.Context, id int64) (*models.Lobby, error) {
	lobby, _, err := r.get(ctx, id)
	return lobby, err
}

// Put inserts or replaces a lobby
func (r *NATSRepository) Put(ctx context.Context, lobby *models.Lobby) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby: %w", err)
	}
	if _, err := r.kv.Put(ctx, natsLobbyKey(lobby.ID), data); err != nil {
		return fmt.Errorf("failed to put lobby: %w", err)
	}
	return nil
}

// Update reads the lobby, applies fn, and writes it back only if nobody else
// wrote in between. Lost races are retried against the fresh value.
func (r *NATSRepository) Update(ctx context.Context, id int64, fn func(l *models.Lobby) error) (*models.Lobby, error) {
	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		lobby, revision, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(lobby); err != nil {
			return nil, err
		}

		data, err := json.Marshal(lobby)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lobby: %w", err)
		}
		if _, err := r.kv.Update(ctx, natsLobbyKey(id), data, revision); err != nil {
			if isRevisionMismatch(err) {
				log.Debug().Int64("lobby_id", id).Int("attempt", attempt+1).Msg("lobby revision changed, retrying update")
				continue
			}
			return nil, fmt.Errorf("failed to update lobby: %w", err)
		}
		return lobby, nil
	}
	return nil, ErrContention
}

// Delete removes a lobby
func (r *NATSRepository) Delete(ctx context.Context, id int64) error {
	if err := r.kv.Delete(ctx, natsLobbyKey(id)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete lobby: %w", err)
	}
	return nil
}

// Scan lists every lobby in the bucket ordered by id
func (r *NATSRepository) Scan(ctx context.Context) ([]*models.Lobby, error) {
	lister, err := r.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*models.Lobby{}, nil
		}
		return nil, fmt.Errorf("failed to list lobby keys: %w", err)
	}
	defer func() {
		if err := lister.Stop(); err != nil {
			log.Debug().Err(err).Msg("failed to stop key lister")
		}
	}()

	var ids []int64
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, natsLobbyKeyPrefix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(key, natsLobbyKeyPrefix), 10, 64)
		if err != nil {
			log.Warn().Str("key", key).Msg("skipping malformed lobby key")
			continue
		}
		ids = append(ids, id)
	}

	lobbies := make([]*models.Lobby, 0, len(ids))
	for _, id := range ids {
		lobby, _, err := r.get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// deleted between listing and reading
			continue
		}
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, lobby)
	}
	sortByID(lobbies)
	return lobbies, nil
}

func (r *NATSRepository) get(ctx context.Context, id int64) (*models.Lobby, uint64, error) {
	entry, err := r.kv.Get(ctx, natsLobbyKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to get lobby: %w", err)
	}

	var lobby models.Lobby
	if err := json.Unmarshal(entry.Value(), &lobby); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal lobby: %w", err)
	}
	return &lobby, entry.Revision(), nil
}

func natsLobbyKey(id int64) string {
	return natsLobbyKeyPrefix + strconv.FormatInt(id, 10)
}

// isRevisionMismatch reports whether a write lost a compare-and-swap race
func isRevisionMismatch(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
