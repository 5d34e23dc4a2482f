package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/models"
	"github.com/mcdev12/matchmaker/go/internal/sqlutil"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS lobbies (
		id         BIGINT PRIMARY KEY,
		data       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE SEQUENCE IF NOT EXISTS lobby_id_seq`,
}

// PostgresRepository stores lobbies as JSONB rows so instances sharing a
// database see the same lobbies. Updates lock the row for their duration.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository ensures the schema exists
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (*PostgresRepository, error) {
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to apply lobby schema: %w", err)
		}
	}
	log.Info().Msg("lobby schema ready")
	return &PostgresRepository{pool: pool}, nil
}

// NextID draws from the lobby id sequence
func (r *PostgresRepository) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('lobby_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to draw lobby id: %w", err)
	}
	return id, nil
}

// Get returns the stored lobby
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Lobby, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM lobbies WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lobby: %w", err)
	}
	return decodeLobby(data)
}

// Put inserts or replaces a lobby
func (r *PostgresRepository) Put(ctx context.Context, lobby *models.Lobby) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO lobbies (id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, lobby.ID, data)
	if err != nil {
		return fmt.Errorf("failed to put lobby: %w", err)
	}
	return nil
}

// Update locks the row, applies fn and writes the result in one transaction
func (r *PostgresRepository) Update(ctx context.Context, id int64, fn func(l *models.Lobby) error) (*models.Lobby, error) {
	var updated *models.Lobby
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		var data []byte
		err := tx.QueryRow(ctx, `SELECT data FROM lobbies WHERE id = $1 FOR UPDATE`, id).Scan(&data)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock lobby: %w", err)
		}

		lobby, err := decodeLobby(data)
		if err != nil {
			return err
		}
		if err := fn(lobby); err != nil {
			return err
		}

		next, err := json.Marshal(lobby)
		if err != nil {
			return fmt.Errorf("failed to marshal lobby: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE lobbies SET data = $2, updated_at = now() WHERE id = $1`, id, next); err != nil {
			return fmt.Errorf("failed to update lobby: %w", err)
		}
		updated = lobby
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a lobby row
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM lobbies WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete lobby: %w", err)
	}
	return nil
}

// Scan returns every lobby ordered by id
func (r *PostgresRepository) Scan(ctx context.Context) ([]*models.Lobby, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM lobbies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan lobbies: %w", err)
	}
	defer rows.Close()

	lobbies := []*models.Lobby{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to read lobby row: %w", err)
		}
		lobby, err := decodeLobby(data)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, lobby)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lobbies: %w", err)
	}
	return lobbies, nil
}

func decodeLobby(data []byte) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := json.Unmarshal(data, &lobby); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lobby: %w", err)
	}
	return &lobby, nil
}

func sortByID(lobbies []*models.Lobby) {
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].ID < lobbies[j].ID })
}
