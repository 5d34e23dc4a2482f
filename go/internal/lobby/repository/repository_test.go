package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mcdev12/matchmaker/go/internal/models"
)

type lobbyRepository interface {
	NextID(ctx context.Context) (int64, error)
	Get(ctx context.Context, id int64) (*models.Lobby, error)
	Put(ctx context.Context, lobby *models.Lobby) error
	Update(ctx context.Context, id int64, fn func(l *models.Lobby) error) (*models.Lobby, error)
	Delete(ctx context.Context, id int64) error
	Scan(ctx context.Context) ([]*models.Lobby, error)
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, NewMemoryRepository())
}

func TestNATSRepository(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}
	ctx := context.Background()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect to NATS: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("create JetStream context: %v", err)
	}

	cfg := DefaultNATSConfig()
	cfg.Bucket = fmt.Sprintf("LOBBIES_TEST_%d", time.Now().UnixNano())
	repo, err := NewNATSRepository(ctx, js, cfg)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { _ = js.DeleteKeyValue(context.Background(), cfg.Bucket) })

	runRepositoryContract(t, repo)
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect to database: %v", err)
	}
	t.Cleanup(pool.Close)

	repo, err := NewPostgresRepository(ctx, pool)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE lobbies`); err != nil {
		t.Fatalf("truncate lobbies: %v", err)
	}

	runRepositoryContract(t, repo)
}

func runRepositoryContract(t *testing.T, repo lobbyRepository) {
	ctx := context.Background()

	newLobby := func(t *testing.T, creator int64) *models.Lobby {
		t.Helper()
		id, err := repo.NextID(ctx)
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		l := models.NewLobby(id, creator, fmt.Sprintf("lobby-%d", creator), "", "10.0.0.1", 2, time.Now().UTC())
		if err := repo.Put(ctx, l); err != nil {
			t.Fatalf("put: %v", err)
		}
		return l
	}

	t.Run("ids increase", func(t *testing.T) {
		a, err := repo.NextID(ctx)
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		b, err := repo.NextID(ctx)
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if b <= a {
			t.Fatalf("expected increasing ids, got %d then %d", a, b)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		if _, err := repo.Get(ctx, 1<<62); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		_, err := repo.Update(ctx, 1<<62, func(l *models.Lobby) error { return nil })
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on update, got %v", err)
		}
	})

	t.Run("update failure stores nothing", func(t *testing.T) {
		l := newLobby(t, 11)
		boom := errors.New("boom")

		_, err := repo.Update(ctx, l.ID, func(l *models.Lobby) error {
			l.AddPlayer(12, "10.0.0.2")
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}

		got, err := repo.Get(ctx, l.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got.Players) != 1 {
			t.Fatalf("failed update leaked players %v", got.Players)
		}
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		l := newLobby(t, 21)
		const writers = 20

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(spectator int64) {
				defer wg.Done()
				_, err := repo.Update(ctx, l.ID, func(l *models.Lobby) error {
					l.AddSpectator(spectator)
					return nil
				})
				if err != nil {
					t.Errorf("update: %v", err)
				}
			}(int64(1000 + i))
		}
		wg.Wait()

		got, err := repo.Get(ctx, l.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got.Spectators) != writers {
			t.Fatalf("expected %d spectators, got %d", writers, len(got.Spectators))
		}
	})

	t.Run("delete and scan", func(t *testing.T) {
		a := newLobby(t, 31)
		b := newLobby(t, 32)

		if err := repo.Delete(ctx, a.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := repo.Delete(ctx, a.ID); err != nil {
			t.Fatalf("second delete should be a no-op: %v", err)
		}
		if _, err := repo.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected deleted lobby to be gone, got %v", err)
		}

		all, err := repo.Scan(ctx)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		var sawB bool
		for i, l := range all {
			if l.ID == a.ID {
				t.Fatal("scan returned a deleted lobby")
			}
			if l.ID == b.ID {
				sawB = true
			}
			if i > 0 && all[i-1].ID >= l.ID {
				t.Fatal("scan is not ordered by id")
			}
		}
		if !sawB {
			t.Fatal("scan missed a stored lobby")
		}
	})
}
