package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/matchmaker/go/internal/lobby/repository"
	"github.com/mcdev12/matchmaker/go/internal/models"
)

func newTestStore(capacity int) *Store {
	return NewStore(repository.NewMemoryRepository(), clockwork.NewFakeClock(), capacity)
}

func TestCreateIsIdempotentPerCreator(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()

	first, created, err := s.Create(ctx, 1, "first", "", "10.0.0.1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("expected the first create to create")
	}

	second, created, err := s.Create(ctx, 1, "second", "", "10.0.0.1")
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected lobby %d again, got %d (created=%v)", first.ID, second.ID, created)
	}
}

func TestConcurrentCreateBySameCreator(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()

	ids := make(chan int64, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, _, err := s.Create(ctx, 7, "race", "", "")
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids <- l.ID
		}()
	}
	wg.Wait()
	close(ids)

	var want int64
	for id := range ids {
		if want == 0 {
			want = id
		}
		if id != want {
			t.Fatalf("creator ended up with lobbies %d and %d", want, id)
		}
	}
}

func TestJoinFillsLobby(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()
	l, _, _ := s.Create(ctx, 1, "duel", "", "10.0.0.1")

	joined, ok, err := s.Join(ctx, l.ID, 2, "", "10.0.0.2")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !ok {
		t.Fatal("expected join to report a new seat")
	}
	if joined.State != models.LobbyStateFull {
		t.Fatalf("expected full, got %s", joined.State)
	}
	if got := joined.RegionAddresses; len(got) != 2 || got[1] != "10.0.0.2" {
		t.Fatalf("unexpected region addresses %v", got)
	}

	if _, _, err := s.Join(ctx, l.ID, 3, "", ""); !errors.Is(err, ErrLobbyFull) {
		t.Fatalf("expected ErrLobbyFull, got %v", err)
	}

	again, ok, err := s.Join(ctx, l.ID, 2, "", "")
	if err != nil || ok {
		t.Fatalf("rejoin should be a no-op, got ok=%v err=%v", ok, err)
	}
	if again.Occupants() != 2 {
		t.Fatalf("rejoin changed occupancy to %d", again.Occupants())
	}
}

func TestJoinWrongPasswordLeavesLobbyUnchanged(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()
	l, _, _ := s.Create(ctx, 1, "secret", "hunter2", "")

	_, _, err := s.Join(ctx, l.ID, 2, "nope", "")
	if !errors.Is(err, ErrBadPassword) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected a bad password conflict, got %v", err)
	}

	got, err := s.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Occupants() != 1 || got.IsMember(2) || got.State != models.LobbyStateOpen {
		t.Fatalf("lobby changed after failed join: %+v", got)
	}
}

func TestJoinRejectsPlayerSeatedElsewhere(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()
	a, _, _ := s.Create(ctx, 1, "a", "", "")
	_, _, _ = s.Create(ctx, 2, "b", "", "")

	if _, _, err := s.Join(ctx, a.ID, 2, "", ""); !errors.Is(err, ErrAlreadyInLobby) {
		t.Fatalf("expected ErrAlreadyInLobby, got %v", err)
	}
}

func TestConcurrentJoinsForLastSeat(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()
	l, _, _ := s.Create(ctx, 1, "duel", "", "")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		full    int
	)
	for _, player := range []int64{2, 3} {
		wg.Add(1)
		go func(player int64) {
			defer wg.Done()
			_, _, err := s.Join(ctx, l.ID, player, "", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrLobbyFull):
				full++
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}(player)
	}
	wg.Wait()

	if success != 1 || full != 1 {
		t.Fatalf("expected one winner and one full, got %d and %d", success, full)
	}
	got, _ := s.Get(ctx, l.ID)
	if got.Occupants() != 2 {
		t.Fatalf("expected 2 occupants, got %d", got.Occupants())
	}
}

func TestOccupancyStaysInBoundsUnderChurn(t *testing.T) {
	s := newTestStore(3)
	ctx := context.Background()
	l, _, _ := s.Create(ctx, 1, "churn", "", "")

	var wg sync.WaitGroup
	for i := int64(0); i < 30; i++ {
		wg.Add(1)
		go func(player int64) {
			defer wg.Done()
			if _, _, err := s.Join(ctx, l.ID, player, "", ""); err != nil && !errors.Is(err, ErrConflict) {
				t.Errorf("join: %v", err)
			}
			if got, err := s.Get(ctx, l.ID); err == nil && (got.Occupants() < 0 || got.Occupants() > got.Capacity) {
				t.Errorf("occupancy %d out of bounds", got.Occupants())
			}
			if _, _, err := s.Leave(ctx, l.ID, player); err != nil {
				t.Errorf("leave: %v", err)
			}
		}(100 + i)
	}
	wg.Wait()

	got, err := s.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Occupants() != 1 || got.State != models.LobbyStateOpen {
		t.Fatalf("expected only the creator left in an open lobby, got %d (%s)", got.Occupants(), got.State)
	}
}

func TestSpectatorsDoNotTakeSeats(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()
	l, _, _ := s.Create(ctx, 1, "watch", "", "")

	for _, id := range []int64{50, 51, 52} {
		if _, _, err := s.Spectate(ctx, l.ID, id, ""); err != nil {
			t.Fatalf("spectate: %v", err)
		}
	}
	got, _, err := s.Join(ctx, l.ID, 2, "", "")
	if err != nil {
		t.Fatalf("join with spectators present: %v", err)
	}
	if got.State != models.LobbyStateFull || len(got.Spectators) != 3 {
		t.Fatalf("unexpected lobby %+v", got)
	}
}

func TestLeaveLastOccupantClosesLobby(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()
	l, _, _ := s.Create(ctx, 1, "solo", "", "")
	_, _, _ = s.Spectate(ctx, l.ID, 9, "")

	after, left, err := s.Leave(ctx, l.ID, 1)
	if err != nil || !left {
		t.Fatalf("leave creator: left=%v err=%v", left, err)
	}
	if after.State != models.LobbyStateOpen {
		t.Fatalf("spectator still present, expected open, got %s", after.State)
	}

	after, _, err = s.Leave(ctx, l.ID, 9)
	if err != nil {
		t.Fatalf("leave spectator: %v", err)
	}
	if after.State != models.LobbyStateClosed {
		t.Fatalf("expected closed, got %s", after.State)
	}
	if _, err := s.Get(ctx, l.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("closed lobby should be unreachable, got %v", err)
	}
}

func TestLeaveNonMemberIsNoop(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()
	l, _, _ := s.Create(ctx, 1, "solo", "", "")

	_, left, err := s.Leave(ctx, l.ID, 99)
	if err != nil || left {
		t.Fatalf("expected a no-op, got left=%v err=%v", left, err)
	}
	if _, _, err := s.Leave(ctx, 12345, 1); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("expected ErrLobbyNotFound, got %v", err)
	}
}

func TestLookups(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()
	a, _, _ := s.Create(ctx, 1, "Alpha Arena", "", "")
	b, _, _ := s.Create(ctx, 2, "beta", "", "")
	_, _, _ = s.Join(ctx, b.ID, 3, "", "")

	open, err := s.FindOpen(ctx)
	if err != nil || open == nil || open.ID != a.ID {
		t.Fatalf("expected quick match to find %d, got %v (%v)", a.ID, open, err)
	}

	byCreator, err := s.GetByCreator(ctx, 2)
	if err != nil || byCreator == nil || byCreator.ID != b.ID {
		t.Fatalf("expected creator lookup to find %d, got %v (%v)", b.ID, byCreator, err)
	}
	if none, _ := s.GetByCreator(ctx, 3); none != nil {
		t.Fatalf("player 3 joined but did not create, got %d", none.ID)
	}

	listed, err := s.List(ctx, "alpha")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != a.ID {
		t.Fatalf("unexpected filter result %v", listed)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 lobbies, got %d", len(all))
	}
}

// slowScanRepository widens the window between the seated-elsewhere check
// and the seat commit, as a networked store would.
type slowScanRepository struct {
	*repository.MemoryRepository
}

func (r slowScanRepository) Scan(ctx context.Context) ([]*models.Lobby, error) {
	lobbies, err := r.MemoryRepository.Scan(ctx)
	time.Sleep(5 * time.Millisecond)
	return lobbies, err
}

func TestConcurrentJoinsBySamePlayerTakeOneSeat(t *testing.T) {
	s := NewStore(slowScanRepository{repository.NewMemoryRepository()}, clockwork.NewFakeClock(), 2)
	ctx := context.Background()
	x, _, _ := s.Create(ctx, 1, "x", "", "")
	y, _, _ := s.Create(ctx, 2, "y", "", "")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []int64{x.ID, y.ID} {
		wg.Add(1)
		go func(lobbyID int64) {
			defer wg.Done()
			_, _, err := s.Join(ctx, lobbyID, 3, "", "")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var joined, rejected int
	for err := range errs {
		switch {
		case err == nil:
			joined++
		case errors.Is(err, ErrAlreadyInLobby):
			rejected++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if joined != 1 || rejected != 1 {
		t.Fatalf("expected one seat and one conflict, got %d joined %d rejected", joined, rejected)
	}

	seats := 0
	for _, id := range []int64{x.ID, y.ID} {
		l, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if l.IsPlayer(3) {
			seats++
		}
	}
	if seats != 1 {
		t.Fatalf("player 3 occupies %d lobbies", seats)
	}
}

func TestCreateWhileJoiningElsewhereTakesOneSeat(t *testing.T) {
	s := NewStore(slowScanRepository{repository.NewMemoryRepository()}, clockwork.NewFakeClock(), 2)
	ctx := context.Background()
	x, _, _ := s.Create(ctx, 1, "x", "", "")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, _, err := s.Join(ctx, x.ID, 3, "", ""); err != nil && !errors.Is(err, ErrAlreadyInLobby) {
			t.Errorf("join: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, _, err := s.Create(ctx, 3, "mine", "", ""); err != nil {
			t.Errorf("create: %v", err)
		}
	}()
	wg.Wait()

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	seats := 0
	for _, l := range all {
		if l.IsPlayer(3) {
			seats++
		}
	}
	if seats != 1 {
		t.Fatalf("player 3 occupies %d lobbies", seats)
	}
}
