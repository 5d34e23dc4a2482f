package lobby

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/matchmaker/go/internal/lobby/events"
	"github.com/mcdev12/matchmaker/go/internal/models"
	"github.com/mcdev12/matchmaker/go/internal/provisioner"
)

type recordedEvent struct {
	lobbyID int64
	event   events.Event
}

// fakeBroadcaster records everything the app asks the gateway to do, in order
type fakeBroadcaster struct {
	mu           sync.Mutex
	events       []recordedEvent
	disconnected []int64
	closed       []int64
	// log interleaves broadcasts and closes so ordering can be asserted
	log []string
}

func (b *fakeBroadcaster) Broadcast(ctx context.Context, lobbyID int64, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{lobbyID: lobbyID, event: event})
	b.log = append(b.log, fmt.Sprintf("event:%d", event.StatusCode))
}

func (b *fakeBroadcaster) Disconnect(ctx context.Context, lobbyID, playerID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = append(b.disconnected, playerID)
	b.log = append(b.log, fmt.Sprintf("disconnect:%d", playerID))
}

func (b *fakeBroadcaster) CloseLobby(ctx context.Context, lobbyID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, lobbyID)
	b.log = append(b.log, "close")
}

func (b *fakeBroadcaster) count(code events.StatusCode) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.event.StatusCode == code {
			n++
		}
	}
	return n
}

func (b *fakeBroadcaster) last(code events.StatusCode) (events.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].event.StatusCode == code {
			return b.events[i].event, true
		}
	}
	return events.Event{}, false
}

func (b *fakeBroadcaster) history() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

// fakeProvisioner answers polls from a script; the last entry repeats
type fakeProvisioner struct {
	mu        sync.Mutex
	startErr  error
	requestID string
	script    []provisioner.Status
	polls     int
	starts    int
	stopped   []string
}

func (p *fakeProvisioner) StartSession(ctx context.Context, lobby *models.Lobby) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	if p.startErr != nil {
		return "", p.startErr
	}
	if p.requestID == "" {
		return "req-1", nil
	}
	return p.requestID, nil
}

func (p *fakeProvisioner) PollStatus(ctx context.Context, requestID string) provisioner.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if len(p.script) == 0 {
		return provisioner.Status{Phase: provisioner.PhasePending}
	}
	i := p.polls - 1
	if i >= len(p.script) {
		i = len(p.script) - 1
	}
	return p.script[i]
}

func (p *fakeProvisioner) StopSession(ctx context.Context, requestID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, requestID)
	return true
}

func (p *fakeProvisioner) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

type ratingUpdate struct {
	playerID int64
	delta    int
}

// fakeProfiles hands out 10.0.0.<id> region addresses
type fakeProfiles struct {
	mu        sync.Mutex
	regionErr error
	failFor   map[int64]bool
	ratings   []ratingUpdate
}

func (f *fakeProfiles) GetPlayerRegionIP(ctx context.Context, playerID int64) (string, error) {
	if f.regionErr != nil {
		return "", f.regionErr
	}
	return fmt.Sprintf("10.0.0.%d", playerID), nil
}

func (f *fakeProfiles) UpdatePlayerRating(ctx context.Context, playerID int64, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[playerID] {
		return fmt.Errorf("profile service unavailable")
	}
	f.ratings = append(f.ratings, ratingUpdate{playerID: playerID, delta: delta})
	return nil
}
