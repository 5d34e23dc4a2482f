package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/mcdev12/matchmaker/go/internal/lobby/events"
)

func TestRelayHandleMessage(t *testing.T) {
	manager := NewConnectionManager(testConfig(), clockwork.NewRealClock())
	relay := NewRelay(nil, manager, DefaultRelayConfig())

	conn := &Connection{ID: "c1", LobbyID: 3, PlayerID: 30, Send: make(chan []byte, 8), Manager: manager}
	manager.Register(conn)

	ev := events.GameStarted("gs:2")
	for _, env := range []relayEnvelope{
		{ID: "1", Kind: relayKindEvent, LobbyID: 3, Event: &ev},
		{ID: "2", Kind: "bogus", LobbyID: 3},
		{ID: "3", Kind: relayKindDisconnect, LobbyID: 3, PlayerID: 30},
	} {
		data, err := json.Marshal(env)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		relay.handleMessage(&nats.Msg{Subject: "lobby.events.3", Data: data})
	}
	relay.handleMessage(&nats.Msg{Subject: "lobby.events.3", Data: []byte("not json")})

	if manager.IsConnected(3, 30) {
		t.Fatal("expected disconnect envelope to remove the connection")
	}
	msg, ok := <-conn.Send
	if !ok {
		t.Fatal("expected the event before the close")
	}
	var got events.Event
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != ev {
		t.Fatalf("expected %+v, got %+v", ev, got)
	}
	if _, ok := <-conn.Send; ok {
		t.Fatal("expected the send queue to be closed")
	}
}

func TestRelayAcrossInstances(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	cfg := RelayConfig{SubjectPrefix: fmt.Sprintf("test.lobby.%d", time.Now().UnixNano())}
	start := func(t *testing.T) (*Relay, *ConnectionManager) {
		nc, err := nats.Connect(url)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		t.Cleanup(nc.Close)
		manager := NewConnectionManager(testConfig(), clockwork.NewRealClock())
		relay := NewRelay(nc, manager, cfg)

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go relay.Start(ctx)
		return relay, manager
	}

	publisher, _ := start(t)
	_, remote := start(t)

	conn := &Connection{ID: "remote", LobbyID: 5, PlayerID: 50, Send: make(chan []byte, 8), Manager: remote}
	remote.Register(conn)

	// subscriptions are asynchronous; keep publishing until one arrives
	deadline := time.After(3 * time.Second)
	for {
		publisher.Broadcast(context.Background(), 5, events.Heartbeat("hello"))
		select {
		case msg := <-conn.Send:
			var ev events.Event
			if err := json.Unmarshal(msg, &ev); err != nil || ev.Message != "hello" {
				t.Fatalf("unexpected relay payload %s (%v)", msg, err)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("event never crossed instances")
		}
	}
}
