package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/lobby/events"
)

const (
	relayKindEvent      = "event"
	relayKindDisconnect = "disconnect"
	relayKindClose      = "close"
)

// RelayConfig holds configuration for cross-instance fanout
type RelayConfig struct {
	SubjectPrefix string
}

// DefaultRelayConfig returns default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		SubjectPrefix: "lobby.events",
	}
}

// relayEnvelope is what travels between matchmaker instances
type relayEnvelope struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	LobbyID  int64         `json:"lobbyId"`
	PlayerID int64         `json:"playerId,omitempty"`
	Event    *events.Event `json:"event,omitempty"`
}

// Relay fans lobby notifications out to every matchmaker instance over NATS.
// A client may be connected to any instance, so each instance delivers what
// it receives to its own connections. All messages for one lobby share a
// subject, which keeps them in emission order.
type Relay struct {
	nc     *nats.Conn
	local  *ConnectionManager
	config RelayConfig
}

// NewRelay creates a relay delivering into local
func NewRelay(nc *nats.Conn, local *ConnectionManager, config RelayConfig) *Relay {
	return &Relay{
		nc:     nc,
		local:  local,
		config: config,
	}
}

// Start subscribes to lobby notifications and blocks until ctx is done
func (r *Relay) Start(ctx context.Context) error {
	subject := r.config.SubjectPrefix + ".>"
	sub, err := r.nc.Subscribe(subject, r.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	log.Info().Str("subject", subject).Msg("lobby event relay started")

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("failed to unsubscribe lobby event relay")
	}
	log.Info().Msg("lobby event relay stopped")
	return nil
}

// Broadcast publishes an event to every instance
func (r *Relay) Broadcast(ctx context.Context, lobbyID int64, event events.Event) {
	r.publish(relayEnvelope{Kind: relayKindEvent, LobbyID: lobbyID, Event: &event})
}

// Disconnect closes the player's connection on whichever instance holds it
func (r *Relay) Disconnect(ctx context.Context, lobbyID, playerID int64) {
	r.publish(relayEnvelope{Kind: relayKindDisconnect, LobbyID: lobbyID, PlayerID: playerID})
}

// CloseLobby closes the lobby's connections on every instance
func (r *Relay) CloseLobby(ctx context.Context, lobbyID int64) {
	r.publish(relayEnvelope{Kind: relayKindClose, LobbyID: lobbyID})
}

func (r *Relay) publish(env relayEnvelope) {
	env.ID = uuid.New().String()
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal relay envelope")
		return
	}

	if err := r.nc.Publish(r.subject(env.LobbyID), data); err != nil {
		// Still serve the clients connected here
		log.Error().Err(err).Int64("lobby_id", env.LobbyID).Str("kind", env.Kind).Msg("failed to publish lobby event, delivering locally")
		r.deliver(env)
	}
}

func (r *Relay) handleMessage(msg *nats.Msg) {
	var env relayEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed relay envelope")
		return
	}
	r.deliver(env)
}

func (r *Relay) deliver(env relayEnvelope) {
	ctx := context.Background()
	switch env.Kind {
	case relayKindEvent:
		if env.Event != nil {
			r.local.Broadcast(ctx, env.LobbyID, *env.Event)
		}
	case relayKindDisconnect:
		r.local.Disconnect(ctx, env.LobbyID, env.PlayerID)
	case relayKindClose:
		r.local.CloseLobby(ctx, env.LobbyID)
	default:
		log.Warn().Str("id", env.ID).Str("kind", env.Kind).Msg("unknown relay envelope kind")
	}
}

func (r *Relay) subject(lobbyID int64) string {
	return r.config.SubjectPrefix + "." + strconv.FormatInt(lobbyID, 10)
}
