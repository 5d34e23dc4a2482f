package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/lobby/events"
)

// Broadcaster is the surface the lobby app drives
type Broadcaster interface {
	Broadcast(ctx context.Context, lobbyID int64, event events.Event)
	Disconnect(ctx context.Context, lobbyID, playerID int64)
	CloseLobby(ctx context.Context, lobbyID int64)
}

// Config holds configuration for the lobby gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	RelayConfig      RelayConfig
}

// DefaultConfig returns default configuration for the lobby gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		RelayConfig:      DefaultRelayConfig(),
	}
}

// Service is the lobby gateway: WebSocket connections plus, when NATS is
// available, fanout across matchmaker instances.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	relay             *Relay
}

// NewService creates a new lobby gateway service. nc may be nil for a
// single-instance deployment.
func NewService(config Config, clock clockwork.Clock, nc *nats.Conn) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, clock)

	s := &Service{
		connectionManager: connectionManager,
	}
	if nc != nil {
		s.relay = NewRelay(nc, connectionManager, config.RelayConfig)
	}
	return s
}

// Bind wires the lobby app into the gateway: membership checks for new
// connections and implicit leaves for clients that went away.
func (s *Service) Bind(members MembershipChecker, onDisconnect func(lobbyID, playerID int64)) {
	s.wsHandler = NewWebSocketHandler(s.connectionManager, members)
	s.connectionManager.OnDisconnect(onDisconnect)
}

// Broadcaster returns what the lobby app should publish through
func (s *Service) Broadcaster() Broadcaster {
	if s.relay != nil {
		return s.relay
	}
	return s.connectionManager
}

// Start runs the relay subscription, if any, until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("relay", s.relay != nil).Msg("starting lobby gateway service")
	if s.relay == nil {
		<-ctx.Done()
		return nil
	}
	return s.relay.Start(ctx)
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("lobby gateway routes registered")
}
