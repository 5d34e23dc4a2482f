package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/mcdev12/matchmaker/go/clients/edgegap_client"
	"github.com/mcdev12/matchmaker/go/clients/gameapi_client"
	"github.com/mcdev12/matchmaker/go/internal/config"
	"github.com/mcdev12/matchmaker/go/internal/gateway"
	"github.com/mcdev12/matchmaker/go/internal/lobby"
	"github.com/mcdev12/matchmaker/go/internal/lobby/repository"
	"github.com/mcdev12/matchmaker/go/internal/provisioner"
)

type Services struct {
	Gateway *gateway.Service
	Lobby   *lobby.Service
}

// RegisterRoutes mounts every service on mux
func (s *Services) RegisterRoutes(mux *http.ServeMux) {
	s.Lobby.RegisterRoutes(mux)
	s.Gateway.RegisterRoutes(mux)
}

func setupServices(ctx context.Context, cfg *config.Config, infra *Infra, clock clockwork.Clock) (*Services, error) {
	// Repository → Store → App → Service; the gateway is built first
	// because the app publishes through it and it checks membership
	// against the app.

	repo, err := setupRepository(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	var relayConn *nats.Conn
	if cfg.NATS.Relay {
		relayConn = infra.NATS
	}
	gw := gateway.NewService(gatewayConfig(cfg), clock, relayConn)

	deployments := edgegap_client.NewEdgegapClient(cfg.Provisioning.BaseURL, cfg.Provisioning.APIToken)
	deployments.SetTimeout(cfg.Provisioning.Timeout)
	prov := provisioner.New(deployments, provisionerConfig(cfg))

	profiles := gameapi_client.NewGameAPIClient(cfg.Profiles.BaseURL)
	profiles.SetTimeout(cfg.Profiles.Timeout)

	store := lobby.NewStore(repo, clock, cfg.Lobby.Capacity)
	app := lobby.NewApp(store, gw.Broadcaster(), prov, profiles, clock, lobbyConfig(cfg))
	gw.Bind(app, app.HandleDisconnect)

	return &Services{
		Gateway: gw,
		Lobby:   lobby.NewService(app),
	}, nil
}

func setupRepository(ctx context.Context, cfg *config.Config, infra *Infra) (lobby.Repository, error) {
	switch cfg.Store.Backend {
	case config.BackendNATS:
		natsCfg := repository.DefaultNATSConfig()
		natsCfg.Bucket = cfg.NATS.Bucket
		natsCfg.Replicas = cfg.NATS.Replicas
		natsCfg.TTL = cfg.NATS.BucketTTL
		return repository.NewNATSRepository(ctx, infra.JS, natsCfg)
	case config.BackendPostgres:
		return repository.NewPostgresRepository(ctx, infra.DB)
	case config.BackendMemory:
		return repository.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
