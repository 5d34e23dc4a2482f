package provisioner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/clients/edgegap_client"
	"github.com/mcdev12/matchmaker/go/internal/models"
)

// Phase is the provisioning state of a session as seen by one poll
type Phase int

const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRunning:
		return "running"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Status is the result of one poll. Host and Port are set only when Running.
type Status struct {
	Phase  Phase
	Host   string
	Port   int
	Reason string
}

// DeploymentClient defines what the provisioner needs from the provider API
type DeploymentClient interface {
	Deploy(ctx context.Context, req edgegap_client.DeployRequest) (*edgegap_client.DeployResponse, error)
	Status(ctx context.Context, requestID string) (*edgegap_client.StatusResponse, error)
	Stop(ctx context.Context, requestID string) error
}

// Config holds the game server image to deploy
type Config struct {
	AppName      string
	AppVersion   string
	GamePortName string
}

// Provisioner starts, observes and stops ephemeral game servers. It performs
// single calls only; retry policy belongs to the caller.
type Provisioner struct {
	client DeploymentClient
	config Config
}

// New creates a provisioner
func New(client DeploymentClient, config Config) *Provisioner {
	if config.GamePortName == "" {
		config.GamePortName = edgegap_client.DefaultGamePortName
	}
	return &Provisioner{client: client, config: config}
}

// StartSession requests a game server placed near the lobby's players
func (p *Provisioner) StartSession(ctx context.Context, lobby *models.Lobby) (string, error) {
	addresses := make([]string, 0, len(lobby.RegionAddresses))
	for _, addr := range lobby.RegionAddresses {
		if addr != "" {
			addresses = append(addresses, addr)
		}
	}

	resp, err := p.client.Deploy(ctx, edgegap_client.DeployRequest{
		AppName:    p.config.AppName,
		AppVersion: p.config.AppVersion,
		IPList:     addresses,
	})
	if err != nil {
		return "", err
	}

	log.Info().
		Int64("lobby_id", lobby.ID).
		Str("request_id", resp.RequestID).
		Strs("ip_list", addresses).
		Msg("game server requested")
	return resp.RequestID, nil
}

// PollStatus reports the session's phase. Transport errors and incomplete
// answers read as Pending so the caller's attempt budget decides when to stop.
func (p *Provisioner) PollStatus(ctx context.Context, requestID string) Status {
	resp, err := p.client.Status(ctx, requestID)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("failed to poll game server status")
		return Status{Phase: PhasePending, Reason: err.Error()}
	}

	if resp.IsError() {
		return Status{Phase: PhaseFailed, Reason: resp.CurrentStatus}
	}
	if !resp.IsRunning() {
		return Status{Phase: PhasePending, Reason: resp.CurrentStatus}
	}

	host := resp.Host()
	port, ok := resp.ExternalPort(p.config.GamePortName)
	if host == "" || !ok {
		log.Warn().Str("request_id", requestID).Str("port_name", p.config.GamePortName).Msg("running game server has no reachable address yet")
		return Status{Phase: PhasePending, Reason: "missing address"}
	}
	return Status{Phase: PhaseRunning, Host: host, Port: port}
}

// StopSession tears down the session and reports whether the provider accepted
func (p *Provisioner) StopSession(ctx context.Context, requestID string) bool {
	if err := p.client.Stop(ctx, requestID); err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("failed to stop game server")
		return false
	}
	log.Info().Str("request_id", requestID).Msg("game server stopped")
	return true
}
