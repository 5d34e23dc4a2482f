package main

import (
	"github.com/mcdev12/matchmaker/go/internal/config"
	"github.com/mcdev12/matchmaker/go/internal/gateway"
	"github.com/mcdev12/matchmaker/go/internal/lobby"
	"github.com/mcdev12/matchmaker/go/internal/provisioner"
)

func gatewayConfig(cfg *config.Config) gateway.Config {
	gw := gateway.DefaultConfig()
	gw.ConnectionConfig.PingInterval = cfg.Gateway.PingInterval
	gw.ConnectionConfig.IdleTimeout = cfg.Gateway.IdleTimeout
	gw.ConnectionConfig.WriteTimeout = cfg.Gateway.WriteTimeout
	gw.ConnectionConfig.SendBufferSize = cfg.Gateway.SendBuffer
	gw.ConnectionConfig.MaxMessageSize = cfg.Gateway.MaxMessageSize
	gw.RelayConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
	return gw
}

func lobbyConfig(cfg *config.Config) lobby.Config {
	lc := lobby.DefaultConfig()
	lc.PollAttempts = cfg.Lobby.PollAttempts
	lc.PollInterval = cfg.Lobby.PollInterval
	lc.WinnerRatingDelta = cfg.Lobby.WinnerRatingDelta
	lc.LoserRatingDelta = cfg.Lobby.LoserRatingDelta
	return lc
}

func provisionerConfig(cfg *config.Config) provisioner.Config {
	return provisioner.Config{
		AppName:      cfg.Provisioning.AppName,
		AppVersion:   cfg.Provisioning.AppVersion,
		GamePortName: cfg.Provisioning.GamePortName,
	}
}
