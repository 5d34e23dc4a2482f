package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchmaker/go/internal/config"
	"github.com/mcdev12/matchmaker/go/internal/dbconfig"
)

// Infra holds the external connections the configured backends need.
// Any of them may be nil.
type Infra struct {
	DB   *pgxpool.Pool
	NATS *nats.Conn
	JS   jetstream.JetStream
}

func setupInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	infra := &Infra{}

	if cfg.Store.Backend == config.BackendPostgres {
		pool, err := setupDatabase(ctx)
		if err != nil {
			return nil, err
		}
		infra.DB = pool
	}

	if cfg.UsesNATS() {
		nc, js, err := setupNATS(cfg.NATS)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.NATS = nc
		infra.JS = js
	}

	return infra, nil
}

// Close drains NATS and closes the pool
func (i *Infra) Close() {
	if i.NATS != nil {
		if err := i.NATS.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

func setupDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	dbConfig, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}

	pool, err := dbconfig.Connect(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user", dbConfig.User).
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("connected to database")
	return pool, nil
}

func setupNATS(cfg config.NATSConfig) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name("matchmaker"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, js, nil
}
