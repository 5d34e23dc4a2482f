package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is unset. It may be absent.
const DefaultPath = "config.yaml"

// Store backends
const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
)

// Config is the matchmaker configuration. Values come from defaults, then
// the YAML file, then environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Store        StoreConfig        `yaml:"store"`
	NATS         NATSConfig         `yaml:"nats"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Lobby        LobbyConfig        `yaml:"lobby"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Profiles     ProfilesConfig     `yaml:"profiles"`
}

type ServerConfig struct {
	Port           string        `yaml:"port" env:"PORT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	// Must outlast a full provisioning poll cycle since start blocks on it
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" env:"STORE_BACKEND"`
}

type NATSConfig struct {
	URL           string        `yaml:"url" env:"NATS_URL"`
	Relay         bool          `yaml:"relay" env:"NATS_RELAY"`
	Bucket        string        `yaml:"bucket" env:"NATS_LOBBY_BUCKET"`
	BucketTTL     time.Duration `yaml:"bucket_ttl" env:"NATS_LOBBY_TTL"`
	Replicas      int           `yaml:"replicas" env:"NATS_REPLICAS"`
	SubjectPrefix string        `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX"`
	MaxReconnects int           `yaml:"max_reconnects" env:"NATS_MAX_RECONNECTS"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" env:"NATS_RECONNECT_WAIT"`
}

type GatewayConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval" env:"WS_PING_INTERVAL"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"WS_IDLE_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WS_WRITE_TIMEOUT"`
	SendBuffer     int           `yaml:"send_buffer" env:"WS_SEND_BUFFER"`
	MaxMessageSize int64         `yaml:"max_message_size" env:"WS_MAX_MESSAGE_SIZE"`
}

type LobbyConfig struct {
	Capacity          int           `yaml:"capacity" env:"LOBBY_CAPACITY"`
	PollAttempts      int           `yaml:"poll_attempts" env:"LOBBY_POLL_ATTEMPTS"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"LOBBY_POLL_INTERVAL"`
	WinnerRatingDelta int           `yaml:"winner_rating_delta" env:"LOBBY_WINNER_RATING_DELTA"`
	LoserRatingDelta  int           `yaml:"loser_rating_delta" env:"LOBBY_LOSER_RATING_DELTA"`
}

type ProvisioningConfig struct {
	BaseURL      string        `yaml:"base_url" env:"EDGEGAP_BASE_URL"`
	APIToken     string        `yaml:"api_token" env:"EDGEGAP_API_TOKEN"`
	AppName      string        `yaml:"app_name" env:"DOCKER_IMAGE"`
	AppVersion   string        `yaml:"app_version" env:"VERSION"`
	GamePortName string        `yaml:"game_port_name" env:"EDGEGAP_GAME_PORT"`
	Timeout      time.Duration `yaml:"timeout" env:"EDGEGAP_TIMEOUT"`
}

type ProfilesConfig struct {
	BaseURL string        `yaml:"base_url" env:"GAMEAPI_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"GAMEAPI_TIMEOUT"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   90 * time.Second,
		},
		Log:   LogConfig{Level: "info"},
		Store: StoreConfig{Backend: BackendMemory},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Bucket:        "LOBBIES",
			BucketTTL:     6 * time.Hour,
			Replicas:      1,
			SubjectPrefix: "lobby.events",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Gateway: GatewayConfig{
			PingInterval:   30 * time.Second,
			IdleTimeout:    90 * time.Second,
			WriteTimeout:   10 * time.Second,
			SendBuffer:     64,
			MaxMessageSize: 1024,
		},
		Lobby: LobbyConfig{
			Capacity:          2,
			PollAttempts:      10,
			PollInterval:      2 * time.Second,
			WinnerRatingDelta: 25,
			LoserRatingDelta:  -25,
		},
		Provisioning: ProvisioningConfig{
			BaseURL:      "https://api.edgegap.com",
			GamePortName: "Game Port",
			Timeout:      10 * time.Second,
		},
		Profiles: ProfilesConfig{
			BaseURL: "http://gameapi:8080",
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads path (if it exists) over the defaults and applies environment
// overrides. A missing file is only an error when it is not DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting the matchmaker cannot run with
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendNATS, BackendPostgres:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Lobby.Capacity < 2 {
		return fmt.Errorf("lobby capacity must be at least 2, got %d", c.Lobby.Capacity)
	}
	if c.Lobby.PollAttempts < 1 {
		return fmt.Errorf("poll attempts must be positive, got %d", c.Lobby.PollAttempts)
	}
	if c.Provisioning.AppName == "" || c.Provisioning.AppVersion == "" {
		return errors.New("DOCKER_IMAGE and VERSION are required")
	}
	if budget := time.Duration(c.Lobby.PollAttempts) * c.Lobby.PollInterval; c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= budget {
		return fmt.Errorf("server write timeout %s must exceed the provisioning budget %s", c.Server.WriteTimeout, budget)
	}
	return nil
}

// UsesNATS reports whether a NATS connection is needed
func (c *Config) UsesNATS() bool {
	return c.Store.Backend == BackendNATS || c.NATS.Relay
}
