package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
// Shared by the coordinator and node processes; a given process only reads the
// fields relevant to its role.
type Config struct {
	NodeID     int    `envconfig:"TORCUS_NODE_ID" default:"1"`
	PartyIndex int    `envconfig:"TORCUS_PARTY_INDEX" default:"0"`
	QUICPort   int    `envconfig:"TORCUS_QUIC_PORT" default:"4001"`
	DBPath     string `envconfig:"TORCUS_DB_PATH" default:"./data/torcus.sqlite"`
	LogLevel   string `envconfig:"TORCUS_LOG_LEVEL" default:"info"`
	LogDir     string `envconfig:"TORCUS_LOG_DIR" default:"./logs"`
	BTCNetwork string `envconfig:"TORCUS_BITCOIN_NETWORK" default:"testnet"`

	NodeRegistrationPSK string `envconfig:"TORCUS_NODE_REGISTRATION_PSK"`
	Production          bool   `envconfig:"TORCUS_PRODUCTION" default:"false"`

	CACertPath           string `envconfig:"TORCUS_CA_CERT_PATH" default:"./certs/ca-cert.json"`
	NodeCertPath         string `envconfig:"TORCUS_NODE_CERT_PATH"`
	CoordinatorPubKeyHex string `envconfig:"TORCUS_COORDINATOR_PUBKEY_HEX"`
	CoordinatorURL       string `envconfig:"TORCUS_COORDINATOR_URL" default:"http://127.0.0.1:8090"`

	KVEndpoints string `envconfig:"TORCUS_KV_ENDPOINTS" default:"./data/torcus-kv.bolt"`

	HTTPPort int `envconfig:"TORCUS_HTTP_PORT" default:"8090"`

	// PeerAddrs is this node's address book for the other cluster parties,
	// as "party_index=host:port" entries (§4.3) — how this node reaches
	// its peers over QUIC for direct ceremony message delivery.
	PeerAddrs []string `envconfig:"TORCUS_PEER_ADDRS"`
}

// Load reads configuration from a .env file (if present) then from environment
// variables. Environment variables override .env values.
func Load() (*Config, error) {
	envFiles := []string{".env"}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				slog.Warn("failed to load .env file", "file", f, "error", err)
			} else {
				slog.Info("loaded .env file", "file", f)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness. Mainnet is refused
// unconditionally (spec Non-goals: "must refuse mainnet until audited").
func (c *Config) Validate() error {
	if c.BTCNetwork != "testnet" && c.BTCNetwork != "regtest" && c.BTCNetwork != "mainnet" {
		return fmt.Errorf("%w: bitcoin network must be \"mainnet\", \"testnet\" or \"regtest\", got %q", ErrInvalidConfig, c.BTCNetwork)
	}
	if c.BTCNetwork == "mainnet" {
		return fmt.Errorf("%w", ErrMainnetRefused)
	}
	if c.QUICPort < 1 || c.QUICPort > 65535 {
		return fmt.Errorf("%w: quic port must be 1-65535, got %d", ErrInvalidConfig, c.QUICPort)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("%w: http port must be 1-65535, got %d", ErrInvalidConfig, c.HTTPPort)
	}
	if c.Production && c.NodeRegistrationPSK == "" {
		// TORCUS_PRODUCTION disables dev fallbacks; a missing PSK is a Validate error, so startup fails.
		return fmt.Errorf("%w: TORCUS_NODE_REGISTRATION_PSK is required when TORCUS_PRODUCTION is set", ErrInvalidConfig)
	}
	return nil
}
