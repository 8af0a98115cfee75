// Command coordinator runs the cluster-facing services described in §6:
// node registration and certificate issuance, signing-grant minting, and
// the relay bus fallback transport. It holds no key shares of its own —
// every ceremony and signature still happens on the party nodes reached
// through internal/api's /dkg, /aux-info, /cggmp24, and /wallet routes on
// each node process (see cmd/node).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/api"
	"github.com/torcus-labs/tss-wallet/internal/certs"
	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/grant"
	"github.com/torcus-labs/tss-wallet/internal/logging"
	"github.com/torcus-labs/tss-wallet/internal/registry"
	"github.com/torcus-labs/tss-wallet/internal/relaybus"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("coordinator error", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("tss-coordinator %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: tss-coordinator <command>

Commands:
  serve     Start the coordinator HTTP surface
  version   Print version information
`)
}

func runServe() error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	slog.Info("starting tss-coordinator",
		"version", version,
		"httpPort", cfg.HTTPPort,
		"network", cfg.BTCNetwork,
	)

	ca, err := loadOrGenerateCA(cfg.CACertPath)
	if err != nil {
		return fmt.Errorf("load coordinator CA: %w", err)
	}
	slog.Info("coordinator CA ready", "path", cfg.CACertPath)

	if cfg.NodeRegistrationPSK == "" {
		return fmt.Errorf("%w: TORCUS_NODE_REGISTRATION_PSK is required to run a coordinator", config.ErrInvalidConfig)
	}
	reg := registry.New(cfg.NodeRegistrationPSK, registry.DefaultConfig())

	issuer, pub, err := grant.GenerateIssuer()
	if err != nil {
		return fmt.Errorf("generate grant issuer: %w", err)
	}
	slog.Info("grant issuer ready", "public_key_hex", fmt.Sprintf("%x", pub))

	bus := relaybus.NewBus()

	deps := &api.Deps{
		Config:      cfg,
		Registry:    reg,
		CA:          ca,
		GrantIssuer: issuer,
		GrantPubkey: pub,
		RelayBus:    bus,
	}
	router := api.NewRouter(deps)

	go sweepStaleNodes(reg)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("coordinator listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("coordinator listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("coordinator shutdown error: %w", err)
	}

	slog.Info("coordinator stopped gracefully")
	return nil
}

// sweepStaleNodes periodically marks nodes offline once they miss too many
// heartbeats (§6), freeing their party index for reclaim by a replacement.
func sweepStaleNodes(reg *registry.Registry) {
	ticker := time.NewTicker(registry.DefaultConfig().HeartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		if n := reg.CleanupStale(); n > 0 {
			slog.Info("marked nodes offline after missed heartbeats", "count", n)
		}
	}
}

// loadOrGenerateCA reads the coordinator's root CA from path, minting and
// persisting a fresh one on first run.
func loadOrGenerateCA(path string) (*certs.CA, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		var stored certs.StoredCA
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("parse stored CA at %s: %w", path, err)
		}
		return certs.LoadCA(&stored)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read CA file %s: %w", path, err)
	}

	ca, err := certs.GenerateCA()
	if err != nil {
		return nil, fmt.Errorf("generate CA: %w", err)
	}
	stored, err := ca.ToStored()
	if err != nil {
		return nil, fmt.Errorf("export CA: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create CA directory: %w", err)
	}
	encoded, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode CA: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return nil, fmt.Errorf("write CA file %s: %w", path, err)
	}
	return ca, nil
}
