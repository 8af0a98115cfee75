// Command node runs one cluster party: it registers with the coordinator,
// holds this party's key shares and presignature pool, and exposes the
// ceremony/signing/send HTTP surface described in §6. The multi-party
// cryptography itself (CGGMP24, FROST) is supplied by an
// internal/protocol.Runner implementation; this binary wires
// protocol.NewTestRunner as the default until a real backend is plugged
// in, matching the package's documented external-math boundary.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/api"
	"github.com/torcus-labs/tss-wallet/internal/btctx"
	"github.com/torcus-labs/tss-wallet/internal/certs"
	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/coordinator"
	"github.com/torcus-labs/tss-wallet/internal/grant"
	"github.com/torcus-labs/tss-wallet/internal/kvstore"
	"github.com/torcus-labs/tss-wallet/internal/logging"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/orchestrator"
	"github.com/torcus-labs/tss-wallet/internal/presig"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/relaybus"
	"github.com/torcus-labs/tss-wallet/internal/router"
	"github.com/torcus-labs/tss-wallet/internal/session"
	"github.com/torcus-labs/tss-wallet/internal/store"
	"github.com/torcus-labs/tss-wallet/internal/transport"
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
			slog.Error("node error", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("tss-node %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: tss-node <command>

Commands:
  serve     Register with the coordinator and start this party's HTTP surface
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

	slog.Info("starting tss-node",
		"version", version,
		"nodeID", cfg.NodeID,
		"partyIndex", cfg.PartyIndex,
		"quicPort", cfg.QUICPort,
		"network", cfg.BTCNetwork,
	)

	netParams, err := btctx.NetParams(cfg.BTCNetwork)
	if err != nil {
		return fmt.Errorf("resolve network params: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("store opened", "path", cfg.DBPath)

	locks, err := kvstore.Open(cfg.KVEndpoints)
	if err != nil {
		return fmt.Errorf("open cluster kv store: %w", err)
	}
	defer locks.Close()

	storedCert, err := registerWithCoordinator(cfg)
	if err != nil {
		return fmt.Errorf("register with coordinator: %w", err)
	}

	sessions, err := session.New()
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}
	rtr := router.New()

	endpoint, err := startTransport(cfg, storedCert, rtr)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	if endpoint != nil {
		defer endpoint.Close()
	}

	runner := protocol.NewTestRunner(nil)
	holderID := fmt.Sprintf("node-%d", cfg.NodeID)

	dkg := coordinator.NewDKG(st, locks, rtr, runner, netParams, holderID, nil)
	auxInfo := coordinator.NewAuxInfo(st, rtr, runner, nil)
	signing := coordinator.NewSigning(st, rtr, sessions, runner, nil)

	issuer, _, err := grant.GenerateIssuer()
	if err != nil {
		return fmt.Errorf("generate grant issuer: %w", err)
	}
	orch := orchestrator.New(st, signing, issuer, netParams, cfg.PartyIndex, nil)

	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	startPresigPools(poolCtx, st, locks, rtr, runner, holderID, cfg.PartyIndex)
	go runSessionSweeper(poolCtx, sessions)

	deps := &api.Deps{
		Config:       cfg,
		Store:        st,
		DKG:          dkg,
		AuxInfo:      auxInfo,
		Signing:      signing,
		Orchestrator: orch,
		RelayBus:     relaybus.NewBus(),
	}
	r := api.NewRouter(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("node listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("node listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("initiating graceful shutdown")
	poolCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("node shutdown error: %w", err)
	}

	slog.Info("node stopped gracefully")
	return nil
}

// startPresigPools launches the background presignature generation loop
// for every wallet this node already holds a key share for (§4.6). New
// wallets minted after startup begin pooling the next time this process
// restarts, or can be started on demand by the DKG handler in a fuller
// deployment; keeping this simple matches the node binary's illustrative
// role in §6.
func startPresigPools(ctx context.Context, st *store.Store, locks *kvstore.Store, rtr *router.Router, runner protocol.Runner, holderID string, partyIndex int) {
	wallets, err := st.ListWallets()
	if err != nil {
		slog.Error("list wallets for presig pooling", "error", err)
		return
	}
	for _, w := range wallets {
		if w.Protocol != models.ProtocolCGGMP24 {
			continue
		}
		generate := coordinator.NewPresigGenerator(st, rtr, runner, partyIndex)
		pool := presig.NewPool(st, locks, generate, holderID, w.WalletID)
		participants := make([]int, w.TotalNodes)
		for i := range participants {
			participants[i] = i
		}
		go pool.RunLoop(ctx, w.WalletID, participants)
		slog.Info("presignature pool started", "wallet_id", w.WalletID)
	}
}

// runSessionSweeper enforces §4.5's timeout classes and retention pruning,
// which nothing else in this binary calls on a schedule: every
// CleanupInterval it fails any session that has exceeded its session, idle,
// or round timeout, then removes completed/failed sessions past their
// retention window.
func runSessionSweeper(ctx context.Context, sessions *session.Manager) {
	ticker := time.NewTicker(config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if failed := sessions.SweepTimeouts(now); len(failed) > 0 {
				slog.Warn("sessions timed out", "session_ids", failed)
			}
			if removed := sessions.Prune(now); removed > 0 {
				slog.Info("pruned retained sessions", "count", removed)
			}
		}
	}
}

// startTransport opens this node's QUIC mTLS endpoint (§4.3) and wires its
// inbound handler to rtr.Dispatch, then wires rtr's outbound delivery back
// to the endpoint via a RouterSender — completing the transport<->router
// glue §9 calls for. Returns a nil Endpoint (and does nothing) when this
// node has no issued certificate, which is the case for illustrative
// single-process runs with no coordinator registration. An empty peer list
// does not skip startup: the endpoint still listens, with nobody to send to.
func startTransport(cfg *config.Config, storedCert *certs.StoredNodeCert, rtr *router.Router) (*transport.Endpoint, error) {
	if storedCert == nil {
		slog.Warn("no issued node certificate, skipping QUIC transport startup")
		return nil, nil
	}

	peers, err := transport.ParsePeerBook(cfg.PeerAddrs)
	if err != nil {
		return nil, fmt.Errorf("parse peer address book: %w", err)
	}

	nodeCert, err := certs.NodeCertFromStored(storedCert)
	if err != nil {
		return nil, fmt.Errorf("reconstitute node certificate: %w", err)
	}

	endpoint, err := transport.NewEndpoint(cfg.PartyIndex, cfg.QUICPort, nodeCert, storedCert.CACertPEM, transport.DispatchingHandler(rtr.Dispatch))
	if err != nil {
		return nil, fmt.Errorf("open quic endpoint: %w", err)
	}

	rtr.SetSender(transport.NewRouterSender(endpoint, cfg.PartyIndex, peers))
	slog.Info("transport wired to router", "party_index", cfg.PartyIndex, "peers", len(peers))
	return endpoint, nil
}

// registerWithCoordinator performs the §6 registration handshake: POST
// /register with the cluster PSK to mint a one-time cert_token, then POST
// /cert/issue to exchange it for this party's signed leaf certificate. The
// issued certificate is both written to cfg.NodeCertPath (if configured) and
// returned in-process so startTransport can build this node's QUIC endpoint
// without a disk read-back.
func registerWithCoordinator(cfg *config.Config) (*certs.StoredNodeCert, error) {
	if cfg.NodeRegistrationPSK == "" {
		slog.Warn("no registration PSK configured, skipping coordinator registration")
		return nil, nil
	}

	client := &http.Client{Timeout: 10 * time.Second}
	nodeID := fmt.Sprintf("node-%d", cfg.NodeID)
	endpoint := fmt.Sprintf("127.0.0.1:%d", cfg.QUICPort)

	registerBody, _ := json.Marshal(map[string]any{
		"psk":         cfg.NodeRegistrationPSK,
		"node_id":     nodeID,
		"party_index": cfg.PartyIndex,
		"endpoint":    endpoint,
	})
	registerResp, err := client.Post(cfg.CoordinatorURL+"/register", "application/json", bytes.NewReader(registerBody))
	if err != nil {
		return nil, fmt.Errorf("POST /register: %w", err)
	}
	defer registerResp.Body.Close()
	if registerResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coordinator rejected registration: status %d", registerResp.StatusCode)
	}

	var registerOut struct {
		CertToken string `json:"cert_token"`
	}
	if err := json.NewDecoder(registerResp.Body).Decode(&registerOut); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}

	certBody, _ := json.Marshal(map[string]any{
		"cert_token":  registerOut.CertToken,
		"party_index": cfg.PartyIndex,
		"hostnames":   []string{nodeID},
	})
	certReq, err := http.NewRequest(http.MethodPost, cfg.CoordinatorURL+"/cert/issue", bytes.NewReader(certBody))
	if err != nil {
		return nil, fmt.Errorf("build /cert/issue request: %w", err)
	}
	certReq.Header.Set("Content-Type", "application/json")
	certReq.Header.Set("X-Node-ID", nodeID)
	certReq.Header.Set("X-Cert-Token", registerOut.CertToken)
	certReq.Header.Set("X-Party-Index", fmt.Sprintf("%d", cfg.PartyIndex))

	certResp, err := client.Do(certReq)
	if err != nil {
		return nil, fmt.Errorf("POST /cert/issue: %w", err)
	}
	defer certResp.Body.Close()
	if certResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coordinator rejected certificate issuance: status %d", certResp.StatusCode)
	}

	var certOut certs.StoredNodeCert
	if err := json.NewDecoder(certResp.Body).Decode(&certOut); err != nil {
		return nil, fmt.Errorf("decode cert/issue response: %w", err)
	}
	if cfg.NodeCertPath != "" {
		encoded, err := json.MarshalIndent(&certOut, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode issued certificate: %w", err)
		}
		if err := os.WriteFile(cfg.NodeCertPath, encoded, 0o600); err != nil {
			return nil, fmt.Errorf("write node cert to %s: %w", cfg.NodeCertPath, err)
		}
	}

	slog.Info("registered with coordinator", "node_id", nodeID, "party_index", cfg.PartyIndex)
	return &certOut, nil
}
