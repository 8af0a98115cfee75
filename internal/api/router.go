// Package api wires the coordinator's HTTP surface (§6): grant issuance,
// DKG/aux-info/signing ceremony kickoff, wallet send, node registration and
// certificate issuance, and the relay bus fallback transport.
package api

import (
	"crypto/ed25519"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/torcus-labs/tss-wallet/internal/api/handlers"
	"github.com/torcus-labs/tss-wallet/internal/api/middleware"
	"github.com/torcus-labs/tss-wallet/internal/certs"
	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/coordinator"
	"github.com/torcus-labs/tss-wallet/internal/grant"
	"github.com/torcus-labs/tss-wallet/internal/orchestrator"
	"github.com/torcus-labs/tss-wallet/internal/registry"
	"github.com/torcus-labs/tss-wallet/internal/relaybus"
	"github.com/torcus-labs/tss-wallet/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps bundles every coordinator-side component the HTTP surface dispatches
// into. A given process (coordinator vs. node) may run only a subset of the
// handlers this wires, but sharing one router keeps route definitions in
// one place per spec §6.
type Deps struct {
	Config      *config.Config
	Store       *store.Store
	Registry    *registry.Registry
	CA          *certs.CA
	GrantIssuer *grant.Issuer
	GrantPubkey ed25519.PublicKey
	DKG         *coordinator.DKG
	AuxInfo     *coordinator.AuxInfo
	Signing     *coordinator.Signing
	Orchestrator *orchestrator.Orchestrator
	RelayBus    *relaybus.Bus
}

// NewRouter builds the chi router for deps. /register is unauthenticated
// (it's the PSK gate itself), and so is GET /api/health; every other route
// requires a valid cert_token/node_id pair issued by a prior registration (§6).
func NewRouter(deps *Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogging)

	r.Get("/api/health", handlers.HealthHandler(deps.Config, Version))

	r.Post("/register", handlers.RegisterHandler(deps.Registry))

	r.Group(func(r chi.Router) {
		r.Use(middleware.HeartbeatAuth(deps.Registry))

		r.Post("/cert/issue", handlers.CertIssueHandler(deps.Registry, deps.CA))

		r.Post("/grant/issue", handlers.GrantIssueHandler(deps.GrantIssuer))
		r.Get("/grant/pubkey", handlers.GrantPubkeyHandler(deps.GrantPubkey))

		r.Post("/dkg/start", handlers.DKGStartHandler(deps.DKG))
		r.Post("/aux-info/start", handlers.AuxInfoStartHandler(deps.AuxInfo))
		r.Post("/cggmp24/sign", handlers.CGGMP24SignHandler(deps.Store, deps.Signing))
		r.Post("/wallet/{wallet_id}/send", handlers.WalletSendHandler(deps.Orchestrator))

		r.Post("/relay/submit", handlers.RelaySubmitHandler(deps.RelayBus))
		r.Get("/relay/poll/{session_id}/{party_index}", handlers.RelayPollHandler(deps.RelayBus))
	})

	slog.Info("coordinator router initialized")
	return r
}
