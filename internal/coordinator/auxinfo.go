package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/router"
	"github.com/torcus-labs/tss-wallet/internal/store"
)

// AuxInfo runs the CGGMP24 auxiliary-parameter ceremony (§3): generated
// once per wallet/node pair and reused across every signing of that
// ceremony identity, independent of the per-transaction presignature pool.
type AuxInfo struct {
	store  *store.Store
	router *router.Router
	runner protocol.Runner
	log    *slog.Logger
}

// NewAuxInfo builds an aux-info coordinator.
func NewAuxInfo(st *store.Store, rtr *router.Router, runner protocol.Runner, log *slog.Logger) *AuxInfo {
	if log == nil {
		log = slog.Default()
	}
	return &AuxInfo{store: st, router: rtr, runner: runner, log: log}
}

// Run drives the aux-info ceremony for this node's party and persists the
// result against walletID, becoming the latest aux-info for (walletID,
// partyIndex) that NewPresigGenerator reads.
func (a *AuxInfo) Run(ctx context.Context, walletID string, partyIndex int, participants []int) (*models.AuxInfoRecord, error) {
	sessionID := uuid.NewString()

	channels, err := a.router.RegisterSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("register aux-info session: %w", err)
	}
	defer a.router.Unregister(sessionID)

	transport := newRouterTransport(sessionID, partyIndex, models.ProtocolCGGMP24, channels, nil)
	result, err := a.runner.RunAuxInfo(ctx, partyIndex, participants, transport)
	if err != nil {
		return nil, fmt.Errorf("run aux-info ceremony %s: %w", sessionID, err)
	}

	result.AuxInfo.SessionID = sessionID
	if err := a.store.SaveAuxInfo(walletID, &result.AuxInfo); err != nil {
		return nil, fmt.Errorf("persist aux-info: %w", err)
	}

	a.log.Info("aux-info ceremony completed", "session_id", sessionID, "wallet_id", walletID, "party_index", partyIndex)
	return &result.AuxInfo, nil
}
