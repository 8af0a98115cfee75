package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/presig"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/router"
	"github.com/torcus-labs/tss-wallet/internal/store"
)

// NewPresigGenerator adapts protocol.Runner.RunPresig into the
// presig.Generator function internal/presig.Pool's background loop calls,
// looking up this node's key share and latest aux-info for the wallet on
// each batch (§4.6).
func NewPresigGenerator(st *store.Store, rtr *router.Router, runner protocol.Runner, partyIndex int) presig.Generator {
	return func(ctx context.Context, walletID string, participants []int, count int) (int, error) {
		share, err := st.GetKeyShareForWallet(walletID, partyIndex)
		if err != nil {
			return 0, fmt.Errorf("load key share for presig generation: %w", err)
		}
		if share == nil {
			return 0, fmt.Errorf("no key share on file for wallet %s party %d", walletID, partyIndex)
		}
		aux, err := st.GetLatestAuxInfo(walletID, partyIndex)
		if err != nil {
			return 0, fmt.Errorf("load aux-info for presig generation: %w", err)
		}
		if aux == nil {
			return 0, fmt.Errorf("no aux-info on file for wallet %s party %d", walletID, partyIndex)
		}

		sessionID := uuid.NewString()
		channels, err := rtr.RegisterSession(sessionID)
		if err != nil {
			return 0, fmt.Errorf("register presig session: %w", err)
		}
		defer rtr.Unregister(sessionID)

		transport := newRouterTransport(sessionID, partyIndex, share.Protocol, channels, nil)
		result, err := runner.RunPresig(ctx, *share, *aux, participants, count, transport)
		if err != nil {
			return 0, fmt.Errorf("run presig ceremony %s: %w", sessionID, err)
		}

		now := time.Now()
		for _, id := range result.PresigIDs {
			if err := st.SavePresignature(&models.Presignature{
				PresigID:     id,
				WalletID:     walletID,
				Participants: participants,
				CreatedAt:    now,
			}); err != nil {
				return 0, fmt.Errorf("persist presignature %s: %w", id, err)
			}
		}
		return len(result.PresigIDs), nil
	}
}
