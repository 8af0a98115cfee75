// Package presig manages the CGGMP24 presignature pool (§4.6). Presigning
// is the expensive part of threshold ECDSA; doing it ahead of time, in a
// background loop, lets an actual signing request complete in well under a
// second once a grant arrives. Generation is serialized across the
// cluster with a distributed lock so nodes don't race to overfill the
// pool from independent ceremonies.
package presig

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/kvstore"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// Store is the persistence surface presig needs; internal/store implements it.
type Store interface {
	SavePresignature(p *models.Presignature) error
	CountAvailable(walletID string) (int, error)
	AcquireOne(walletID string) (*models.Presignature, error) // atomically claims and marks used
	DeleteOlderThan(cutoff time.Time) (int, error)
}

// Generator runs one CGGMP24 presignature ceremony and returns how many
// presignatures it produced; internal/coordinator.NewPresigGenerator builds
// one over a protocol.Runner.
type Generator func(ctx context.Context, walletID string, participants []int, count int) (int, error)

// Pool manages the presignature pool for one wallet/ceremony identity.
type Pool struct {
	store    Store
	locks    *kvstore.Store
	generate Generator
	holderID string
	lockKey  string
}

// NewPool creates a pool for walletID. holderID identifies this node as a
// lock holder (e.g. its node ID) so a crashed generation round can be
// taken over by another node.
func NewPool(store Store, locks *kvstore.Store, generate Generator, holderID, walletID string) *Pool {
	return &Pool{
		store:    store,
		locks:    locks,
		generate: generate,
		holderID: holderID,
		lockKey:  config.LockKeySigningPrefix + walletID + "/presig-gen",
	}
}

// RunLoop generates presignatures in the background until ctx is canceled,
// running one generation batch each period while the pool is at or below
// min (§4.6). A batch asks for target minus the current count, capped at
// PresigGenerationMaxBatch, so one cycle does not by itself refill to target.
func (p *Pool) RunLoop(ctx context.Context, walletID string, participants []int) {
	ticker := time.NewTicker(config.PresigGenerationPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.maybeGenerate(ctx, walletID, participants); err != nil {
				slog.Warn("presignature generation cycle failed", "wallet_id", walletID, "error", err)
			}
		}
	}
}

// maybeGenerate tops up the pool if it is at or below the minimum
// threshold. Generation is skipped (not an error) if another node already
// holds the generation lock.
func (p *Pool) maybeGenerate(ctx context.Context, walletID string, participants []int) error {
	current, err := p.store.CountAvailable(walletID)
	if err != nil {
		return fmt.Errorf("failed to count available presignatures: %w", err)
	}
	if current > config.PresigMin {
		return nil
	}

	acquired, err := p.locks.AcquireLock(p.lockKey, p.holderID, config.PresigLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire presignature generation lock: %w", err)
	}
	if !acquired {
		slog.Debug("presignature generation lock held elsewhere, skipping cycle", "wallet_id", walletID)
		return nil
	}
	defer p.locks.ReleaseLock(p.lockKey, p.holderID)

	want := config.PresigTarget - current
	if want > config.PresigGenerationMaxBatch {
		want = config.PresigGenerationMaxBatch
	}
	if current+want > config.PresigMax {
		want = config.PresigMax - current
	}
	if want <= 0 {
		return nil
	}

	generated, err := p.generate(ctx, walletID, participants, want)
	if err != nil {
		return fmt.Errorf("presignature ceremony failed: %w", err)
	}

	now := time.Now()
	for i := 0; i < generated; i++ {
		if err := p.store.SavePresignature(&models.Presignature{
			PresigID:     uuid.NewString(),
			WalletID:     walletID,
			Participants: participants,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("failed to persist generated presignature: %w", err)
		}
	}

	slog.Info("presignature batch generated", "wallet_id", walletID, "count", generated)
	return nil
}

// Acquire claims one unused presignature for walletID, or
// config.ErrNoPresignatures if the pool is empty (§4.6: single-use).
func (p *Pool) Acquire(walletID string) (*models.Presignature, error) {
	presig, err := p.store.AcquireOne(walletID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrNoPresignatures, err)
	}
	if presig == nil {
		return nil, config.ErrNoPresignatures
	}
	return presig, nil
}

// EvictExpired deletes presignatures older than config.PresigMaxAge, since
// aged-out material may no longer match the latest aux-info ceremony.
func (p *Pool) EvictExpired() (int, error) {
	cutoff := time.Now().Add(-config.PresigMaxAge)
	n, err := p.store.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to evict expired presignatures: %w", err)
	}
	return n, nil
}
