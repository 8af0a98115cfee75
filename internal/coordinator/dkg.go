package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"

	"github.com/torcus-labs/tss-wallet/internal/btctx"
	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/kvstore"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/router"
	"github.com/torcus-labs/tss-wallet/internal/store"
)

// DKG runs the key-generation ceremony for one node (§4.8). The node that
// calls Initiate becomes this ceremony's lock holder and publishes the
// resulting wallet to the cluster KV; every other participant calls Join
// once it learns the session_id (via the relay bus or out-of-band), and
// independently derives and persists the identical address from its own
// copy of the ceremony's public key.
type DKG struct {
	store     *store.Store
	locks     *kvstore.Store
	router    *router.Router
	runner    protocol.Runner
	netParams *chaincfg.Params
	holderID  string
	log       *slog.Logger
}

// NewDKG builds a DKG coordinator. holderID identifies this node as a lock
// holder (its node ID), so a crashed ceremony's lease can be taken over.
func NewDKG(st *store.Store, locks *kvstore.Store, rtr *router.Router, runner protocol.Runner, netParams *chaincfg.Params, holderID string, log *slog.Logger) *DKG {
	if log == nil {
		log = slog.Default()
	}
	return &DKG{store: st, locks: locks, router: rtr, runner: runner, netParams: netParams, holderID: holderID, log: log}
}

// Initiate acquires the cluster DKG lock, records the ceremony, runs it
// for this node's party, and on success derives and persists the minted
// wallet and publishes its public key and config to the cluster KV.
func (d *DKG) Initiate(ctx context.Context, protocolName models.Protocol, partyIndex int, participants []int, threshold int) (*models.Wallet, error) {
	acquired, err := d.locks.AcquireLock(config.LockKeyDKG, d.holderID, config.DKGLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire dkg lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s held by another node", config.ErrLockHeld, config.LockKeyDKG)
	}
	defer d.locks.ReleaseLock(config.LockKeyDKG, d.holderID)

	sessionID := uuid.NewString()
	if err := d.store.CreateDKGCeremony(&store.DKGCeremony{
		SessionID:    sessionID,
		Protocol:     protocolName,
		Threshold:    threshold,
		Participants: participants,
	}); err != nil {
		return nil, fmt.Errorf("create dkg ceremony: %w", err)
	}

	result, err := d.runCeremony(ctx, sessionID, protocolName, partyIndex, participants, threshold)
	if err != nil {
		_ = d.store.FailDKGCeremony(sessionID, err.Error())
		return nil, err
	}

	wallet, err := d.persistWallet(sessionID, protocolName, threshold, len(participants), result)
	if err != nil {
		_ = d.store.FailDKGCeremony(sessionID, err.Error())
		return nil, err
	}

	if err := d.store.CompleteDKGCeremony(sessionID, wallet.WalletID); err != nil {
		return nil, fmt.Errorf("complete dkg ceremony: %w", err)
	}

	if err := d.publishClusterConfig(protocolName, threshold, len(participants), result.PublicKey); err != nil {
		d.log.Warn("failed to publish dkg cluster config", "session_id", sessionID, "error", err)
	}

	d.log.Info("dkg ceremony completed", "session_id", sessionID, "wallet_id", wallet.WalletID, "address", wallet.Address)
	return wallet, nil
}

// Join runs the ceremony for this node as a non-initiating participant,
// reading the ceremony record the initiator already created.
func (d *DKG) Join(ctx context.Context, sessionID string, partyIndex int) (*models.Wallet, error) {
	ceremony, err := d.store.GetDKGCeremony(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load dkg ceremony: %w", err)
	}
	if ceremony == nil {
		return nil, fmt.Errorf("%w: dkg ceremony %s", config.ErrRelaySessionGone, sessionID)
	}

	result, err := d.runCeremony(ctx, sessionID, ceremony.Protocol, partyIndex, ceremony.Participants, ceremony.Threshold)
	if err != nil {
		_ = d.store.FailDKGCeremony(sessionID, err.Error())
		return nil, err
	}

	wallet, err := d.persistWallet(sessionID, ceremony.Protocol, ceremony.Threshold, len(ceremony.Participants), result)
	if err != nil {
		_ = d.store.FailDKGCeremony(sessionID, err.Error())
		return nil, err
	}

	if err := d.store.CompleteDKGCeremony(sessionID, wallet.WalletID); err != nil {
		return nil, fmt.Errorf("complete dkg ceremony: %w", err)
	}
	return wallet, nil
}

func (d *DKG) runCeremony(ctx context.Context, sessionID string, protocolName models.Protocol, partyIndex int, participants []int, threshold int) (*protocol.KeygenResult, error) {
	channels, err := d.router.RegisterSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("register dkg session: %w", err)
	}
	defer d.router.Unregister(sessionID)

	transport := newRouterTransport(sessionID, partyIndex, protocolName, channels, nil)
	result, err := d.runner.RunKeygen(ctx, protocolName, partyIndex, participants, threshold, transport)
	if err != nil {
		return nil, fmt.Errorf("run keygen ceremony %s: %w", sessionID, err)
	}

	result.Share.SessionID = sessionID
	result.Share.WalletID = walletIDForSession(sessionID)
	if err := d.store.SaveKeyShare(&result.Share); err != nil {
		return nil, fmt.Errorf("persist key share: %w", err)
	}
	return result, nil
}

// walletIDForSession derives the wallet_id every independently-running
// participant assigns to the same ceremony, so no extra round trip is
// needed to agree on an identifier for the wallet keygen is about to mint.
func walletIDForSession(sessionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("dkg-wallet/"+sessionID)).String()
}

func (d *DKG) persistWallet(sessionID string, protocolName models.Protocol, threshold, totalNodes int, result *protocol.KeygenResult) (*models.Wallet, error) {
	addressType := btctx.AddressTypeForProtocol(protocolName)
	address, err := btctx.DeriveAddress(protocolName, result.PublicKey, d.netParams)
	if err != nil {
		return nil, fmt.Errorf("derive wallet address: %w", err)
	}

	wallet := &models.Wallet{
		WalletID:    walletIDForSession(sessionID),
		Name:        address,
		Protocol:    protocolName,
		AddressType: addressType,
		PublicKey:   result.PublicKey,
		Address:     address,
		Threshold:   threshold,
		TotalNodes:  totalNodes,
	}
	if err := d.store.SaveWallet(wallet); err != nil {
		return nil, fmt.Errorf("persist wallet: %w", err)
	}
	return wallet, nil
}

func (d *DKG) publishClusterConfig(protocolName models.Protocol, threshold, totalNodes int, publicKey []byte) error {
	configValue := fmt.Sprintf(`{"threshold":%d,"total_nodes":%d,"public_key_hex":"%x"}`, threshold, totalNodes, publicKey)
	if err := d.locks.Put(config.KVKeyDKGConfigPrefix+string(protocolName)+"/config", []byte(configValue)); err != nil {
		return fmt.Errorf("publish dkg config: %w", err)
	}
	if err := d.locks.Put(config.KVKeyPublicKeyPrefix+string(protocolName), publicKey); err != nil {
		return fmt.Errorf("publish public key: %w", err)
	}
	return nil
}
