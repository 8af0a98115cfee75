// Package orchestrator is the facade spec §2 describes: it accepts a
// send request against a wallet, selects the MPC protocol from the
// wallet's address type, and drives the transaction build and signing
// ceremonies end to end. It never fetches UTXOs from a live chain and
// never broadcasts the result (§1 Non-goals) — callers supply spendable
// UTXOs and the destination outputs, and get back a finalized, signed
// transaction plus its txid.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/torcus-labs/tss-wallet/internal/btctx"
	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/coordinator"
	"github.com/torcus-labs/tss-wallet/internal/grant"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/selector"
	"github.com/torcus-labs/tss-wallet/internal/store"
)

// Orchestrator drives one cluster node's side of a Bitcoin send: build the
// unsigned transaction, issue a grant and run the signing ceremony for
// every input, then finalize the witness data (§2, §4.1, §4.9, §4.10).
type Orchestrator struct {
	store      *store.Store
	signing    *coordinator.Signing
	grants     *grant.Issuer
	netParams  *chaincfg.Params
	partyIndex int
	policy     selector.Policy
	log        *slog.Logger
}

// New builds an Orchestrator bound to one node's party index.
func New(st *store.Store, signing *coordinator.Signing, grants *grant.Issuer, netParams *chaincfg.Params, partyIndex int, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:      st,
		signing:    signing,
		grants:     grants,
		netParams:  netParams,
		partyIndex: partyIndex,
		policy:     selector.PolicyDeterministic,
		log:        log,
	}
}

// SendRequest is everything the orchestrator needs to assemble and sign one
// transaction. UTXOs and Outputs are caller-supplied: fetching a wallet's
// spendable set from a chain indexer is explicitly out of scope (§1).
type SendRequest struct {
	WalletID        string
	UTXOs           []models.UTXO
	Outputs         []models.TxOutput
	ChangeAddress   string
	FeeRatePerVByte int64
	OpReturnData    []byte
}

// SendResult is the finalized transaction ready for the caller to broadcast
// through whatever chain-backend integration it owns.
type SendResult struct {
	WalletID string
	TxID     string
	RawTx    []byte
	FeeSats  int64
	Vsize    int
}

// Send assembles req into an unsigned transaction, drives one signing
// ceremony per input (§4.9), and returns the finalized transaction (§4.10
// step 5). Each input's message hash gets its own deterministic
// participant selection (§4.2) and grant (§4.1), so a large multi-input
// transaction need not pin every signature to the same party subset.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	wallet, err := o.store.GetWallet(req.WalletID)
	if err != nil {
		return nil, fmt.Errorf("look up wallet %s: %w", req.WalletID, err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("%w: %s", config.ErrWalletNotFound, req.WalletID)
	}

	ceremony, err := o.store.GetDKGCeremonyByWalletID(wallet.WalletID)
	if err != nil {
		return nil, fmt.Errorf("look up dkg ceremony for wallet %s: %w", wallet.WalletID, err)
	}
	if ceremony == nil {
		return nil, fmt.Errorf("%w: no completed dkg ceremony for wallet %s", config.ErrWalletNotFound, wallet.WalletID)
	}

	share, err := o.store.GetKeyShareForWallet(wallet.WalletID, o.partyIndex)
	if err != nil {
		return nil, fmt.Errorf("look up key share for wallet %s: %w", wallet.WalletID, err)
	}
	if share == nil {
		return nil, fmt.Errorf("%w: wallet %s party %d", config.ErrKeyShareMissing, wallet.WalletID, o.partyIndex)
	}

	unsigned, err := btctx.Build(btctx.BuildParams{
		UTXOs:            req.UTXOs,
		Outputs:          req.Outputs,
		ChangeAddress:    req.ChangeAddress,
		ChangeOutputType: wallet.AddressType,
		FeeRatePerVByte:  req.FeeRatePerVByte,
		OpReturnData:     req.OpReturnData,
		NetParams:        o.netParams,
	})
	if err != nil {
		return nil, fmt.Errorf("build unsigned transaction: %w", err)
	}

	o.log.Info("assembled unsigned transaction",
		"wallet_id", wallet.WalletID, "inputs", len(unsigned.Inputs),
		"fee_sats", unsigned.FeeSats, "vsize", unsigned.Vsize)

	signatures := make([][]byte, len(unsigned.Sighashes))
	for i, sighash := range unsigned.Sighashes {
		var messageHash [32]byte
		copy(messageHash[:], sighash)

		sel, err := selector.Select(o.policy, selector.Input{
			Seed:           selector.Seed(wallet.WalletID, messageHash),
			AvailableNodes: ceremony.Participants,
			Threshold:      wallet.Threshold,
		})
		if err != nil {
			return nil, fmt.Errorf("select signing participants for input %d: %w", i, err)
		}

		g, err := o.grants.Issue(wallet.WalletID, messageHash, wallet.Threshold, sel.Participants, config.DefaultGrantLifetime)
		if err != nil {
			return nil, fmt.Errorf("issue signing grant for input %d: %w", i, err)
		}

		sig, err := o.signing.Sign(ctx, g, o.partyIndex, wallet.Protocol, *share, messageHash)
		if err != nil {
			return nil, fmt.Errorf("sign input %d: %w", i, err)
		}
		signatures[i] = sig

		o.log.Info("input signed",
			"wallet_id", wallet.WalletID, "input", i, "protocol", wallet.Protocol,
			"participants", sel.Participants, "selection_hash", sel.SelectionHash)
	}

	rawTx, txid, err := btctx.FinalizeWitness(unsigned, signatures, wallet.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}

	o.log.Info("finalized signed transaction", "wallet_id", wallet.WalletID, "txid", txid)

	return &SendResult{
		WalletID: wallet.WalletID,
		TxID:     txid,
		RawTx:    rawTx,
		FeeSats:  unsigned.FeeSats,
		Vsize:    unsigned.Vsize,
	}, nil
}
