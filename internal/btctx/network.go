// Package btctx assembles unsigned Bitcoin transactions for both P2WPKH
// (BIP-143) and P2TR (BIP-341 key-path) outputs, computes the sighashes
// internal/protocol's Runner signs over, and finalizes the witness once
// the MPC ceremony returns a signature. It never holds a private key:
// everything here is shaped around "sighash out, signature in" (§4.10).
package btctx

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/torcus-labs/tss-wallet/internal/config"
)

// NetParams resolves the chaincfg parameters for the configured Bitcoin
// network. Mainnet is accepted here for completeness of the mapping, but
// config.Validate refuses it at process startup (§6 Non-goals).
func NetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("%w: unknown bitcoin network %q", config.ErrInvalidConfig, network)
	}
}
