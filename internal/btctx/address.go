package btctx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// DeriveAddress computes the Bitcoin address a freshly-completed DKG
// ceremony's public key controls: P2WPKH from a 33-byte compressed
// secp256k1 public key for CGGMP24, P2TR from a 32-byte x-only public key
// for FROST (§4.8).
func DeriveAddress(protocol models.Protocol, publicKey []byte, netParams *chaincfg.Params) (string, error) {
	if protocol == models.ProtocolFROST {
		if len(publicKey) != 32 {
			return "", fmt.Errorf("%w: x-only public key must be 32 bytes, got %d", config.ErrInvalidAddress, len(publicKey))
		}
		addr, err := btcutil.NewAddressTaproot(publicKey, netParams)
		if err != nil {
			return "", fmt.Errorf("derive taproot address: %w", err)
		}
		return addr.EncodeAddress(), nil
	}

	if len(publicKey) != 33 {
		return "", fmt.Errorf("%w: compressed public key must be 33 bytes, got %d", config.ErrInvalidAddress, len(publicKey))
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(publicKey), netParams)
	if err != nil {
		return "", fmt.Errorf("derive p2wpkh address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// AddressTypeForProtocol maps a ceremony's protocol to the output script
// type its wallet address uses.
func AddressTypeForProtocol(protocol models.Protocol) models.AddressType {
	if protocol == models.ProtocolFROST {
		return models.AddressP2TR
	}
	return models.AddressP2WPKH
}
