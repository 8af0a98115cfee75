package btctx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// schnorrSigLen is the length of a BIP-340 signature with no appended
// sighash-type byte (the SigHashDefault case, the only one Build uses).
const schnorrSigLen = 64

// FinalizeWitness attaches the MPC-produced signatures to the unsigned
// transaction's inputs and returns the fully signed, serialized
// transaction along with its txid. signatures must be in input order and
// line up one-to-one with unsigned.Inputs/unsigned.Sighashes; publicKey is
// the wallet's single shared public key, since every input of one wallet's
// transaction spends the same threshold key (§4.10).
//
// P2WPKH inputs take a DER ECDSA signature (re-serialized low-S) plus the
// SigHashAll type byte and the compressed public key as witness items.
// P2TR key-path inputs take the raw 64-byte Schnorr signature alone.
func FinalizeWitness(unsigned *models.UnsignedTx, signatures [][]byte, publicKey []byte) ([]byte, string, error) {
	if len(signatures) != len(unsigned.Inputs) {
		return nil, "", fmt.Errorf("%w: got %d signatures for %d inputs", config.ErrInvalidSigLength, len(signatures), len(unsigned.Inputs))
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(unsigned.RawBytes)); err != nil {
		return nil, "", fmt.Errorf("deserialize unsigned tx: %w", err)
	}
	if len(msgTx.TxIn) != len(signatures) {
		return nil, "", fmt.Errorf("%w: unsigned tx has %d inputs, got %d signatures", config.ErrInvalidSigLength, len(msgTx.TxIn), len(signatures))
	}

	for i, u := range unsigned.Inputs {
		switch u.AddressType {
		case models.AddressP2TR:
			witness, err := taprootWitness(signatures[i])
			if err != nil {
				return nil, "", fmt.Errorf("taproot witness for input %d: %w", i, err)
			}
			msgTx.TxIn[i].Witness = witness
		default:
			witness, err := p2wpkhWitness(signatures[i], publicKey)
			if err != nil {
				return nil, "", fmt.Errorf("p2wpkh witness for input %d: %w", i, err)
			}
			msgTx.TxIn[i].Witness = witness
		}
	}

	var raw bytes.Buffer
	if err := msgTx.Serialize(&raw); err != nil {
		return nil, "", fmt.Errorf("serialize signed tx: %w", err)
	}

	return raw.Bytes(), msgTx.TxHash().String(), nil
}

func p2wpkhWitness(sig, publicKey []byte) (wire.TxWitness, error) {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidSigLength, err)
	}
	derLowS := append(parsed.Serialize(), byte(txscript.SigHashAll))
	return wire.TxWitness{derLowS, publicKey}, nil
}

func taprootWitness(sig []byte) (wire.TxWitness, error) {
	if len(sig) != schnorrSigLen {
		return nil, fmt.Errorf("%w: expected %d-byte schnorr signature, got %d", config.ErrInvalidSigLength, schnorrSigLen, len(sig))
	}
	if _, err := schnorr.ParseSignature(sig); err != nil {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidSigLength, err)
	}
	return wire.TxWitness{sig}, nil
}
