package btctx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// BuildParams is everything needed to assemble one unsigned transaction.
type BuildParams struct {
	UTXOs             []models.UTXO
	Outputs           []models.TxOutput
	ChangeAddress     string
	ChangeOutputType  models.AddressType
	FeeRatePerVByte   int64
	OpReturnData      []byte // optional, <= config.BTCOpReturnMaxDataLen
	NetParams         *chaincfg.Params
}

// Build selects inputs, assembles the unsigned wire.MsgTx, and computes
// the per-input sighash internal/protocol's Runner signs over (BIP-143
// for P2WPKH, BIP-341 key-path for P2TR). The returned UnsignedTx carries
// no signatures or witness data (§4.10).
func Build(p BuildParams) (*models.UnsignedTx, error) {
	if len(p.OpReturnData) > config.BTCOpReturnMaxDataLen {
		return nil, fmt.Errorf("%w: OP_RETURN payload %d bytes exceeds maximum %d", config.ErrOpReturnTooLarge, len(p.OpReturnData), config.BTCOpReturnMaxDataLen)
	}

	sel, err := SelectUTXOs(p.UTXOs, p.Outputs, p.FeeRatePerVByte, p.ChangeOutputType)
	if err != nil {
		return nil, err
	}

	changeScript, err := addressToScript(p.ChangeAddress, p.NetParams)
	if err != nil {
		return nil, fmt.Errorf("decode change address: %w", err)
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)

	for _, u := range sel.Selected {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("parse UTXO txid %q: %w", u.TxID, err)
		}
		txIn := wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum
		msgTx.AddTxIn(txIn)
	}

	for _, o := range p.Outputs {
		script, err := addressToScript(o.Address, p.NetParams)
		if err != nil {
			return nil, fmt.Errorf("decode output address %q: %w", o.Address, err)
		}
		if o.Amount < int64(config.DustLimitSats) {
			return nil, fmt.Errorf("%w: output to %s is %d sats, below dust limit %d", config.ErrDustOutput, o.Address, o.Amount, config.DustLimitSats)
		}
		msgTx.AddTxOut(wire.NewTxOut(o.Amount, script))
	}

	if len(p.OpReturnData) > 0 {
		opReturnScript, err := txscript.NullDataScript(p.OpReturnData)
		if err != nil {
			return nil, fmt.Errorf("build OP_RETURN script: %w", err)
		}
		msgTx.AddTxOut(wire.NewTxOut(0, opReturnScript))
	}

	if sel.ChangeSats > 0 {
		msgTx.AddTxOut(wire.NewTxOut(sel.ChangeSats, changeScript))
	}

	prevOutFetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, u := range sel.Selected {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("parse UTXO txid %q: %w", u.TxID, err)
		}
		prevOutFetcher.AddPrevOut(wire.OutPoint{Hash: *hash, Index: u.Vout}, &wire.TxOut{Value: u.Value, PkScript: u.PkScript})
	}
	sigHashes := txscript.NewTxSigHashes(msgTx, prevOutFetcher)

	sighashes := make([][]byte, len(sel.Selected))
	for i, u := range sel.Selected {
		var sh []byte
		var err error
		if u.AddressType == models.AddressP2TR {
			sh, err = txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashDefault, msgTx, i, prevOutFetcher)
		} else {
			sh, err = txscript.CalcWitnessSigHash(u.PkScript, sigHashes, txscript.SigHashAll, msgTx, i, u.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("compute sighash for input %d: %w", i, err)
		}
		sighashes[i] = sh
	}

	var raw bytes.Buffer
	if err := msgTx.Serialize(&raw); err != nil {
		return nil, fmt.Errorf("serialize unsigned tx: %w", err)
	}

	return &models.UnsignedTx{
		RawBytes:   raw.Bytes(),
		Sighashes:  sighashes,
		Inputs:     sel.Selected,
		Outputs:    p.Outputs,
		ChangeSats: sel.ChangeSats,
		FeeSats:    sel.FeeSats,
		Vsize:      sel.Vsize,
	}, nil
}

func addressToScript(address string, netParams *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(address, netParams)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(decoded)
}
