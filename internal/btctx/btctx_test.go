package btctx

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// minimalUnsignedTx builds a serialized one-input, one-output tx so
// FinalizeWitness's input-parsing stage is reached without going through
// the full Build pipeline.
func minimalUnsignedTx(t *testing.T, inputType models.AddressType) *models.UnsignedTx {
	t.Helper()
	msgTx := wire.NewMsgTx(wire.TxVersion)
	hash, err := chainhash.NewHashFromStr(fundingTxID(9))
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}
	msgTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 0), nil, nil))
	msgTx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_TRUE}))

	var raw bytes.Buffer
	if err := msgTx.Serialize(&raw); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return &models.UnsignedTx{
		RawBytes:  raw.Bytes(),
		Sighashes: [][]byte{make([]byte, 32)},
		Inputs:    []models.UTXO{{AddressType: inputType}},
	}
}

func TestNetParams(t *testing.T) {
	cases := map[string]bool{"mainnet": true, "testnet": true, "regtest": true, "bogus": false}
	for net, ok := range cases {
		p, err := NetParams(net)
		if ok && (err != nil || p == nil) {
			t.Errorf("NetParams(%q): expected success, got %v, %v", net, p, err)
		}
		if !ok && !errors.Is(err, config.ErrInvalidConfig) {
			t.Errorf("NetParams(%q): expected ErrInvalidConfig, got %v", net, err)
		}
	}
}

func TestEstimateVsize_GrowsWithEachInput(t *testing.T) {
	one := EstimateVsize([]models.AddressType{models.AddressP2WPKH}, 1, 0, 0)
	two := EstimateVsize([]models.AddressType{models.AddressP2WPKH, models.AddressP2WPKH}, 1, 0, 0)
	if two <= one {
		t.Fatalf("expected vsize to grow with input count: one=%d two=%d", one, two)
	}
}

func TestEstimateVsize_P2TRInputCheaperThanP2WPKH(t *testing.T) {
	wpkh := EstimateVsize([]models.AddressType{models.AddressP2WPKH}, 1, 0, 0)
	tr := EstimateVsize([]models.AddressType{models.AddressP2TR}, 0, 1, 0)
	if tr >= wpkh {
		t.Fatalf("expected a single P2TR input+output to be cheaper than P2WPKH: p2tr=%d p2wpkh=%d", tr, wpkh)
	}
}

func TestEstimateFee(t *testing.T) {
	if got := EstimateFee(100, 5); got != 500 {
		t.Fatalf("EstimateFee(100, 5) = %d, want 500", got)
	}
}

func p2wpkhUTXO(t *testing.T, netParams *chaincfg.Params, priv *btcec.PrivateKey, value int64, txid string, vout uint32) models.UTXO {
	t.Helper()
	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, netParams)
	if err != nil {
		t.Fatalf("NewAddressWitnessPubKeyHash: %v", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("PayToAddrScript: %v", err)
	}
	return models.UTXO{TxID: txid, Vout: vout, Value: value, PkScript: script, AddressType: models.AddressP2WPKH}
}

func fundingTxID(n byte) string {
	h := make([]byte, 32)
	for i := range h {
		h[i] = n
	}
	s := ""
	for _, b := range h {
		s += string("0123456789abcdef"[b>>4]) + string("0123456789abcdef"[b&0xf])
	}
	return s
}

func TestSelectUTXOs_ExactAndWithChange(t *testing.T) {
	netParams := &chaincfg.RegressionNetParams
	priv, _ := btcec.NewPrivateKey()
	utxos := []models.UTXO{
		p2wpkhUTXO(t, netParams, priv, 100_000, fundingTxID(1), 0),
		p2wpkhUTXO(t, netParams, priv, 50_000, fundingTxID(2), 0),
	}
	outputs := []models.TxOutput{{Address: "dest", Amount: 30_000}}

	res, err := SelectUTXOs(utxos, outputs, 2, models.AddressP2WPKH)
	if err != nil {
		t.Fatalf("SelectUTXOs: %v", err)
	}
	if len(res.Selected) != 1 {
		t.Fatalf("expected the single 100k UTXO to cover a 30k payment, got %d inputs", len(res.Selected))
	}
	if res.FeeSats <= 0 {
		t.Fatalf("expected positive fee, got %d", res.FeeSats)
	}
	if res.ChangeSats != 0 && res.ChangeSats <= int64(config.DustLimitSats) {
		t.Fatalf("change %d should either be zero or exceed the dust limit", res.ChangeSats)
	}
}

func TestSelectUTXOs_InsufficientFunds(t *testing.T) {
	netParams := &chaincfg.RegressionNetParams
	priv, _ := btcec.NewPrivateKey()
	utxos := []models.UTXO{p2wpkhUTXO(t, netParams, priv, 1_000, fundingTxID(3), 0)}
	outputs := []models.TxOutput{{Address: "dest", Amount: 900_000}}

	_, err := SelectUTXOs(utxos, outputs, 2, models.AddressP2WPKH)
	if !errors.Is(err, config.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSelectUTXOs_RejectsNonPositiveFeeRate(t *testing.T) {
	_, err := SelectUTXOs(nil, nil, 0, models.AddressP2WPKH)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuildAndFinalize_P2WPKHRoundTrip(t *testing.T) {
	netParams := &chaincfg.RegressionNetParams
	priv, _ := btcec.NewPrivateKey()
	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	selfAddr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, netParams)
	if err != nil {
		t.Fatalf("NewAddressWitnessPubKeyHash: %v", err)
	}

	utxo := p2wpkhUTXO(t, netParams, priv, 100_000, fundingTxID(4), 1)

	unsigned, err := Build(BuildParams{
		UTXOs:            []models.UTXO{utxo},
		Outputs:          []models.TxOutput{{Address: selfAddr.EncodeAddress(), Amount: 40_000}},
		ChangeAddress:    selfAddr.EncodeAddress(),
		ChangeOutputType: models.AddressP2WPKH,
		FeeRatePerVByte:  3,
		NetParams:        netParams,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(unsigned.Sighashes) != 1 {
		t.Fatalf("expected one sighash, got %d", len(unsigned.Sighashes))
	}

	sig := ecdsa.Sign(priv, unsigned.Sighashes[0])

	raw, txid, err := FinalizeWitness(unsigned, [][]byte{sig.Serialize()}, priv.PubKey().SerializeCompressed())
	if err != nil {
		t.Fatalf("FinalizeWitness: %v", err)
	}
	if len(raw) == 0 || txid == "" {
		t.Fatalf("expected non-empty raw tx and txid")
	}
}

func TestBuildAndFinalize_P2TRRoundTrip(t *testing.T) {
	netParams := &chaincfg.RegressionNetParams
	priv, _ := btcec.NewPrivateKey()
	xOnly := schnorr.SerializePubKey(priv.PubKey())
	selfAddr, err := btcutil.NewAddressTaproot(xOnly, netParams)
	if err != nil {
		t.Fatalf("NewAddressTaproot: %v", err)
	}
	script, err := txscript.PayToAddrScript(selfAddr)
	if err != nil {
		t.Fatalf("PayToAddrScript: %v", err)
	}

	utxo := models.UTXO{TxID: fundingTxID(5), Vout: 0, Value: 100_000, PkScript: script, AddressType: models.AddressP2TR}

	unsigned, err := Build(BuildParams{
		UTXOs:            []models.UTXO{utxo},
		Outputs:          []models.TxOutput{{Address: selfAddr.EncodeAddress(), Amount: 40_000}},
		ChangeAddress:    selfAddr.EncodeAddress(),
		ChangeOutputType: models.AddressP2TR,
		FeeRatePerVByte:  3,
		NetParams:        netParams,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sig, err := schnorr.Sign(priv, unsigned.Sighashes[0])
	if err != nil {
		t.Fatalf("schnorr.Sign: %v", err)
	}

	raw, txid, err := FinalizeWitness(unsigned, [][]byte{sig.Serialize()}, nil)
	if err != nil {
		t.Fatalf("FinalizeWitness: %v", err)
	}
	if len(raw) == 0 || txid == "" {
		t.Fatalf("expected non-empty raw tx and txid")
	}
}

func TestBuild_RejectsOversizeOpReturn(t *testing.T) {
	netParams := &chaincfg.RegressionNetParams
	oversized := make([]byte, config.BTCOpReturnMaxDataLen+1)
	_, err := Build(BuildParams{
		OpReturnData: oversized,
		NetParams:    netParams,
	})
	if !errors.Is(err, config.ErrOpReturnTooLarge) {
		t.Fatalf("expected ErrOpReturnTooLarge, got %v", err)
	}
}

func TestBuild_RejectsDustOutput(t *testing.T) {
	netParams := &chaincfg.RegressionNetParams
	priv, _ := btcec.NewPrivateKey()
	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	selfAddr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, netParams)
	if err != nil {
		t.Fatalf("NewAddressWitnessPubKeyHash: %v", err)
	}
	utxo := p2wpkhUTXO(t, netParams, priv, 100_000, fundingTxID(6), 0)

	_, err = Build(BuildParams{
		UTXOs:            []models.UTXO{utxo},
		Outputs:          []models.TxOutput{{Address: selfAddr.EncodeAddress(), Amount: 100}},
		ChangeAddress:    selfAddr.EncodeAddress(),
		ChangeOutputType: models.AddressP2WPKH,
		FeeRatePerVByte:  3,
		NetParams:        netParams,
	})
	if !errors.Is(err, config.ErrDustOutput) {
		t.Fatalf("expected ErrDustOutput, got %v", err)
	}
}

func TestFinalizeWitness_RejectsSignatureCountMismatch(t *testing.T) {
	unsigned := minimalUnsignedTx(t, models.AddressP2WPKH)
	_, _, err := FinalizeWitness(unsigned, nil, nil)
	if !errors.Is(err, config.ErrInvalidSigLength) {
		t.Fatalf("expected ErrInvalidSigLength, got %v", err)
	}
}

func TestFinalizeWitness_RejectsBadSchnorrLength(t *testing.T) {
	unsigned := minimalUnsignedTx(t, models.AddressP2TR)
	_, _, err := FinalizeWitness(unsigned, [][]byte{{0xde, 0xad}}, nil)
	if !errors.Is(err, config.ErrInvalidSigLength) {
		t.Fatalf("expected ErrInvalidSigLength, got %v", err)
	}
}
