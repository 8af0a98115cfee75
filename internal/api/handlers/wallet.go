package handlers

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/orchestrator"
)

type utxoWire struct {
	TxID        string `json:"txid"`
	Vout        uint32 `json:"vout"`
	Value       int64  `json:"value"`
	PkScriptHex string `json:"pk_script_hex"`
	AddressType string `json:"address_type"`
}

type txOutputWire struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

type walletSendRequest struct {
	UTXOs           []utxoWire     `json:"utxos"`
	Outputs         []txOutputWire `json:"outputs"`
	ChangeAddress   string         `json:"change_address"`
	FeeRatePerVByte int64          `json:"fee_rate_per_vbyte"`
	OpReturnHex     string         `json:"op_return_hex,omitempty"`
}

type walletSendResponse struct {
	WalletID string `json:"wallet_id"`
	TxID     string `json:"txid"`
	RawTxHex string `json:"raw_tx_hex"`
	FeeSats  int64  `json:"fee_sats"`
	Vsize    int    `json:"vsize"`
}

// WalletSendHandler implements POST /wallet/{wallet_id}/send (§2, §4.9,
// §4.10, §6): assembles, signs, and finalizes a transaction spending the
// caller-supplied UTXOs. It never broadcasts the result (§1 Non-goals).
func WalletSendHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		walletID := chi.URLParam(r, "wallet_id")

		var req walletSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "malformed request body")
			return
		}

		utxos := make([]models.UTXO, len(req.UTXOs))
		for i, u := range req.UTXOs {
			pkScript, err := hex.DecodeString(u.PkScriptHex)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "pk_script_hex must be valid hex")
				return
			}
			utxos[i] = models.UTXO{
				TxID: u.TxID, Vout: u.Vout, Value: u.Value,
				PkScript: pkScript, AddressType: models.AddressType(u.AddressType),
			}
		}

		outputs := make([]models.TxOutput, len(req.Outputs))
		for i, o := range req.Outputs {
			outputs[i] = models.TxOutput{Address: o.Address, Amount: o.Amount}
		}

		var opReturn []byte
		if req.OpReturnHex != "" {
			decoded, err := hex.DecodeString(req.OpReturnHex)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "op_return_hex must be valid hex")
				return
			}
			opReturn = decoded
		}

		result, err := orch.Send(r.Context(), orchestrator.SendRequest{
			WalletID:        walletID,
			UTXOs:           utxos,
			Outputs:         outputs,
			ChangeAddress:   req.ChangeAddress,
			FeeRatePerVByte: req.FeeRatePerVByte,
			OpReturnData:    opReturn,
		})
		if err != nil {
			handleSendError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, walletSendResponse{
			WalletID: result.WalletID,
			TxID:     result.TxID,
			RawTxHex: hex.EncodeToString(result.RawTx),
			FeeSats:  result.FeeSats,
			Vsize:    result.Vsize,
		})
	}
}

func handleSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrWalletNotFound):
		writeJSONError(w, http.StatusNotFound, config.ErrorWalletNotFound, err.Error())
	case errors.Is(err, config.ErrKeyShareMissing):
		writeJSONError(w, http.StatusNotFound, config.ErrorKeyShareMissing, err.Error())
	case errors.Is(err, config.ErrInsufficientFunds):
		writeJSONError(w, http.StatusBadRequest, config.ErrorInsufficientFunds, err.Error())
	case errors.Is(err, config.ErrDustOutput):
		writeJSONError(w, http.StatusBadRequest, config.ErrorDustOutput, err.Error())
	case errors.Is(err, config.ErrOpReturnTooLarge):
		writeJSONError(w, http.StatusBadRequest, config.ErrorOpReturnTooLarge, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, config.ErrorInternal, err.Error())
	}
}
