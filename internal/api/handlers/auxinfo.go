package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/coordinator"
)

type auxInfoStartRequest struct {
	WalletID     string `json:"wallet_id"`
	PartyIndex   int    `json:"party_index"`
	Participants []int  `json:"participants"`
}

type auxInfoStartResponse struct {
	SessionID  string `json:"session_id"`
	WalletID   string `json:"wallet_id"`
	PartyIndex int    `json:"party_index"`
}

// AuxInfoStartHandler implements POST /aux-info/start (§6): generates this
// node's CGGMP24 auxiliary parameters for walletID, reused by every later
// signing ceremony of that wallet.
func AuxInfoStartHandler(auxInfo *coordinator.AuxInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auxInfoStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "malformed request body")
			return
		}

		record, err := auxInfo.Run(r.Context(), req.WalletID, req.PartyIndex, req.Participants)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, config.ErrorInternal, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, auxInfoStartResponse{
			SessionID:  record.SessionID,
			WalletID:   req.WalletID,
			PartyIndex: record.PartyIndex,
		})
	}
}
