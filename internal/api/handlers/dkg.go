package handlers

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/coordinator"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

type dkgStartRequest struct {
	SessionID    string `json:"session_id,omitempty"` // set when joining an initiator's ceremony
	Protocol     string `json:"protocol,omitempty"`
	PartyIndex   int    `json:"party_index"`
	Participants []int  `json:"participants,omitempty"`
	Threshold    int    `json:"threshold,omitempty"`
}

type walletResponse struct {
	WalletID     string `json:"wallet_id"`
	Protocol     string `json:"protocol"`
	AddressType  string `json:"address_type"`
	PublicKeyHex string `json:"public_key_hex"`
	Address      string `json:"address"`
	Threshold    int    `json:"threshold"`
	TotalNodes   int    `json:"total_nodes"`
}

func toWalletResponse(w *models.Wallet) walletResponse {
	return walletResponse{
		WalletID:     w.WalletID,
		Protocol:     string(w.Protocol),
		AddressType:  string(w.AddressType),
		PublicKeyHex: hex.EncodeToString(w.PublicKey),
		Address:      w.Address,
		Threshold:    w.Threshold,
		TotalNodes:   w.TotalNodes,
	}
}

// DKGStartHandler implements POST /dkg/start (§4.8, §6). The initiating
// party omits session_id and supplies the full participant set and
// threshold; every other participant supplies the session_id it learned
// out of band and joins the ceremony the initiator already created.
func DKGStartHandler(dkg *coordinator.DKG) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dkgStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "malformed request body")
			return
		}

		var wallet *models.Wallet
		var err error
		if req.SessionID != "" {
			wallet, err = dkg.Join(r.Context(), req.SessionID, req.PartyIndex)
		} else {
			wallet, err = dkg.Initiate(r.Context(), models.Protocol(req.Protocol), req.PartyIndex, req.Participants, req.Threshold)
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, config.ErrorInternal, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toWalletResponse(wallet))
	}
}
