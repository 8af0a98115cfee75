package handlers

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/grant"
)

type grantIssueRequest struct {
	WalletID        string `json:"wallet_id"`
	MessageHashHex  string `json:"message_hash_hex"`
	Threshold       int    `json:"threshold"`
	Participants    []int  `json:"participants"`
	LifetimeSeconds int    `json:"lifetime_seconds"`
}

type grantResponse struct {
	GrantID      string `json:"grant_id"`
	WalletID     string `json:"wallet_id"`
	Threshold    int    `json:"threshold"`
	Participants []int  `json:"participants"`
	Nonce        uint64 `json:"nonce"`
	ExpiresAt    int64  `json:"expires_at"`
	SignatureHex string `json:"signature_hex"`
}

// GrantIssueHandler implements POST /grant/issue (§4.1, §6): the
// coordinator authorizes a specific participant set to sign a specific
// message hash under a wallet, for a bounded lifetime.
func GrantIssueHandler(issuer *grant.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grantIssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "malformed request body")
			return
		}

		messageHash, err := decodeHexMessageHash(req.MessageHashHex)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, err.Error())
			return
		}

		lifetime := config.DefaultGrantLifetime
		if req.LifetimeSeconds > 0 {
			lifetime = time.Duration(req.LifetimeSeconds) * time.Second
		}

		g, err := issuer.Issue(req.WalletID, messageHash, req.Threshold, req.Participants, lifetime)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, config.ErrorInternal, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, grantResponse{
			GrantID:      g.GrantID,
			WalletID:     g.WalletID,
			Threshold:    g.Threshold,
			Participants: g.Participants,
			Nonce:        g.Nonce,
			ExpiresAt:    g.ExpiresAt,
			SignatureHex: hex.EncodeToString(g.Signature),
		})
	}
}

type grantPubkeyResponse struct {
	PublicKeyHex string `json:"public_key_hex"`
	KeyType      string `json:"key_type"`
}

// GrantPubkeyHandler implements GET /grant/pubkey (§6): the coordinator's
// Ed25519 verification key, which every node needs to validate grants.
func GrantPubkeyHandler(pub ed25519.PublicKey) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, grantPubkeyResponse{
			PublicKeyHex: hex.EncodeToString(pub),
			KeyType:      "ed25519",
		})
	}
}
