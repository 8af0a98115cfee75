package handlers

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/torcus-labs/tss-wallet/internal/certs"
	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/registry"
)

type registerRequest struct {
	PSK        string `json:"psk"`
	NodeID     string `json:"node_id"`
	PartyIndex int    `json:"party_index"`
	Endpoint   string `json:"endpoint"`
}

type registerResponse struct {
	CertToken string `json:"cert_token"`
}

// RegisterHandler implements POST /register (§6): a node authenticates with
// the cluster's pre-shared key and claims a party index, receiving a
// one-time cert_token to redeem for a signed certificate.
func RegisterHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "malformed request body")
			return
		}

		token, err := reg.Register(req.PSK, req.NodeID, req.PartyIndex, req.Endpoint)
		if err != nil {
			handleRegistryError(w, err)
			return
		}

		slog.Info("node registered", "node_id", req.NodeID, "party_index", req.PartyIndex, "minted_token", token != "")
		writeJSON(w, http.StatusOK, registerResponse{CertToken: token})
	}
}

type certIssueRequest struct {
	CertToken  string   `json:"cert_token"`
	PartyIndex int      `json:"party_index"`
	Hostnames  []string `json:"hostnames"`
}

type certIssueResponse struct {
	PartyIndex int    `json:"party_index"`
	CertPEM    string `json:"cert_pem"`
	KeyPEM     string `json:"key_pem"`
	CACertPEM  string `json:"ca_cert_pem"`
}

// CertIssueHandler implements POST /cert/issue (§6): redeems a cert_token
// minted by RegisterHandler for a CA-signed leaf certificate.
func CertIssueHandler(reg *registry.Registry, ca *certs.CA) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req certIssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "malformed request body")
			return
		}

		if !reg.VerifyCertToken(req.PartyIndex, req.CertToken) {
			writeJSONError(w, http.StatusUnauthorized, config.ErrorInvalidPSK, "invalid cert_token for party")
			return
		}

		nodeCert, err := ca.SignNodeCert(req.PartyIndex, req.Hostnames)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, config.ErrorInternal, err.Error())
			return
		}
		stored := nodeCert.ToStored()

		writeJSON(w, http.StatusOK, certIssueResponse{
			PartyIndex: stored.PartyIndex,
			CertPEM:    stored.CertPEM,
			KeyPEM:     stored.KeyPEM,
			CACertPEM:  stored.CACertPEM,
		})
	}
}

func handleRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrInvalidPSK):
		writeJSONError(w, http.StatusUnauthorized, config.ErrorInvalidPSK, err.Error())
	case registry.IsPartyIndexConflict(err):
		writeJSONError(w, http.StatusConflict, config.ErrorInvalidConfig, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, config.ErrorInternal, err.Error())
	}
}

// writeJSON and writeJSONError are shared helpers used by every coordinator
// HTTP handler to keep the {code, message} error envelope consistent (§7).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func decodeHexMessageHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, errors.New("message_hash_hex must be valid hex")
	}
	if len(b) != 32 {
		return out, errors.New("message_hash_hex must decode to 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}
