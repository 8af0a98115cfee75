package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/registry"
)

// The headers a registered node presents on every authenticated request
// after registration: its cert_token, node_id and party index (§6).
const (
	headerCertToken  = "X-Cert-Token"
	headerNodeID     = "X-Node-ID"
	headerPartyIndex = "X-Party-Index"
)

// HeartbeatAuth rejects any request that doesn't carry a valid cert_token
// bound to the claimed node_id/party_index (§6's heartbeat authentication
// rule). api.NewRouter puts every coordinator endpoint behind it except
// /register, which is the registration handshake that mints the cert_token
// in the first place, and the GET /api/health probe.
func HeartbeatAuth(reg *registry.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nodeID := r.Header.Get(headerNodeID)
			certToken := r.Header.Get(headerCertToken)
			partyIndex, err := parsePartyIndexHeader(r.Header.Get(headerPartyIndex))
			if err != nil || nodeID == "" || certToken == "" {
				writeAuthError(w, "missing or malformed authentication headers")
				return
			}

			if err := reg.Authenticate(partyIndex, nodeID, certToken); err != nil {
				slog.Warn("rejected request with invalid node authentication",
					"path", r.URL.Path, "node_id", nodeID, "party_index", partyIndex, "error", err)
				writeAuthError(w, "invalid cert_token or node_id for party")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parsePartyIndexHeader(v string) (int, error) {
	return strconv.Atoi(v)
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    config.ErrorInvalidPSK,
		"message": message,
	})
}
