package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/relaybus"
)

type relayMessageWire struct {
	SessionID string `json:"session_id"`
	Protocol  string `json:"protocol"`
	Sender    int    `json:"sender"`
	Recipient *int   `json:"recipient,omitempty"`
	Round     int    `json:"round"`
	PayloadB64 string `json:"payload_b64"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp_ms"`
}

type relaySubmitRequest struct {
	Message relayMessageWire `json:"message"`
}

// RelaySubmitHandler implements POST /relay/submit (§4.11, §6): an
// alternate transport for nodes that cannot reach each other directly over
// QUIC, queuing one message for its recipient(s) on the coordinator.
func RelaySubmitHandler(bus *relaybus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req relaySubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "malformed request body")
			return
		}

		session, err := bus.Get(req.Message.SessionID)
		if err != nil {
			writeRelayError(w, err)
			return
		}

		payload, err := decodeBase64(req.Message.PayloadB64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "payload_b64 must be valid base64")
			return
		}

		msg := models.RelayMessage{
			SessionID: req.Message.SessionID,
			Protocol:  models.Protocol(req.Message.Protocol),
			Sender:    req.Message.Sender,
			Recipient: req.Message.Recipient,
			Round:     req.Message.Round,
			Payload:   payload,
			Seq:       req.Message.Seq,
			Timestamp: req.Message.Timestamp,
		}

		if err := session.AddMessage(msg); err != nil {
			writeRelayError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type relayPollResponse struct {
	Messages      []relayMessageWire `json:"messages"`
	SessionActive bool               `json:"session_active"`
}

// RelayPollHandler implements GET /relay/poll/{session_id}/{party_index}
// (§4.11, §6): drains the messages queued for one party.
func RelayPollHandler(bus *relaybus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		partyIndex, err := strconv.Atoi(chi.URLParam(r, "party_index"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "party_index must be an integer")
			return
		}

		session, err := bus.Get(sessionID)
		if err != nil {
			writeRelayError(w, err)
			return
		}

		msgs, err := session.Poll(partyIndex)
		if err != nil {
			writeRelayError(w, err)
			return
		}

		wire := make([]relayMessageWire, len(msgs))
		for i, m := range msgs {
			wire[i] = relayMessageWire{
				SessionID: m.SessionID, Protocol: string(m.Protocol), Sender: m.Sender,
				Recipient: m.Recipient, Round: m.Round, PayloadB64: encodeBase64(m.Payload),
				Seq: m.Seq, Timestamp: m.Timestamp,
			}
		}

		writeJSON(w, http.StatusOK, relayPollResponse{Messages: wire, SessionActive: session.Active()})
	}
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func writeRelayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrRelaySessionGone):
		writeJSONError(w, http.StatusNotFound, config.ErrorInternal, err.Error())
	case errors.Is(err, config.ErrRelayQueueFull):
		writeJSONError(w, http.StatusBadRequest, config.ErrorInternal, err.Error())
	case errors.Is(err, config.ErrRelayInvalidParty):
		writeJSONError(w, http.StatusBadRequest, config.ErrorInternal, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, config.ErrorInternal, err.Error())
	}
}
