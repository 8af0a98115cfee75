package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

// PeerBook maps a party index to its reachable QUIC address, loaded once
// at node startup from cluster configuration.
type PeerBook map[int]PeerAddr

// ParsePeerBook parses entries of the form "party_index=host:port" (the
// TORCUS_PEER_ADDRS config format) into a PeerBook.
func ParsePeerBook(entries []string) (PeerBook, error) {
	book := make(PeerBook, len(entries))
	for _, e := range entries {
		idxStr, hostPort, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("malformed peer address entry %q: expected party_index=host:port", e)
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return nil, fmt.Errorf("malformed peer address entry %q: %w", e, err)
		}
		host, portStr, ok := strings.Cut(hostPort, ":")
		if !ok {
			return nil, fmt.Errorf("malformed peer address entry %q: expected party_index=host:port", e)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("malformed peer address entry %q: %w", e, err)
		}
		book[idx] = PeerAddr{Hostname: host, Port: port}
	}
	return book, nil
}

// RouterSender adapts an Endpoint into router.Sender: it JSON-encodes each
// outbound models.RelayMessage as a Frame payload and delivers it to the
// message's Recipient, or broadcasts it to every known peer but self when
// Recipient is nil (§4.3/§4.4's transport-to-router glue).
type RouterSender struct {
	endpoint *Endpoint
	self     int
	peers    PeerBook
}

// NewRouterSender builds a RouterSender over endpoint, excluding self from
// its own broadcasts.
func NewRouterSender(endpoint *Endpoint, self int, peers PeerBook) *RouterSender {
	return &RouterSender{endpoint: endpoint, self: self, peers: peers}
}

// Send implements router.Sender.
func (s *RouterSender) Send(ctx context.Context, msg models.RelayMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode relay message for transport: %w", err)
	}

	if msg.Recipient != nil {
		peer, ok := s.peers[*msg.Recipient]
		if !ok {
			return fmt.Errorf("no known address for peer %d", *msg.Recipient)
		}
		return s.endpoint.Send(ctx, *msg.Recipient, peer.Hostname, peer.Port, payload)
	}

	fanout := make(map[int]PeerAddr, len(s.peers))
	for idx, addr := range s.peers {
		if idx != s.self {
			fanout[idx] = addr
		}
	}
	return s.endpoint.Broadcast(ctx, fanout, payload)
}

// DispatchingHandler decodes each inbound Frame as a JSON-encoded
// models.RelayMessage and hands it to dispatch (normally
// (*router.Router).Dispatch), overriding the decoded Sender with the
// Frame's TLS-verified one — a peer's wire claim is never trusted over
// its certificate identity (§4.3).
func DispatchingHandler(dispatch func(models.RelayMessage) error) Handler {
	return func(ctx context.Context, f Frame) {
		var msg models.RelayMessage
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			slog.Warn("dropping malformed inbound frame", "sender", f.Sender, "error", err)
			return
		}
		msg.Sender = f.Sender
		if err := dispatch(msg); err != nil {
			slog.Warn("inbound frame dispatch failed", "sender", f.Sender, "session_id", msg.SessionID, "error", err)
		}
	}
}
