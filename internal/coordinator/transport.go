// Package coordinator drives the DKG, aux-info, and signing ceremonies
// (§4.8, §4.9): acquiring cluster locks, registering sessions with
// internal/router, running internal/protocol.Runner over that session's
// channels, and persisting the result via internal/store.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/router"
)

// routerTransport adapts one session's router.Channels to the narrower
// protocol.Transport a Runner speaks, stamping this node's party index and
// a monotonic sequence number onto every outbound message so the remote
// router's replay/ordering check (§4.4) applies uniformly whether the
// message came from a ceremony or anywhere else.
type routerTransport struct {
	sessionID      string
	protocol       models.Protocol
	self           int
	channels       router.Channels
	seq            uint64
	onContribution func(sender int) // optional: called once per inbound message (§4.5 per-round contribution tracking)
}

func newRouterTransport(sessionID string, self int, proto models.Protocol, channels router.Channels, onContribution func(sender int)) *routerTransport {
	return &routerTransport{sessionID: sessionID, protocol: proto, self: self, channels: channels, onContribution: onContribution}
}

var _ protocol.Transport = (*routerTransport)(nil)

func (t *routerTransport) Send(ctx context.Context, msg protocol.RoundMessage) error {
	t.seq++
	relay := models.RelayMessage{
		SessionID: t.sessionID,
		Protocol:  t.protocol,
		Sender:    t.self,
		Recipient: msg.Recipient,
		Round:     msg.Round,
		Payload:   msg.Payload,
		Seq:       t.seq,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case t.channels.Outbound <- relay:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: session %s: %s", config.ErrSendFailed, t.sessionID, ctx.Err())
	}
}

func (t *routerTransport) Receive(ctx context.Context) (protocol.RoundMessage, error) {
	select {
	case msg, ok := <-t.channels.Inbound:
		if !ok {
			return protocol.RoundMessage{}, fmt.Errorf("%w: session %s inbound closed", config.ErrConnectionLost, t.sessionID)
		}
		if t.onContribution != nil {
			t.onContribution(msg.Sender)
		}
		return protocol.RoundMessage{Round: msg.Round, Recipient: msg.Recipient, Payload: msg.Payload}, nil
	case <-ctx.Done():
		return protocol.RoundMessage{}, fmt.Errorf("%w: session %s: %s", config.ErrConnectionLost, t.sessionID, ctx.Err())
	}
}
