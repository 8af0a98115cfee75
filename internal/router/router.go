// Package router dispatches MPC protocol messages between the transport
// layer (internal/transport, internal/relaybus) and the protocol runner
// for each active session (§4.4). Every session gets its own inbound and
// outbound channel pair; the router tracks a monotonic per-(session,
// sender) sequence number so a protocol runner can detect gaps and
// out-of-order delivery without doing its own bookkeeping.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// Sender delivers one outbound message to its destination over whatever
// wire transport the caller wires up — internal/transport's QUIC endpoint
// in production, internal/relaybus as a fallback, or an in-process double
// in tests. A Router with no Sender delivers nothing: outbound messages
// stay in the session's outbound channel and are never looped back to its
// inbound channel. Wiring one via NewWithSender or SetSender is what gets
// a session's outbound messages onto the wire.
type Sender interface {
	Send(ctx context.Context, msg models.RelayMessage) error
}

// Channels is the pair of channels a registered session reads from and
// writes to.
type Channels struct {
	Inbound  <-chan models.RelayMessage
	Outbound chan<- models.RelayMessage
}

type sessionChannels struct {
	inbound  chan models.RelayMessage
	outbound chan models.RelayMessage
	lastSeq  map[int]uint64 // per-sender last accepted sequence number
}

// Router owns the registered session channel pairs and per-sender sequence
// tracking for every in-progress session on this node.
type Router struct {
	mu       sync.Mutex
	sessions map[string]*sessionChannels
	sender   Sender
}

// New creates an empty router with no wired Sender: outbound messages sit
// in each session's outbound channel until something reads OutboundReader
// itself, which is what the coordinator package's own tests do.
func New() *Router {
	return &Router{sessions: make(map[string]*sessionChannels)}
}

// NewWithSender creates a router that automatically pumps every
// registered session's outbound channel to sender, so callers never have
// to wire per-session delivery themselves (§4.3/§4.4 glue between the
// transport layer and the router).
func NewWithSender(sender Sender) *Router {
	return &Router{sessions: make(map[string]*sessionChannels), sender: sender}
}

// SetSender wires sender onto a router built with New, for callers that
// must construct the transport endpoint (whose inbound Handler needs this
// router's Dispatch) before they have a Sender to hand back to it. Only
// sessions registered after this call are pumped; call it before serving
// any ceremony requests.
func (r *Router) SetSender(sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = sender
}

// RegisterSession opens a channel pair for sessionID, sized per
// RouterChannelBuffer. It is an error to register the same session twice
// without first calling Unregister.
func (r *Router) RegisterSession(sessionID string) (Channels, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return Channels{}, fmt.Errorf("%w: %s already registered", config.ErrSessionExists, sessionID)
	}

	sc := &sessionChannels{
		inbound:  make(chan models.RelayMessage, config.RouterChannelBuffer),
		outbound: make(chan models.RelayMessage, config.RouterChannelBuffer),
		lastSeq:  make(map[int]uint64),
	}
	r.sessions[sessionID] = sc
	if r.sender != nil {
		go r.pumpOutbound(sessionID, sc.outbound)
	}

	return Channels{Inbound: sc.inbound, Outbound: sc.outbound}, nil
}

// pumpOutbound drains a session's outbound channel to the wired Sender
// until Unregister closes it. One goroutine per registered session,
// exiting as soon as the channel closes — there is no separate shutdown
// signal to wait on.
func (r *Router) pumpOutbound(sessionID string, outbound <-chan models.RelayMessage) {
	ctx := context.Background()
	for msg := range outbound {
		if err := r.sender.Send(ctx, msg); err != nil {
			slog.Warn("outbound message delivery failed", "session_id", sessionID, "round", msg.Round, "error", err)
		}
	}
}

// Unregister closes and removes a session's channel pair. Safe to call on
// an unknown session (no-op).
func (r *Router) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	close(sc.inbound)
	close(sc.outbound)
	delete(r.sessions, sessionID)
}

// Dispatch routes an inbound message from the transport layer to the
// registered session's inbound channel, rejecting replayed or out-of-order
// sequence numbers from the same sender (§4.4, §4.5: "monotonic per
// (session, sender) sequence numbers").
func (r *Router) Dispatch(msg models.RelayMessage) error {
	r.mu.Lock()
	sc, ok := r.sessions[msg.SessionID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", config.ErrRelaySessionGone, msg.SessionID)
	}

	last, seen := sc.lastSeq[msg.Sender]
	if seen && msg.Seq <= last {
		r.mu.Unlock()
		return fmt.Errorf("%w: session %s sender %d seq %d <= last %d", config.ErrSendFailed, msg.SessionID, msg.Sender, msg.Seq, last)
	}
	sc.lastSeq[msg.Sender] = msg.Seq
	inbound := sc.inbound
	r.mu.Unlock()

	select {
	case inbound <- msg:
		return nil
	default:
		return fmt.Errorf("%w: session %s inbound channel full", config.ErrSendFailed, msg.SessionID)
	}
}

// OutboundReader returns the receive end of a session's outbound channel,
// for the transport glue that drains it and calls transport.Send or
// transport.Broadcast (broadcast when a message's Recipient is nil).
// RegisterSession hands the write end of this same channel to the session
// owner via Channels.Outbound.
func (r *Router) OutboundReader(sessionID string) (<-chan models.RelayMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", config.ErrRelaySessionGone, sessionID)
	}
	return sc.outbound, nil
}
