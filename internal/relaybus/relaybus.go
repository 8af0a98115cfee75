// Package relaybus implements the coordinator-hosted message relay: a
// fallback transport for nodes that cannot reach each other directly over
// QUIC (§4.11). Each session gets one queue per participant; a node polls
// its queue instead of accepting inbound connections.
package relaybus

import (
	"fmt"
	"sync"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// Session holds per-party message queues for one relayed protocol run.
type Session struct {
	mu sync.Mutex

	sessionID       string
	protocol        models.Protocol
	parties         []int
	queues          map[int][]models.RelayMessage
	partiesReady    map[int]bool
	partiesComplete map[int]bool
	lastActivity    time.Time
	active          bool
	failureReason   string
}

// NewSession creates a relay session for a unique, non-empty party set.
func NewSession(sessionID string, protocol models.Protocol, parties []int) (*Session, error) {
	if len(parties) == 0 {
		return nil, fmt.Errorf("%w: relay session requires a non-empty party set", config.ErrRelayInvalidParty)
	}
	seen := make(map[int]bool, len(parties))
	queues := make(map[int][]models.RelayMessage, len(parties))
	for _, p := range parties {
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate party %d", config.ErrRelayInvalidParty, p)
		}
		seen[p] = true
		queues[p] = nil
	}

	return &Session{
		sessionID:       sessionID,
		protocol:        protocol,
		parties:         parties,
		queues:          queues,
		partiesReady:    make(map[int]bool),
		partiesComplete: make(map[int]bool),
		lastActivity:    time.Now(),
		active:          true,
	}, nil
}

func (s *Session) isValidParty(p int) bool {
	for _, x := range s.parties {
		if x == p {
			return true
		}
	}
	return false
}

// IsExpired reports whether this session has exceeded the relay TTL since
// its last activity: a successfully enqueued message, MarkReady or
// MarkComplete (§4.11).
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) > config.RelaySessionTTL
}

// Touch marks the session recently active.
func (s *Session) touch() {
	s.lastActivity = time.Now()
}

// AddMessage enqueues msg for delivery. A unicast message (Recipient != nil)
// is queued to that party only; a broadcast (Recipient == nil) is queued to
// every party but the sender. Broadcasts are validated against every
// destination queue's capacity before any queue is mutated, so a single
// full queue never produces a partial delivery (§4.11).
func (s *Session) AddMessage(msg models.RelayMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isValidParty(msg.Sender) {
		return fmt.Errorf("%w: sender %d", config.ErrRelayInvalidParty, msg.Sender)
	}

	if msg.Recipient != nil {
		recipient := *msg.Recipient
		if !s.isValidParty(recipient) {
			return fmt.Errorf("%w: recipient %d", config.ErrRelayInvalidParty, recipient)
		}
		if len(s.queues[recipient]) >= config.RelayMaxMessagesPerParty {
			return fmt.Errorf("%w: party %d", config.ErrRelayQueueFull, recipient)
		}
		s.queues[recipient] = append(s.queues[recipient], msg)
		s.touch()
		return nil
	}

	for _, p := range s.parties {
		if p == msg.Sender {
			continue
		}
		if len(s.queues[p]) >= config.RelayMaxMessagesPerParty {
			return fmt.Errorf("%w: party %d during broadcast", config.ErrRelayQueueFull, p)
		}
	}
	for _, p := range s.parties {
		if p == msg.Sender {
			continue
		}
		s.queues[p] = append(s.queues[p], msg)
	}
	s.touch()
	return nil
}

// Poll drains and returns all messages queued for party.
func (s *Session) Poll(party int) ([]models.RelayMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isValidParty(party) {
		return nil, fmt.Errorf("%w: party %d", config.ErrRelayInvalidParty, party)
	}
	msgs := s.queues[party]
	s.queues[party] = nil
	return msgs, nil
}

// MarkReady records that party has joined the session.
func (s *Session) MarkReady(party int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partiesReady[party] = true
	s.touch()
}

// MarkComplete records that party finished its part of the protocol.
func (s *Session) MarkComplete(party int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partiesComplete[party] = true
	s.touch()
}

// Fail marks the session inactive with a reason.
func (s *Session) Fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.failureReason = reason
}

// Active reports whether the session is still accepting messages.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Bus manages all in-flight relay sessions hosted by the coordinator.
type Bus struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewBus creates an empty relay bus.
func NewBus() *Bus {
	return &Bus{sessions: make(map[string]*Session)}
}

// CreateSession registers a new relay session, rejecting it if the bus is
// already at its concurrent session cap (§4.11).
func (b *Bus) CreateSession(sessionID string, protocol models.Protocol, parties []int) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.sessions) >= config.RelayMaxSessions {
		return nil, fmt.Errorf("%w: at capacity (%d sessions)", config.ErrTooManySessions, config.RelayMaxSessions)
	}
	if _, exists := b.sessions[sessionID]; exists {
		return nil, fmt.Errorf("%w: %s", config.ErrSessionExists, sessionID)
	}

	s, err := NewSession(sessionID, protocol, parties)
	if err != nil {
		return nil, err
	}
	b.sessions[sessionID] = s
	return s, nil
}

// Get returns the session for sessionID, if it exists and has not expired.
func (b *Bus) Get(sessionID string) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", config.ErrRelaySessionGone, sessionID)
	}
	if s.IsExpired() {
		delete(b.sessions, sessionID)
		return nil, fmt.Errorf("%w: %s", config.ErrRelaySessionGone, sessionID)
	}
	return s, nil
}

// SweepExpired drops every session past its TTL and returns how many were removed.
func (b *Bus) SweepExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, s := range b.sessions {
		if s.IsExpired() {
			delete(b.sessions, id)
			removed++
		}
	}
	return removed
}
