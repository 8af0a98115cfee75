// Package session implements the node-side signing session state machine
// (§4.5): admission control, round tracking, the three timeout classes
// (session/idle/round), and the replay cache that stops a grant from being
// used twice.
package session

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// Manager owns every in-progress and recently-finished session on a node.
type Manager struct {
	mu sync.Mutex

	sessions    map[string]*models.SigningSession
	rounds      map[string]*models.RoundState
	byWallet    map[string]int // wallet_id -> count of in-progress sessions
	replayCache *lru.Cache[string, struct{}]
}

// New creates an empty session manager.
func New() (*Manager, error) {
	cache, err := lru.New[string, struct{}](config.MaxReplayCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create replay cache: %w", err)
	}
	return &Manager{
		sessions:    make(map[string]*models.SigningSession),
		rounds:      make(map[string]*models.RoundState),
		byWallet:    make(map[string]int),
		replayCache: cache,
	}, nil
}

// Admit checks admission control and replay protection, then creates an
// InProgress session if both pass (§4.5, §4.1: "grant already used").
func (m *Manager) Admit(grantID, sessionID, walletID string, protocol models.Protocol, participants []int) (*models.SigningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("%w: %s", config.ErrSessionExists, sessionID)
	}
	if _, seen := m.replayCache.Get(grantID); seen {
		return nil, fmt.Errorf("%w: grant %s", config.ErrGrantReplayed, grantID)
	}

	total := 0
	for _, c := range m.byWallet {
		total += c
	}
	if total >= config.MaxTotalSessions {
		return nil, fmt.Errorf("%w: %d sessions in progress", config.ErrTooManySessions, total)
	}
	if m.byWallet[walletID] >= config.MaxSessionsPerWallet {
		return nil, fmt.Errorf("%w: wallet %s already has %d sessions", config.ErrTooManySessions, walletID, m.byWallet[walletID])
	}

	now := time.Now()
	s := &models.SigningSession{
		SessionID:       sessionID,
		GrantID:         grantID,
		WalletID:        walletID,
		Protocol:        protocol,
		State:           models.SessionInProgress,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastMessageAt:   now,
		Participants:    participants,
		NumParticipants: len(participants),
	}

	m.replayCache.Add(grantID, struct{}{})
	m.sessions[sessionID] = s
	m.byWallet[walletID]++
	return s, nil
}

// Get returns the session for sessionID.
func (m *Manager) Get(sessionID string) (*models.SigningSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// StartRound begins tracking a new round, expecting contributions from
// `expected` parties.
func (m *Manager) StartRound(sessionID string, round, expected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrRelaySessionGone, sessionID)
	}
	if s.State != models.SessionInProgress {
		return fmt.Errorf("%w: session %s is %s", config.ErrInvalidTransition, sessionID, s.State)
	}

	s.CurrentRound = round
	s.UpdatedAt = time.Now()
	m.rounds[sessionID] = models.NewRoundState(round, expected, time.Now())
	return nil
}

// RecordContribution marks that party contributed to the session's current
// round, rejecting a duplicate contribution from the same party as a
// replay (§4.5: "duplicate ... detection").
func (m *Manager) RecordContribution(sessionID string, party int) (roundComplete bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false, fmt.Errorf("%w: %s", config.ErrRelaySessionGone, sessionID)
	}
	round, ok := m.rounds[sessionID]
	if !ok {
		return false, fmt.Errorf("%w: no active round for session %s", config.ErrInvalidTransition, sessionID)
	}
	if round.MessagesFrom[party] {
		return false, fmt.Errorf("%w: party %d already contributed to round %d", config.ErrSendFailed, party, round.RoundNumber)
	}

	round.MessagesFrom[party] = true
	s.LastMessageAt = time.Now()
	s.UpdatedAt = time.Now()
	return round.Complete(), nil
}

// Complete transitions a session to Completed with its final signature.
func (m *Manager) Complete(sessionID string, signature []byte) error {
	return m.finish(sessionID, models.SessionCompleted, "", signature)
}

// Fail transitions a session to Failed with a reason.
func (m *Manager) Fail(sessionID string, reason string) error {
	return m.finish(sessionID, models.SessionFailed, reason, nil)
}

func (m *Manager) finish(sessionID string, state models.SessionState, reason string, signature []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrRelaySessionGone, sessionID)
	}
	if s.State != models.SessionInProgress {
		return fmt.Errorf("%w: session %s is already %s", config.ErrInvalidTransition, sessionID, s.State)
	}

	now := time.Now()
	s.State = state
	s.FailureReason = reason
	s.Signature = signature
	s.UpdatedAt = now
	s.CompletedAt = now

	delete(m.rounds, sessionID)
	if m.byWallet[s.WalletID] > 0 {
		m.byWallet[s.WalletID]--
	}
	return nil
}

// SweepTimeouts scans every in-progress session for the three timeout
// classes and fails any that have exceeded one (§4.5):
//   - session timeout: total age since CreatedAt
//   - idle timeout: time since the last accepted message
//   - round timeout: time since the current round started
//
// Returns the session IDs that were failed by this sweep.
func (m *Manager) SweepTimeouts(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var failed []string
	for id, s := range m.sessions {
		if s.State != models.SessionInProgress {
			continue
		}

		reason := ""
		switch {
		case now.Sub(s.CreatedAt) > config.SessionTimeout:
			reason = config.ErrSessionTimeout.Error()
		case now.Sub(s.LastMessageAt) > config.IdleTimeout:
			reason = config.ErrIdleTimeout.Error()
		default:
			if round, ok := m.rounds[id]; ok && now.Sub(round.StartedAt) > config.RoundTimeout {
				reason = config.ErrRoundTimeout.Error()
			}
		}

		if reason == "" {
			continue
		}

		s.State = models.SessionFailed
		s.FailureReason = reason
		s.UpdatedAt = now
		s.CompletedAt = now
		delete(m.rounds, id)
		if m.byWallet[s.WalletID] > 0 {
			m.byWallet[s.WalletID]--
		}
		failed = append(failed, id)
	}
	return failed
}

// Prune removes completed/failed sessions older than config.SessionRetention.
func (m *Manager) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.State == models.SessionInProgress {
			continue
		}
		if now.Sub(s.CompletedAt) > config.SessionRetention {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
