package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

// DKGCeremony is a persisted row tracking one DKG ceremony's lifecycle,
// independent of the in-memory session.Manager state which does not
// survive a restart.
type DKGCeremony struct {
	SessionID      string
	WalletID       string // empty until the ceremony completes and a wallet is minted
	Protocol       models.Protocol
	Threshold      int
	Participants   []int
	Status         string // in_progress | completed | failed
	FailureReason  string
}

// CreateDKGCeremony records a new ceremony as in_progress.
func (s *Store) CreateDKGCeremony(d *DKGCeremony) error {
	participants, err := json.Marshal(d.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	_, err = s.conn.Exec(`
		INSERT INTO dkg_ceremonies (session_id, wallet_id, protocol, threshold, participants, status)
		VALUES (?, ?, ?, ?, ?, 'in_progress')`,
		d.SessionID, d.WalletID, string(d.Protocol), d.Threshold, string(participants))
	if err != nil {
		return fmt.Errorf("failed to create dkg ceremony %s: %w", d.SessionID, err)
	}
	return nil
}

// CompleteDKGCeremony marks a ceremony completed and records the minted wallet.
func (s *Store) CompleteDKGCeremony(sessionID, walletID string) error {
	_, err := s.conn.Exec(`
		UPDATE dkg_ceremonies SET status = 'completed', wallet_id = ?, completed_at = datetime('now')
		WHERE session_id = ?`, walletID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to complete dkg ceremony %s: %w", sessionID, err)
	}
	return nil
}

// FailDKGCeremony marks a ceremony failed with reason.
func (s *Store) FailDKGCeremony(sessionID, reason string) error {
	_, err := s.conn.Exec(`
		UPDATE dkg_ceremonies SET status = 'failed', failure_reason = ?, completed_at = datetime('now')
		WHERE session_id = ?`, reason, sessionID)
	if err != nil {
		return fmt.Errorf("failed to fail dkg ceremony %s: %w", sessionID, err)
	}
	return nil
}

// GetDKGCeremonyByWalletID returns the completed ceremony that minted
// walletID, or nil if no ceremony has completed for it. Used by
// internal/orchestrator to recover the full participant set a wallet's
// key was generated under, since models.Wallet itself only carries the
// threshold/total-node counts, not which party indices hold shares.
func (s *Store) GetDKGCeremonyByWalletID(walletID string) (*DKGCeremony, error) {
	row := s.conn.QueryRow(`
		SELECT session_id, wallet_id, protocol, threshold, participants, status, failure_reason
		FROM dkg_ceremonies WHERE wallet_id = ? AND status = 'completed'`, walletID)

	var d DKGCeremony
	var protocol, participants string
	var gotWalletID, failureReason sql.NullString
	if err := row.Scan(&d.SessionID, &gotWalletID, &protocol, &d.Threshold, &participants, &d.Status, &failureReason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dkg ceremony for wallet %s: %w", walletID, err)
	}
	d.WalletID = gotWalletID.String
	d.FailureReason = failureReason.String
	d.Protocol = models.Protocol(protocol)
	if err := json.Unmarshal([]byte(participants), &d.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	return &d, nil
}

// GetDKGCeremony returns the ceremony row for sessionID, or nil if not found.
func (s *Store) GetDKGCeremony(sessionID string) (*DKGCeremony, error) {
	row := s.conn.QueryRow(`
		SELECT session_id, wallet_id, protocol, threshold, participants, status, failure_reason
		FROM dkg_ceremonies WHERE session_id = ?`, sessionID)

	var d DKGCeremony
	var protocol, participants string
	var walletID, failureReason sql.NullString
	if err := row.Scan(&d.SessionID, &walletID, &protocol, &d.Threshold, &participants, &d.Status, &failureReason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dkg ceremony %s: %w", sessionID, err)
	}
	d.WalletID = walletID.String
	d.FailureReason = failureReason.String
	d.Protocol = models.Protocol(protocol)
	if err := json.Unmarshal([]byte(participants), &d.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	return &d, nil
}
