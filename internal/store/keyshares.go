package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

// SaveKeyShare persists one party's DKG output. Key shares are written
// once and never mutated afterward (§3).
func (s *Store) SaveKeyShare(k *models.KeyShareRecord) error {
	_, err := s.conn.Exec(`
		INSERT INTO key_shares (session_id, party_index, wallet_id, protocol, share_bytes, public_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		k.SessionID, k.PartyIndex, k.WalletID, string(k.Protocol), k.ShareBytes, k.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to save key share for session %s party %d: %w", k.SessionID, k.PartyIndex, err)
	}
	return nil
}

// GetKeyShare returns the share for (sessionID, partyIndex), or nil if absent.
func (s *Store) GetKeyShare(sessionID string, partyIndex int) (*models.KeyShareRecord, error) {
	row := s.conn.QueryRow(`
		SELECT session_id, party_index, wallet_id, protocol, share_bytes, public_key
		FROM key_shares WHERE session_id = ? AND party_index = ?`, sessionID, partyIndex)

	var k models.KeyShareRecord
	var protocol string
	if err := row.Scan(&k.SessionID, &k.PartyIndex, &k.WalletID, &protocol, &k.ShareBytes, &k.PublicKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key share: %w", err)
	}
	k.Protocol = models.Protocol(protocol)
	return &k, nil
}

// GetKeyShareForWallet returns the one share this node holds for walletID,
// or nil if this node never ran DKG for that wallet.
func (s *Store) GetKeyShareForWallet(walletID string, partyIndex int) (*models.KeyShareRecord, error) {
	row := s.conn.QueryRow(`
		SELECT session_id, party_index, wallet_id, protocol, share_bytes, public_key
		FROM key_shares WHERE wallet_id = ? AND party_index = ?
		ORDER BY created_at DESC LIMIT 1`, walletID, partyIndex)

	var k models.KeyShareRecord
	var protocol string
	if err := row.Scan(&k.SessionID, &k.PartyIndex, &k.WalletID, &protocol, &k.ShareBytes, &k.PublicKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key share for wallet %s: %w", walletID, err)
	}
	k.Protocol = models.Protocol(protocol)
	return &k, nil
}
