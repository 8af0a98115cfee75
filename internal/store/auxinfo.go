package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

// SaveAuxInfo persists one party's aux-info output and records it as the
// latest aux-info for (walletID, partyIndex) so later signings reuse it
// without a generation round (§3).
func (s *Store) SaveAuxInfo(walletID string, a *models.AuxInfoRecord) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin aux-info transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO aux_info (session_id, party_index, aux_bytes, created_at)
		VALUES (?, ?, ?, ?)`,
		a.SessionID, a.PartyIndex, a.AuxBytes, a.CreatedAt); err != nil {
		return fmt.Errorf("failed to save aux-info for session %s party %d: %w", a.SessionID, a.PartyIndex, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO latest_aux_info_for_node (wallet_id, party_index, session_id)
		VALUES (?, ?, ?)
		ON CONFLICT(wallet_id, party_index) DO UPDATE SET session_id = excluded.session_id`,
		walletID, a.PartyIndex, a.SessionID); err != nil {
		return fmt.Errorf("failed to update latest aux-info pointer: %w", err)
	}

	return tx.Commit()
}

// GetLatestAuxInfo returns the newest aux-info for (walletID, partyIndex),
// or nil if this node has never completed an aux-info ceremony for it.
func (s *Store) GetLatestAuxInfo(walletID string, partyIndex int) (*models.AuxInfoRecord, error) {
	row := s.conn.QueryRow(`
		SELECT a.session_id, a.party_index, a.aux_bytes, a.created_at
		FROM aux_info a
		JOIN latest_aux_info_for_node l ON l.session_id = a.session_id AND l.party_index = a.party_index
		WHERE l.wallet_id = ? AND l.party_index = ?`, walletID, partyIndex)

	var a models.AuxInfoRecord
	if err := row.Scan(&a.SessionID, &a.PartyIndex, &a.AuxBytes, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest aux-info for wallet %s party %d: %w", walletID, partyIndex, err)
	}
	return &a, nil
}
