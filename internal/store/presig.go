package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

// SavePresignature persists one freshly generated presignature. Satisfies
// presig.Store.
func (s *Store) SavePresignature(p *models.Presignature) error {
	participants, err := json.Marshal(p.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	_, err = s.conn.Exec(`
		INSERT INTO presignatures (presig_id, wallet_id, participants, created_at, is_used)
		VALUES (?, ?, ?, ?, 0)`,
		p.PresigID, p.WalletID, string(participants), p.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save presignature %s: %w", p.PresigID, err)
	}
	return nil
}

// CountAvailable returns the number of unused presignatures for walletID.
// Satisfies presig.Store.
func (s *Store) CountAvailable(walletID string) (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM presignatures WHERE wallet_id = ? AND is_used = 0`, walletID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count available presignatures: %w", err)
	}
	return n, nil
}

// AcquireOne atomically claims and marks used one presignature for
// walletID, or returns (nil, nil) if the pool is empty. Satisfies
// presig.Store's single-use acquisition contract (§4.6).
func (s *Store) AcquireOne(walletID string) (*models.Presignature, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin acquire transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT presig_id, participants, created_at
		FROM presignatures WHERE wallet_id = ? AND is_used = 0
		ORDER BY created_at ASC LIMIT 1`, walletID)

	var p models.Presignature
	var participants, createdAt string
	if err := row.Scan(&p.PresigID, &participants, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query available presignature: %w", err)
	}

	res, err := tx.Exec(`UPDATE presignatures SET is_used = 1 WHERE presig_id = ? AND is_used = 0`, p.PresigID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark presignature used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check acquisition result: %w", err)
	}
	if affected == 0 {
		// raced with another acquirer between the select and the update.
		return nil, nil
	}

	if err := json.Unmarshal([]byte(participants), &p.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	p.WalletID = walletID
	p.IsUsed = true
	p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse presignature created_at: %w", err)
	}

	return &p, tx.Commit()
}

// DeleteOlderThan deletes unused presignatures created before cutoff and
// returns how many were removed. Satisfies presig.Store.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int, error) {
	res, err := s.conn.Exec(`DELETE FROM presignatures WHERE created_at < ? AND is_used = 0`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired presignatures: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted presignatures: %w", err)
	}
	return int(n), nil
}
