package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

// SaveWallet inserts a new wallet row. wallet_id and address are unique.
func (s *Store) SaveWallet(w *models.Wallet) error {
	_, err := s.conn.Exec(`
		INSERT INTO wallets (wallet_id, name, protocol, address_type, public_key, address, threshold, total_nodes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.WalletID, w.Name, string(w.Protocol), string(w.AddressType), w.PublicKey, w.Address, w.Threshold, w.TotalNodes, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save wallet %s: %w", w.WalletID, err)
	}
	return nil
}

// GetWallet returns the wallet for walletID, or nil if not found.
func (s *Store) GetWallet(walletID string) (*models.Wallet, error) {
	row := s.conn.QueryRow(`
		SELECT wallet_id, name, protocol, address_type, public_key, address, threshold, total_nodes, created_at
		FROM wallets WHERE wallet_id = ?`, walletID)

	var w models.Wallet
	var protocol, addressType string
	if err := row.Scan(&w.WalletID, &w.Name, &protocol, &addressType, &w.PublicKey, &w.Address, &w.Threshold, &w.TotalNodes, &w.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet %s: %w", walletID, err)
	}
	w.Protocol = models.Protocol(protocol)
	w.AddressType = models.AddressType(addressType)
	return &w, nil
}

// GetWalletByAddress returns the wallet owning address, or nil if not found.
func (s *Store) GetWalletByAddress(address string) (*models.Wallet, error) {
	row := s.conn.QueryRow(`SELECT wallet_id FROM wallets WHERE address = ?`, address)
	var walletID string
	if err := row.Scan(&walletID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up wallet by address: %w", err)
	}
	return s.GetWallet(walletID)
}

// ListWallets returns every wallet, ordered by creation time.
func (s *Store) ListWallets() ([]*models.Wallet, error) {
	rows, err := s.conn.Query(`
		SELECT wallet_id, name, protocol, address_type, public_key, address, threshold, total_nodes, created_at
		FROM wallets ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var out []*models.Wallet
	for rows.Next() {
		var w models.Wallet
		var protocol, addressType string
		if err := rows.Scan(&w.WalletID, &w.Name, &protocol, &addressType, &w.PublicKey, &w.Address, &w.Threshold, &w.TotalNodes, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet row: %w", err)
		}
		w.Protocol = models.Protocol(protocol)
		w.AddressType = models.AddressType(addressType)
		out = append(out, &w)
	}
	return out, rows.Err()
}
