package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveRelaySessionSnapshot upserts a JSON snapshot of an in-memory relay
// session, letting a restarted coordinator recover in-flight sessions
// (§6: "Relay sessions: a JSON snapshot ... allowing restart recovery").
func (s *Store) SaveRelaySessionSnapshot(sessionID, snapshotJSON string) error {
	_, err := s.conn.Exec(`
		INSERT INTO relay_sessions (session_id, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		sessionID, snapshotJSON, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save relay session snapshot %s: %w", sessionID, err)
	}
	return nil
}

// LoadRelaySessionSnapshots returns every persisted relay-session snapshot,
// for recovery at startup.
func (s *Store) LoadRelaySessionSnapshots() (map[string]string, error) {
	rows, err := s.conn.Query(`SELECT session_id, snapshot FROM relay_sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to load relay session snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var sessionID, snapshot string
		if err := rows.Scan(&sessionID, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan relay session snapshot row: %w", err)
		}
		out[sessionID] = snapshot
	}
	return out, rows.Err()
}

// DeleteRelaySessionSnapshot removes a finished session's snapshot.
func (s *Store) DeleteRelaySessionSnapshot(sessionID string) error {
	if _, err := s.conn.Exec(`DELETE FROM relay_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete relay session snapshot %s: %w", sessionID, err)
	}
	return nil
}

// RecordGrantSeen inserts grantID into the replay cache, returning
// config-level config.ErrGrantReplayed-compatible behavior at the call
// site: a unique-constraint violation means the grant was already used.
func (s *Store) RecordGrantSeen(grantID, sessionID string) error {
	_, err := s.conn.Exec(`INSERT INTO grant_replay_cache (grant_id, session_id) VALUES (?, ?)`, grantID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to record grant %s: %w", grantID, err)
	}
	return nil
}

// GrantSeen reports whether grantID has already been used.
func (s *Store) GrantSeen(grantID string) (bool, error) {
	var sessionID string
	err := s.conn.QueryRow(`SELECT session_id FROM grant_replay_cache WHERE grant_id = ?`, grantID).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check grant replay cache: %w", err)
	}
	return true, nil
}
