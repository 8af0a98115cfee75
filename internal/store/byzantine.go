package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ViolationKind names a Byzantine finding recorded against a node (§7).
type ViolationKind string

const (
	ViolationDoubleVote       ViolationKind = "double_vote"
	ViolationInvalidSignature ViolationKind = "invalid_signature"
	ViolationMinorityDissent  ViolationKind = "minority_vote"
)

// Violation is one recorded Byzantine finding, evidence included so the
// external detector (§6) can audit or appeal the ban.
type Violation struct {
	ID         int64
	NodeID     int
	SessionID  string
	Kind       ViolationKind
	Evidence   string // JSON
	RecordedAt string
}

// RecordViolation persists a Byzantine finding. The core wallet never
// bans a node itself; this is the append-only evidence log the external
// detector subsystem (§6) reads and acts on.
func (s *Store) RecordViolation(v *Violation) error {
	_, err := s.conn.Exec(`
		INSERT INTO byzantine_violations (node_id, session_id, kind, evidence)
		VALUES (?, ?, ?, ?)`,
		v.NodeID, v.SessionID, string(v.Kind), v.Evidence)
	if err != nil {
		return fmt.Errorf("failed to record violation for node %d: %w", v.NodeID, err)
	}
	return nil
}

// ViolationsForNode returns every recorded finding against nodeID, oldest first.
func (s *Store) ViolationsForNode(nodeID int) ([]*Violation, error) {
	rows, err := s.conn.Query(`
		SELECT id, node_id, session_id, kind, evidence, recorded_at
		FROM byzantine_violations WHERE node_id = ? ORDER BY recorded_at ASC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations for node %d: %w", nodeID, err)
	}
	defer rows.Close()

	var out []*Violation
	for rows.Next() {
		v := &Violation{}
		if err := rows.Scan(&v.ID, &v.NodeID, &v.SessionID, &v.Kind, &v.Evidence, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan violation row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountViolations returns how many findings are on record for nodeID,
// the input a node-ban policy (external to this core, §6) decides on.
func (s *Store) CountViolations(nodeID int) (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM byzantine_violations WHERE node_id = ?`, nodeID).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count violations for node %d: %w", nodeID, err)
	}
	return n, nil
}
