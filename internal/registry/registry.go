// Package registry tracks cluster node registrations on the coordinator
// side: which party index each node holds, its one-time cert_token (stored
// only as a hash), and liveness via heartbeats. It is the gate in front of
// certificate issuance (§6 POST /register, POST /cert/issue) and the
// authentication check on the heartbeat and session endpoints.
//
// Grounded on the original Rust coordinator's NodeRegistry: party-index
// conflicts are rejected unless the existing holder has gone stale, a
// cert_token is minted only on first registration, and both registration
// and heartbeat auth compare secrets in constant time.
package registry

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/torcus-labs/tss-wallet/internal/config"
)

// Node is one registered cluster member as tracked by the coordinator.
type Node struct {
	NodeID        string
	PartyIndex    int
	Endpoint      string
	CertTokenHash [32]byte
	Registered    bool // true once a cert_token has been minted
	Online        bool
	LastHeartbeat time.Time
}

// Config bounds how long a node may go quiet before cleanup marks it
// offline, freeing its party index for re-registration.
type Config struct {
	HeartbeatInterval  time.Duration
	MaxMissedHeartbeats int
}

// DefaultConfig matches the interval the node side heartbeats on (§6).
func DefaultConfig() Config {
	return Config{HeartbeatInterval: 10 * time.Second, MaxMissedHeartbeats: 3}
}

// Registry is the coordinator's in-memory node directory. It does not
// persist across restarts — on restart every node re-registers, and a
// fresh cert_token round keeps the PSK as the sole long-lived secret.
type Registry struct {
	mu   sync.RWMutex
	psk  string
	cfg  Config
	byID    map[string]*Node
	byParty map[int]string // party_index -> node_id
}

// New builds a Registry gated on psk, the pre-shared key every node
// presents to /register. An empty psk means registration is wide open,
// which config.Validate refuses only when Production is set.
func New(psk string, cfg Config) *Registry {
	return &Registry{
		psk:     psk,
		cfg:     cfg,
		byID:    make(map[string]*Node),
		byParty: make(map[int]string),
	}
}

// Register admits a node at partyIndex, authenticating with psk. A brand
// new registration mints and returns a cert_token; re-registering the same
// node_id (e.g. after a restart) refreshes its endpoint without minting a
// new token. Returns config.ErrInvalidPSK on a PSK mismatch and a
// PartyIndexConflictError if a different, still-online node already holds
// partyIndex.
func (r *Registry) Register(psk, nodeID string, partyIndex int, endpoint string) (certToken string, err error) {
	if !constantTimeEqual(psk, r.psk) {
		return "", config.ErrInvalidPSK
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byParty[partyIndex]; ok && existingID != nodeID {
		if existing := r.byID[existingID]; existing != nil && existing.Online {
			return "", &PartyIndexConflictError{PartyIndex: partyIndex, ExistingNodeID: existingID}
		}
		delete(r.byID, existingID)
	}

	now := time.Now()
	if existing, ok := r.byID[nodeID]; ok {
		existing.Endpoint = endpoint
		existing.Online = true
		existing.LastHeartbeat = now
		r.byParty[partyIndex] = nodeID
		return "", nil
	}

	token := uuid.NewString()
	node := &Node{
		NodeID:        nodeID,
		PartyIndex:    partyIndex,
		Endpoint:      endpoint,
		CertTokenHash: hashToken(token),
		Registered:    true,
		Online:        true,
		LastHeartbeat: now,
	}
	r.byID[nodeID] = node
	r.byParty[partyIndex] = nodeID
	return token, nil
}

// VerifyCertToken reports whether token is the one minted for partyIndex,
// comparing hashes in constant time so a timing side channel can't narrow
// down the token byte by byte.
func (r *Registry) VerifyCertToken(partyIndex int, token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodeID, ok := r.byParty[partyIndex]
	if !ok {
		return false
	}
	node := r.byID[nodeID]
	if node == nil {
		return false
	}
	presented := hashToken(token)
	return subtle.ConstantTimeCompare(node.CertTokenHash[:], presented[:]) == 1
}

// VerifyNodeForParty reports whether nodeID is the registered holder of
// partyIndex, preventing a valid cert_token holder from impersonating a
// different node_id at the same party slot.
func (r *Registry) VerifyNodeForParty(partyIndex int, nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	registered, ok := r.byParty[partyIndex]
	return ok && registered == nodeID
}

// Authenticate is the combined check the heartbeat and session endpoints
// run: the cert_token must be valid for partyIndex, and nodeID must be the
// node that holds it.
func (r *Registry) Authenticate(partyIndex int, nodeID, certToken string) error {
	if !r.VerifyCertToken(partyIndex, certToken) {
		return fmt.Errorf("%w: cert_token invalid for party %d", config.ErrInvalidPSK, partyIndex)
	}
	if !r.VerifyNodeForParty(partyIndex, nodeID) {
		return fmt.Errorf("%w: node_id does not match registered node for party %d", config.ErrInvalidPSK, partyIndex)
	}
	return nil
}

// Heartbeat records liveness for nodeID, authenticating it first. Returns
// config.ErrPeerNotFound if nodeID was never registered.
func (r *Registry) Heartbeat(partyIndex int, nodeID, certToken string) error {
	if err := r.Authenticate(partyIndex, nodeID, certToken); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.byID[nodeID]
	if !ok {
		return config.ErrPeerNotFound
	}
	node.LastHeartbeat = time.Now()
	node.Online = true
	return nil
}

// CleanupStale marks every node that has missed its allotted heartbeats
// offline, returning the count transitioned. An offline node's party index
// becomes eligible for a fresh Register call.
func (r *Registry) CleanupStale() int {
	deadline := r.cfg.HeartbeatInterval * time.Duration(r.cfg.MaxMissedHeartbeats)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	marked := 0
	for _, node := range r.byID {
		if node.Online && now.Sub(node.LastHeartbeat) > deadline {
			node.Online = false
			marked++
		}
	}
	return marked
}

// OnlineNodes returns the party indices currently considered live.
func (r *Registry) OnlineNodes() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var parties []int
	for partyIndex, nodeID := range r.byParty {
		if node := r.byID[nodeID]; node != nil && node.Online {
			parties = append(parties, partyIndex)
		}
	}
	return parties
}

// GetByParty returns the node registered at partyIndex, or nil.
func (r *Registry) GetByParty(partyIndex int) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodeID, ok := r.byParty[partyIndex]
	if !ok {
		return nil
	}
	if node := r.byID[nodeID]; node != nil {
		cp := *node
		return &cp
	}
	return nil
}

// PartyIndexConflictError reports a registration attempt against a party
// index already held by a different, still-online node.
type PartyIndexConflictError struct {
	PartyIndex     int
	ExistingNodeID string
}

func (e *PartyIndexConflictError) Error() string {
	return fmt.Sprintf("party index %d already registered by node %s", e.PartyIndex, e.ExistingNodeID)
}

// IsPartyIndexConflict reports whether err is a *PartyIndexConflictError.
func IsPartyIndexConflict(err error) bool {
	var conflict *PartyIndexConflictError
	return errors.As(err, &conflict)
}

func hashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// constantTimeEqual compares two PSKs without leaking length or content
// through timing. subtle.ConstantTimeCompare requires equal-length inputs,
// so unequal lengths are hashed first to a fixed width.
func constantTimeEqual(a, b string) bool {
	ah, bh := sha256.Sum256([]byte(a)), sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}
