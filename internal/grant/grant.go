// Package grant issues and verifies signing grants: the coordinator's
// Ed25519-signed authorization that a specific wallet may be signed over a
// specific message by a specific set of participants (§4.1).
package grant

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// Issuer holds the coordinator's Ed25519 signing key and issues grants.
type Issuer struct {
	privateKey ed25519.PrivateKey
}

// NewIssuer wraps an existing Ed25519 private key for grant signing.
func NewIssuer(priv ed25519.PrivateKey) *Issuer {
	return &Issuer{privateKey: priv}
}

// GenerateIssuer creates a fresh Ed25519 keypair for the coordinator.
func GenerateIssuer() (*Issuer, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate grant signing key: %w", err)
	}
	return &Issuer{privateKey: priv}, pub, nil
}

// Issue builds and signs a grant authorizing participants to sign
// messageHash under walletID, valid for lifetime.
func (iss *Issuer) Issue(walletID string, messageHash [32]byte, threshold int, participants []int, lifetime time.Duration) (*models.SigningGrant, error) {
	sorted := append([]int(nil), participants...)
	sort.Ints(sorted)

	var nonceBuf [8]byte
	if _, err := rand.Read(nonceBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to generate grant nonce: %w", err)
	}

	g := &models.SigningGrant{
		GrantID:      uuid.NewString(),
		WalletID:     walletID,
		MessageHash:  messageHash,
		Threshold:    threshold,
		Participants: sorted,
		Nonce:        binary.BigEndian.Uint64(nonceBuf[:]),
		ExpiresAt:    time.Now().Add(lifetime).Unix(),
	}

	sig := ed25519.Sign(iss.privateKey, signingBytes(g))
	g.Signature = sig
	return g, nil
}

// Verify checks a grant's signature, expiry, and that partyIndex is among
// its participants. pub is the coordinator's public key.
func Verify(pub ed25519.PublicKey, g *models.SigningGrant, partyIndex int, now time.Time) error {
	if len(g.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature length %d", config.ErrInvalidGrantSignature, len(g.Signature))
	}
	if !ed25519.Verify(pub, signingBytes(g), g.Signature) {
		return config.ErrInvalidGrantSignature
	}
	if now.Unix() > g.ExpiresAt {
		return config.ErrGrantExpired
	}
	if !contains(g.Participants, partyIndex) {
		return config.ErrNotParticipant
	}
	return nil
}

// SessionID derives the deterministic session identifier from a grant,
// per §4.1: `hash("session" || grant_id || nonce)`.
func SessionID(g *models.SigningGrant) string {
	h := sha256.New()
	h.Write([]byte("session"))
	h.Write([]byte(g.GrantID))
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], g.Nonce)
	h.Write(nonceBuf[:])
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Initiator picks the participant every node will independently agree on
// without coordinator involvement, per §4.1:
// `hash("initiator" || grant_id || nonce) mod len(participants)` of the
// sorted participant list. g.Participants is already sorted by Issue.
func Initiator(g *models.SigningGrant) int {
	h := sha256.New()
	h.Write([]byte("initiator"))
	h.Write([]byte(g.GrantID))
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], g.Nonce)
	h.Write(nonceBuf[:])
	sum := h.Sum(nil)
	index := binary.BigEndian.Uint64(sum[:8])
	return g.Participants[int(index%uint64(len(g.Participants)))]
}

func signingBytes(g *models.SigningGrant) []byte {
	h := sha256.New()
	h.Write([]byte(g.GrantID))
	h.Write([]byte(g.WalletID))
	h.Write(g.MessageHash[:])
	var ibuf [8]byte
	binary.BigEndian.PutUint64(ibuf[:], uint64(g.Threshold))
	h.Write(ibuf[:])
	for _, p := range g.Participants {
		binary.BigEndian.PutUint64(ibuf[:], uint64(p))
		h.Write(ibuf[:])
	}
	binary.BigEndian.PutUint64(ibuf[:], g.Nonce)
	h.Write(ibuf[:])
	binary.BigEndian.PutUint64(ibuf[:], uint64(g.ExpiresAt))
	h.Write(ibuf[:])
	return h.Sum(nil)
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
