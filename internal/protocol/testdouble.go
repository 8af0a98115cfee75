package protocol

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

// TestRunner is a deterministic, non-cryptographic stand-in for the real
// CGGMP24/FROST runners. It exercises the same Runner surface and does one
// broadcast Send plus one Receive per round over the supplied Transport so
// callers (internal/coordinator, internal/orchestrator) can be exercised
// end-to-end without linking the actual MPC libraries. It produces no
// real cryptographic guarantees and must never be used outside tests.
type TestRunner struct {
	log *zap.Logger
}

// NewTestRunner builds a TestRunner with a no-op logger if log is nil.
func NewTestRunner(log *zap.Logger) *TestRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &TestRunner{log: log}
}

var _ Runner = (*TestRunner)(nil)

// roundTrip broadcasts one message and waits for one message back, faking
// the shape of a real ceremony round (every party sends, every party
// receives) without doing any actual multi-party math or fan-in counting.
// With a single participant there is nobody to round-trip with, so the
// Receive half is skipped — a lone party never waits on its own broadcast.
func (r *TestRunner) roundTrip(ctx context.Context, round int, participants []int, payload []byte, transport Transport) error {
	if err := transport.Send(ctx, RoundMessage{Round: round, Recipient: nil, Payload: payload}); err != nil {
		return wrapFailure(r.log, fmt.Sprintf("round %d send", round), err)
	}
	if len(participants) <= 1 {
		return nil
	}
	if _, err := transport.Receive(ctx); err != nil {
		return wrapFailure(r.log, fmt.Sprintf("round %d receive", round), err)
	}
	return nil
}

// RunKeygen fakes a DKG ceremony: one round trip, then a deterministic
// fake share and public key derived from the participant set so repeated
// test runs are reproducible.
func (r *TestRunner) RunKeygen(ctx context.Context, protocol models.Protocol, partyIndex int, participants []int, threshold int, transport Transport) (*KeygenResult, error) {
	if err := r.roundTrip(ctx, 1, participants, []byte("keygen-commit"), transport); err != nil {
		return nil, err
	}

	fingerprint := fingerprintParties(protocol, participants)
	publicKey := fakePublicKey(protocol, fingerprint)
	return &KeygenResult{
		Share: models.KeyShareRecord{
			SessionID:  uuid.NewString(),
			Protocol:   protocol,
			PartyIndex: partyIndex,
			ShareBytes: fingerprint[:],
			PublicKey:  publicKey,
		},
		PublicKey: publicKey,
	}, nil
}

// fakePublicKey shapes the deterministic fingerprint into the byte length
// a real ceremony's public key would have, so downstream address
// derivation (internal/btctx) can be exercised against this double:
// a 33-byte compressed secp256k1 point for CGGMP24, a 32-byte x-only point
// for FROST. The x-coordinate is a hash, so it is not guaranteed to lie on
// the curve; this is shape-compatible fakery only, never cryptography.
func fakePublicKey(protocol models.Protocol, fingerprint [32]byte) []byte {
	if protocol == models.ProtocolFROST {
		return fingerprint[:]
	}
	out := make([]byte, 33)
	out[0] = 0x02
	copy(out[1:], fingerprint[:])
	return out
}

// RunAuxInfo fakes the CGGMP24 aux-info ceremony.
func (r *TestRunner) RunAuxInfo(ctx context.Context, partyIndex int, participants []int, transport Transport) (*AuxInfoResult, error) {
	if err := r.roundTrip(ctx, 1, participants, []byte("auxinfo-commit"), transport); err != nil {
		return nil, err
	}
	fingerprint := fingerprintParties(models.ProtocolCGGMP24, participants)
	return &AuxInfoResult{
		AuxInfo: models.AuxInfoRecord{
			SessionID:  uuid.NewString(),
			PartyIndex: partyIndex,
			AuxBytes:   fingerprint[:],
			CreatedAt:  time.Now(),
		},
	}, nil
}

// RunPresig fakes a batch presignature ceremony, returning `count` freshly
// minted presignature IDs.
func (r *TestRunner) RunPresig(ctx context.Context, share models.KeyShareRecord, aux models.AuxInfoRecord, participants []int, count int, transport Transport) (*PresigResult, error) {
	if err := r.roundTrip(ctx, 1, participants, []byte("presig-commit"), transport); err != nil {
		return nil, err
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return &PresigResult{PresigIDs: ids}, nil
}

// RunSigning fakes a signing ceremony. It signs messageHash with a fresh,
// ceremony-unrelated ephemeral key rather than the wallet's real share
// (this double has no real share math to run), but the signature it
// returns is a genuinely valid DER ECDSA or BIP-340 Schnorr signature, so
// callers exercising internal/coordinator's structural validation and
// low-S normalization see realistic output instead of random bytes.
func (r *TestRunner) RunSigning(ctx context.Context, protocol models.Protocol, share models.KeyShareRecord, messageHash [32]byte, participants []int, transport Transport) (*SigningResult, error) {
	if err := r.roundTrip(ctx, 1, participants, messageHash[:], transport); err != nil {
		return nil, err
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, wrapFailure(r.log, "ephemeral key generation", err)
	}

	if protocol == models.ProtocolFROST {
		sig, err := schnorr.Sign(priv, messageHash[:])
		if err != nil {
			return nil, wrapFailure(r.log, "signature generation", err)
		}
		return &SigningResult{Signature: sig.Serialize()}, nil
	}

	sig := ecdsa.Sign(priv, messageHash[:])
	return &SigningResult{Signature: sig.Serialize()}, nil
}

func fingerprintParties(protocol models.Protocol, participants []int) [32]byte {
	h := sha256.New()
	h.Write([]byte(protocol))
	for _, p := range participants {
		fmt.Fprintf(h, "/%d", p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
