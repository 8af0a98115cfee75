// Package protocol is the boundary between this wallet and the external
// MPC math (CGGMP24 threshold ECDSA, FROST threshold Schnorr). Everything
// above this package speaks only in terms of Runner: ceremonies in,
// key material and signatures out. The actual multi-round math is a
// deliberately external concern; this package's job is driving rounds to
// completion over a message channel and translating failures into the
// rest of the wallet's error taxonomy.
package protocol

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// RoundMessage is one message exchanged with peers during a ceremony.
type RoundMessage struct {
	Round     int
	Recipient *int // nil = broadcast
	Payload   []byte
}

// Transport is how a Runner exchanges round messages with other parties
// during a ceremony; the caller (internal/orchestrator, internal/coordinator)
// supplies an implementation backed by internal/router.
type Transport interface {
	Send(ctx context.Context, msg RoundMessage) error
	Receive(ctx context.Context) (RoundMessage, error)
}

// KeygenResult is the output of a successful DKG ceremony.
type KeygenResult struct {
	Share     models.KeyShareRecord
	PublicKey []byte
}

// AuxInfoResult is the output of a successful aux-info ceremony.
type AuxInfoResult struct {
	AuxInfo models.AuxInfoRecord
}

// PresigResult is the output of a successful presignature ceremony.
type PresigResult struct {
	PresigIDs []string
}

// SigningResult is the output of a successful signing ceremony.
type SigningResult struct {
	Signature []byte // DER-encoded ECDSA sig, or 64-byte raw Schnorr sig
}

// Runner drives one MPC ceremony to completion. Implementations wrap the
// actual CGGMP24/FROST libraries; that math is out of scope here.
type Runner interface {
	RunKeygen(ctx context.Context, protocol models.Protocol, partyIndex int, participants []int, threshold int, transport Transport) (*KeygenResult, error)
	RunAuxInfo(ctx context.Context, partyIndex int, participants []int, transport Transport) (*AuxInfoResult, error)
	RunPresig(ctx context.Context, share models.KeyShareRecord, aux models.AuxInfoRecord, participants []int, count int, transport Transport) (*PresigResult, error)
	RunSigning(ctx context.Context, protocol models.Protocol, share models.KeyShareRecord, messageHash [32]byte, participants []int, transport Transport) (*SigningResult, error)
}

// wrapFailure normalizes a ceremony failure into config.ErrProtocolFailed,
// matching the pkg/errors-based wrapping convention the wrapped libraries
// themselves use at this boundary.
func wrapFailure(log *zap.Logger, stage string, err error) error {
	log.Error("protocol ceremony failed", zap.String("stage", stage), zap.Error(err))
	return errors.Wrapf(config.ErrProtocolFailed, "%s: %v", stage, err)
}
