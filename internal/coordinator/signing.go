package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/grant"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/router"
	"github.com/torcus-labs/tss-wallet/internal/session"
	"github.com/torcus-labs/tss-wallet/internal/store"
)

// finalSignatureRound is a sentinel round number, well outside any real
// ceremony's round range, used only to announce each participant's
// completed signature to the initiator for the pairwise-equality check
// (§4.9 step 4). internal/router and internal/session both key state by
// session ID, not round number, so this never collides with ceremony
// rounds.
const finalSignatureRound = 1 << 30

// Signing drives one signing ceremony to a validated, normalized signature
// (§4.9). Every participant (including the grant's initiator) runs the
// full protocol and arrives at the same completed signature by
// construction; the initiator additionally collects that signature from
// each other participant over the session transport and rejects the
// result if they disagree, guarding against a participant that reports a
// structurally valid but wrong signature.
type Signing struct {
	store    *store.Store
	router   *router.Router
	sessions *session.Manager
	runner   protocol.Runner
	log      *slog.Logger
}

// NewSigning builds a signing coordinator.
func NewSigning(st *store.Store, rtr *router.Router, sessions *session.Manager, runner protocol.Runner, log *slog.Logger) *Signing {
	if log == nil {
		log = slog.Default()
	}
	return &Signing{store: st, router: rtr, sessions: sessions, runner: runner, log: log}
}

// Sign executes the grant's ceremony for this node's party and returns the
// validated, normalized final signature. messageHash is the sighash
// internal/btctx already computed for the input being signed (BIP-143 for
// P2WPKH, BIP-341 key-path for P2TR) — §4.9 step 1's "compute sighash" is
// internal/btctx.Build's job, not repeated here.
func (s *Signing) Sign(ctx context.Context, g *models.SigningGrant, partyIndex int, protocolName models.Protocol, share models.KeyShareRecord, messageHash [32]byte) ([]byte, error) {
	sessionID := grant.SessionID(g)
	isInitiator := grant.Initiator(g) == partyIndex

	var presigID string
	if protocolName == models.ProtocolCGGMP24 {
		p, err := s.store.AcquireOne(g.WalletID)
		if err != nil {
			return nil, fmt.Errorf("acquire presignature: %w", err)
		}
		if p == nil {
			return nil, fmt.Errorf("%w: wallet %s", config.ErrNoPresignatures, g.WalletID)
		}
		presigID = p.PresigID
	}

	if _, err := s.sessions.Admit(g.GrantID, sessionID, g.WalletID, protocolName, g.Participants); err != nil {
		return nil, fmt.Errorf("admit signing session: %w", err)
	}
	if err := s.sessions.StartRound(sessionID, 1, len(g.Participants)); err != nil {
		return nil, fmt.Errorf("start signing round: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, config.SigningShareCollectTime)
	defer cancel()

	signature, err := s.runCeremony(ctx, sessionID, partyIndex, protocolName, share, messageHash, g.Participants, isInitiator)
	if err != nil {
		_ = s.sessions.Fail(sessionID, err.Error())
		return nil, err
	}

	normalized, err := normalizeSignature(protocolName, signature)
	if err != nil {
		_ = s.sessions.Fail(sessionID, err.Error())
		return nil, err
	}

	if err := s.sessions.Complete(sessionID, normalized); err != nil {
		return nil, fmt.Errorf("complete signing session: %w", err)
	}

	s.log.Info("signing ceremony completed", "session_id", sessionID, "wallet_id", g.WalletID, "presig_id", presigID)
	return normalized, nil
}

func (s *Signing) runCeremony(ctx context.Context, sessionID string, partyIndex int, protocolName models.Protocol, share models.KeyShareRecord, messageHash [32]byte, participants []int, isInitiator bool) ([]byte, error) {
	channels, err := s.router.RegisterSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("register signing session: %w", err)
	}
	defer s.router.Unregister(sessionID)

	onContribution := func(sender int) {
		if _, err := s.sessions.RecordContribution(sessionID, sender); err != nil {
			s.log.Warn("dropping contribution", "session_id", sessionID, "sender", sender, "error", err)
		}
	}
	transport := newRouterTransport(sessionID, partyIndex, protocolName, channels, onContribution)
	result, err := s.runner.RunSigning(ctx, protocolName, share, messageHash, participants, transport)
	if err != nil {
		return nil, fmt.Errorf("run signing ceremony %s: %w", sessionID, err)
	}

	if !isInitiator {
		if err := transport.Send(ctx, protocol.RoundMessage{Round: finalSignatureRound, Payload: result.Signature}); err != nil {
			return nil, fmt.Errorf("announce final signature: %w", err)
		}
		return result.Signature, nil
	}

	for i := 0; i < len(participants)-1; i++ {
		msg, err := transport.Receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect final signature: %w", err)
		}
		if !bytes.Equal(msg.Payload, result.Signature) {
			return nil, fmt.Errorf("%w: session %s", config.ErrSignatureMismatch, sessionID)
		}
	}
	return result.Signature, nil
}

// normalizeSignature validates the ceremony's output against §4.9 step 5's
// structural rules and, for ECDSA, re-serializes to canonical low-S DER.
func normalizeSignature(protocolName models.Protocol, sig []byte) ([]byte, error) {
	if protocolName == models.ProtocolFROST {
		if _, err := schnorr.ParseSignature(sig); err != nil {
			return nil, fmt.Errorf("%w: %s", config.ErrInvalidSigLength, err)
		}
		if len(sig) != 64 {
			return nil, fmt.Errorf("%w: schnorr signature must be 64 bytes, got %d", config.ErrInvalidSigLength, len(sig))
		}
		return sig, nil
	}

	if len(sig) < 8 || len(sig) > 73 || sig[0] != 0x30 {
		return nil, fmt.Errorf("%w: ecdsa signature must be 8-73 bytes starting with 0x30, got %d bytes", config.ErrInvalidSigLength, len(sig))
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidSigLength, err)
	}
	return parsed.Serialize(), nil
}
