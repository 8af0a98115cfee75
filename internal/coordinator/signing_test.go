package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/grant"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/router"
	"github.com/torcus-labs/tss-wallet/internal/session"
)

func newTestGrant(t *testing.T, walletID string, messageHash [32]byte, participants []int) *models.SigningGrant {
	t.Helper()
	issuer, _, err := grant.GenerateIssuer()
	if err != nil {
		t.Fatalf("GenerateIssuer() error = %v", err)
	}
	g, err := issuer.Issue(walletID, messageHash, len(participants), participants, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return g
}

func realECDSASignature(t *testing.T, messageHash [32]byte) []byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey() error = %v", err)
	}
	return ecdsa.Sign(priv, messageHash[:]).Serialize()
}

func realSchnorrSignature(t *testing.T, messageHash [32]byte) []byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey() error = %v", err)
	}
	sig, err := schnorr.Sign(priv, messageHash[:])
	if err != nil {
		t.Fatalf("schnorr.Sign() error = %v", err)
	}
	return sig.Serialize()
}

func TestSigning_Sign_CGGMP24_SinglePartySuccess(t *testing.T) {
	st := openTestStore(t)
	sessions, err := session.New()
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	walletID := "wallet-signing"
	if err := st.SavePresignature(&models.Presignature{PresigID: "p1", WalletID: walletID, Participants: []int{0}, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("SavePresignature() error = %v", err)
	}

	var messageHash [32]byte
	copy(messageHash[:], []byte("0123456789abcdef0123456789abcdef"))
	g := newTestGrant(t, walletID, messageHash, []int{0})

	sig := realECDSASignature(t, messageHash)
	s := NewSigning(st, router.New(), sessions, &fakeRunner{signingResult: &protocol.SigningResult{Signature: sig}}, nil)

	got, err := s.Sign(context.Background(), g, 0, models.ProtocolCGGMP24, models.KeyShareRecord{}, messageHash)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(got) == 0 || got[0] != 0x30 {
		t.Fatalf("expected a canonical DER signature back, got %x", got)
	}

	sess, ok := sessions.Get(grant.SessionID(g))
	if !ok || sess.Signature == nil {
		t.Fatal("expected the session to be recorded as completed with a signature")
	}
}

func TestSigning_Sign_FROST_SinglePartySuccess(t *testing.T) {
	st := openTestStore(t)
	sessions, err := session.New()
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	walletID := "wallet-frost"
	var messageHash [32]byte
	copy(messageHash[:], []byte("abcdef0123456789abcdef0123456789"))
	g := newTestGrant(t, walletID, messageHash, []int{0})

	sig := realSchnorrSignature(t, messageHash)
	s := NewSigning(st, router.New(), sessions, &fakeRunner{signingResult: &protocol.SigningResult{Signature: sig}}, nil)

	got, err := s.Sign(context.Background(), g, 0, models.ProtocolFROST, models.KeyShareRecord{}, messageHash)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(got) != 64 {
		t.Fatalf("len(signature) = %d, want 64", len(got))
	}
}

func TestSigning_Sign_CGGMP24_NoPresignatureAvailable(t *testing.T) {
	st := openTestStore(t)
	sessions, err := session.New()
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	var messageHash [32]byte
	g := newTestGrant(t, "wallet-empty", messageHash, []int{0})
	s := NewSigning(st, router.New(), sessions, &fakeRunner{}, nil)

	if _, err := s.Sign(context.Background(), g, 0, models.ProtocolCGGMP24, models.KeyShareRecord{}, messageHash); !errors.Is(err, config.ErrNoPresignatures) {
		t.Fatalf("expected config.ErrNoPresignatures, got %v", err)
	}
}

func TestSigning_Sign_RejectsMalformedSignature(t *testing.T) {
	st := openTestStore(t)
	sessions, err := session.New()
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	var messageHash [32]byte
	g := newTestGrant(t, "wallet-frost-bad", messageHash, []int{0})
	s := NewSigning(st, router.New(), sessions, &fakeRunner{signingResult: &protocol.SigningResult{Signature: []byte("not-a-signature")}}, nil)

	if _, err := s.Sign(context.Background(), g, 0, models.ProtocolFROST, models.KeyShareRecord{}, messageHash); !errors.Is(err, config.ErrInvalidSigLength) {
		t.Fatalf("expected config.ErrInvalidSigLength, got %v", err)
	}

	sess, ok := sessions.Get(grant.SessionID(g))
	if !ok {
		t.Fatal("expected the session to still be recorded after ceremony failure")
	}
	if sess.State != models.SessionFailed {
		t.Fatalf("session state = %v, want SessionFailed", sess.State)
	}
}

func TestNormalizeSignature_ReturnsDEREncoding(t *testing.T) {
	var messageHash [32]byte
	copy(messageHash[:], []byte("fedcba9876543210fedcba9876543210"))
	sig := realECDSASignature(t, messageHash)

	normalized, err := normalizeSignature(models.ProtocolCGGMP24, sig)
	if err != nil {
		t.Fatalf("normalizeSignature() error = %v", err)
	}
	if normalized[0] != 0x30 {
		t.Fatalf("expected DER-encoded output, got leading byte 0x%02x", normalized[0])
	}
}
