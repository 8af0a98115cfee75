package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/torcus-labs/tss-wallet/internal/kvstore"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/store"
)

// errBoom is a sentinel failure fakeRunner tests inject to exercise the
// ceremony-failure paths (FailDKGCeremony, session.Manager.Fail) without
// depending on any real error taxonomy value.
var errBoom = errors.New("boom")

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	if err := s.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openTestKV(t *testing.T) *kvstore.Store {
	t.Helper()
	s, err := kvstore.Open(filepath.Join(t.TempDir(), "test.kv"))
	if err != nil {
		t.Fatalf("kvstore.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeRunner is a protocol.Runner double whose results are set directly by
// each test, decoupling internal/coordinator's tests (session registration,
// persistence, locking, signature normalization) from internal/protocol's
// own round-trip semantics, which protocol_test.go already covers.
type fakeRunner struct {
	keygenResult *protocol.KeygenResult
	keygenErr    error

	auxResult *protocol.AuxInfoResult
	auxErr    error

	presigResult *protocol.PresigResult
	presigErr    error

	signingResult *protocol.SigningResult
	signingErr    error
}

var _ protocol.Runner = (*fakeRunner)(nil)

func (f *fakeRunner) RunKeygen(ctx context.Context, proto models.Protocol, partyIndex int, participants []int, threshold int, transport protocol.Transport) (*protocol.KeygenResult, error) {
	return f.keygenResult, f.keygenErr
}

func (f *fakeRunner) RunAuxInfo(ctx context.Context, partyIndex int, participants []int, transport protocol.Transport) (*protocol.AuxInfoResult, error) {
	return f.auxResult, f.auxErr
}

func (f *fakeRunner) RunPresig(ctx context.Context, share models.KeyShareRecord, aux models.AuxInfoRecord, participants []int, count int, transport protocol.Transport) (*protocol.PresigResult, error) {
	return f.presigResult, f.presigErr
}

func (f *fakeRunner) RunSigning(ctx context.Context, proto models.Protocol, share models.KeyShareRecord, messageHash [32]byte, participants []int, transport protocol.Transport) (*protocol.SigningResult, error) {
	return f.signingResult, f.signingErr
}

func compressedTestPublicKey() []byte {
	out := make([]byte, 33)
	out[0] = 0x02
	for i := 1; i < 33; i++ {
		out[i] = byte(i)
	}
	return out
}
