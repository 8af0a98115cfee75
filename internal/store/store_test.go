package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesFileAndWALMode(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected database file to be created")
	}

	var mode string
	if err := s.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestRunMigrations_CreatesTables(t *testing.T) {
	s := openTestStore(t)

	tables := []string{"wallets", "key_shares", "aux_info", "presignatures", "relay_sessions", "byzantine_violations", "grant_replay_cache", "dkg_ceremonies"}
	for _, table := range tables {
		var name string
		err := s.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.RunMigrations(); err != nil {
		t.Fatalf("first RunMigrations() error = %v", err)
	}
	if err := s.RunMigrations(); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
}

func TestWallet_SaveGetList(t *testing.T) {
	s := openTestStore(t)

	w := &models.Wallet{
		WalletID:    "wallet-1",
		Name:        "treasury",
		Protocol:    models.ProtocolCGGMP24,
		AddressType: models.AddressP2WPKH,
		PublicKey:   []byte{0x02, 0x03},
		Address:     "tb1qexample",
		Threshold:   2,
		TotalNodes:  3,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveWallet(w); err != nil {
		t.Fatalf("SaveWallet() error = %v", err)
	}

	got, err := s.GetWallet("wallet-1")
	if err != nil {
		t.Fatalf("GetWallet() error = %v", err)
	}
	if got == nil || got.Address != w.Address || got.Protocol != w.Protocol {
		t.Fatalf("GetWallet() = %+v, want matching %+v", got, w)
	}

	byAddr, err := s.GetWalletByAddress("tb1qexample")
	if err != nil {
		t.Fatalf("GetWalletByAddress() error = %v", err)
	}
	if byAddr == nil || byAddr.WalletID != "wallet-1" {
		t.Fatalf("GetWalletByAddress() = %+v, want wallet-1", byAddr)
	}

	list, err := s.ListWallets()
	if err != nil {
		t.Fatalf("ListWallets() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListWallets() len = %d, want 1", len(list))
	}
}

func TestWallet_GetMissing(t *testing.T) {
	s := openTestStore(t)
	w, err := s.GetWallet("nope")
	if err != nil {
		t.Fatalf("GetWallet() error = %v", err)
	}
	if w != nil {
		t.Fatalf("GetWallet() = %+v, want nil", w)
	}
}

func TestKeyShare_SaveAndGet(t *testing.T) {
	s := openTestStore(t)

	k := &models.KeyShareRecord{
		WalletID:   "wallet-1",
		SessionID:  "sess-1",
		PartyIndex: 0,
		Protocol:   models.ProtocolCGGMP24,
		ShareBytes: []byte("encrypted-share"),
		PublicKey:  []byte("pubkey"),
	}
	if err := s.SaveKeyShare(k); err != nil {
		t.Fatalf("SaveKeyShare() error = %v", err)
	}

	got, err := s.GetKeyShare("sess-1", 0)
	if err != nil {
		t.Fatalf("GetKeyShare() error = %v", err)
	}
	if got == nil || string(got.ShareBytes) != "encrypted-share" {
		t.Fatalf("GetKeyShare() = %+v, want matching share bytes", got)
	}

	byWallet, err := s.GetKeyShareForWallet("wallet-1", 0)
	if err != nil {
		t.Fatalf("GetKeyShareForWallet() error = %v", err)
	}
	if byWallet == nil || byWallet.SessionID != "sess-1" {
		t.Fatalf("GetKeyShareForWallet() = %+v, want sess-1", byWallet)
	}
}

func TestAuxInfo_SaveAndGetLatest(t *testing.T) {
	s := openTestStore(t)

	old := &models.AuxInfoRecord{SessionID: "sess-old", PartyIndex: 0, AuxBytes: []byte("old"), CreatedAt: time.Now().Add(-time.Hour)}
	if err := s.SaveAuxInfo("wallet-1", old); err != nil {
		t.Fatalf("SaveAuxInfo(old) error = %v", err)
	}
	latest := &models.AuxInfoRecord{SessionID: "sess-new", PartyIndex: 0, AuxBytes: []byte("new"), CreatedAt: time.Now()}
	if err := s.SaveAuxInfo("wallet-1", latest); err != nil {
		t.Fatalf("SaveAuxInfo(new) error = %v", err)
	}

	got, err := s.GetLatestAuxInfo("wallet-1", 0)
	if err != nil {
		t.Fatalf("GetLatestAuxInfo() error = %v", err)
	}
	if got == nil || string(got.AuxBytes) != "new" {
		t.Fatalf("GetLatestAuxInfo() = %+v, want the newer aux-info row", got)
	}
}

func TestPresignature_AcquireIsSingleUse(t *testing.T) {
	s := openTestStore(t)

	if err := s.SavePresignature(&models.Presignature{PresigID: "p1", WalletID: "wallet-1", Participants: []int{0, 1}, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("SavePresignature() error = %v", err)
	}

	n, err := s.CountAvailable("wallet-1")
	if err != nil {
		t.Fatalf("CountAvailable() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("CountAvailable() = %d, want 1", n)
	}

	p, err := s.AcquireOne("wallet-1")
	if err != nil {
		t.Fatalf("AcquireOne() error = %v", err)
	}
	if p == nil || p.PresigID != "p1" {
		t.Fatalf("AcquireOne() = %+v, want p1", p)
	}

	again, err := s.AcquireOne("wallet-1")
	if err != nil {
		t.Fatalf("AcquireOne() second call error = %v", err)
	}
	if again != nil {
		t.Fatalf("AcquireOne() second call = %+v, want nil (pool exhausted)", again)
	}
}

func TestPresignature_DeleteOlderThan(t *testing.T) {
	s := openTestStore(t)
	s.SavePresignature(&models.Presignature{PresigID: "old", WalletID: "wallet-1", CreatedAt: time.Now().Add(-48 * time.Hour)})
	s.SavePresignature(&models.Presignature{PresigID: "new", WalletID: "wallet-1", CreatedAt: time.Now()})

	n, err := s.DeleteOlderThan(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteOlderThan() removed %d, want 1", n)
	}

	remaining, _ := s.CountAvailable("wallet-1")
	if remaining != 1 {
		t.Fatalf("CountAvailable() after eviction = %d, want 1", remaining)
	}
}

func TestRelaySessionSnapshot_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveRelaySessionSnapshot("sess-1", `{"parties":[0,1,2]}`); err != nil {
		t.Fatalf("SaveRelaySessionSnapshot() error = %v", err)
	}
	if err := s.SaveRelaySessionSnapshot("sess-1", `{"parties":[0,1,2],"round":2}`); err != nil {
		t.Fatalf("SaveRelaySessionSnapshot() update error = %v", err)
	}

	snapshots, err := s.LoadRelaySessionSnapshots()
	if err != nil {
		t.Fatalf("LoadRelaySessionSnapshots() error = %v", err)
	}
	if snapshots["sess-1"] != `{"parties":[0,1,2],"round":2}` {
		t.Fatalf("snapshot = %q, want the updated value", snapshots["sess-1"])
	}

	if err := s.DeleteRelaySessionSnapshot("sess-1"); err != nil {
		t.Fatalf("DeleteRelaySessionSnapshot() error = %v", err)
	}
	snapshots, _ = s.LoadRelaySessionSnapshots()
	if _, ok := snapshots["sess-1"]; ok {
		t.Fatal("expected snapshot to be gone after delete")
	}
}

func TestGrantReplayCache(t *testing.T) {
	s := openTestStore(t)

	seen, err := s.GrantSeen("grant-1")
	if err != nil {
		t.Fatalf("GrantSeen() error = %v", err)
	}
	if seen {
		t.Fatal("GrantSeen() = true for a grant never recorded")
	}

	if err := s.RecordGrantSeen("grant-1", "sess-1"); err != nil {
		t.Fatalf("RecordGrantSeen() error = %v", err)
	}

	seen, err = s.GrantSeen("grant-1")
	if err != nil {
		t.Fatalf("GrantSeen() error = %v", err)
	}
	if !seen {
		t.Fatal("GrantSeen() = false after RecordGrantSeen")
	}

	if err := s.RecordGrantSeen("grant-1", "sess-2"); err == nil {
		t.Fatal("expected error re-recording the same grant id")
	}
}

func TestByzantineViolations(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordViolation(&Violation{NodeID: 2, SessionID: "sess-1", Kind: ViolationDoubleVote, Evidence: `{"round":1}`}); err != nil {
		t.Fatalf("RecordViolation() error = %v", err)
	}
	if err := s.RecordViolation(&Violation{NodeID: 2, SessionID: "sess-2", Kind: ViolationInvalidSignature, Evidence: `{}`}); err != nil {
		t.Fatalf("RecordViolation() error = %v", err)
	}

	violations, err := s.ViolationsForNode(2)
	if err != nil {
		t.Fatalf("ViolationsForNode() error = %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("ViolationsForNode() len = %d, want 2", len(violations))
	}

	count, err := s.CountViolations(2)
	if err != nil {
		t.Fatalf("CountViolations() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("CountViolations() = %d, want 2", count)
	}

	none, err := s.CountViolations(99)
	if err != nil {
		t.Fatalf("CountViolations() for unseen node error = %v", err)
	}
	if none != 0 {
		t.Fatalf("CountViolations() for unseen node = %d, want 0", none)
	}
}

func TestDKGCeremony_Lifecycle(t *testing.T) {
	s := openTestStore(t)

	d := &DKGCeremony{SessionID: "sess-1", Protocol: models.ProtocolFROST, Threshold: 2, Participants: []int{0, 1, 2}}
	if err := s.CreateDKGCeremony(d); err != nil {
		t.Fatalf("CreateDKGCeremony() error = %v", err)
	}

	got, err := s.GetDKGCeremony("sess-1")
	if err != nil {
		t.Fatalf("GetDKGCeremony() error = %v", err)
	}
	if got.Status != "in_progress" || len(got.Participants) != 3 {
		t.Fatalf("GetDKGCeremony() = %+v, want in_progress with 3 participants", got)
	}

	if err := s.CompleteDKGCeremony("sess-1", "wallet-1"); err != nil {
		t.Fatalf("CompleteDKGCeremony() error = %v", err)
	}
	got, _ = s.GetDKGCeremony("sess-1")
	if got.Status != "completed" || got.WalletID != "wallet-1" {
		t.Fatalf("GetDKGCeremony() after complete = %+v", got)
	}
}

func TestDKGCeremony_Fail(t *testing.T) {
	s := openTestStore(t)
	d := &DKGCeremony{SessionID: "sess-2", Protocol: models.ProtocolCGGMP24, Threshold: 2, Participants: []int{0, 1}}
	s.CreateDKGCeremony(d)

	if err := s.FailDKGCeremony("sess-2", "peer disconnected"); err != nil {
		t.Fatalf("FailDKGCeremony() error = %v", err)
	}
	got, _ := s.GetDKGCeremony("sess-2")
	if got.Status != "failed" || got.FailureReason != "peer disconnected" {
		t.Fatalf("GetDKGCeremony() after fail = %+v", got)
	}
}
