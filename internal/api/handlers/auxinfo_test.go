package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/torcus-labs/tss-wallet/internal/coordinator"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/router"
	"github.com/torcus-labs/tss-wallet/internal/store"
)

func newTestAuxInfoHandler(t *testing.T) (*chi.Mux, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	if err := st.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	auxInfo := coordinator.NewAuxInfo(st, router.New(), protocol.NewTestRunner(nil), nil)

	r := chi.NewRouter()
	r.Post("/aux-info/start", AuxInfoStartHandler(auxInfo))
	return r, st
}

func TestAuxInfoStartHandler_PersistsAuxInfo(t *testing.T) {
	r, st := newTestAuxInfoHandler(t)

	wallet := &models.Wallet{
		WalletID: "wallet-1", Protocol: models.ProtocolCGGMP24, AddressType: models.AddressP2WPKH,
		Threshold: 2, TotalNodes: 3, CreatedAt: time.Now(),
	}
	if err := st.SaveWallet(wallet); err != nil {
		t.Fatalf("SaveWallet() error = %v", err)
	}

	body, _ := json.Marshal(auxInfoStartRequest{WalletID: wallet.WalletID, PartyIndex: 0, Participants: []int{0, 1, 2}})
	req := httptest.NewRequest("POST", "/aux-info/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp auxInfoStartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a non-empty session_id")
	}

	got, err := st.GetLatestAuxInfo(wallet.WalletID, 0)
	if err != nil {
		t.Fatalf("GetLatestAuxInfo() error = %v", err)
	}
	if got == nil {
		t.Fatal("expected aux-info to be persisted")
	}
}

func TestAuxInfoStartHandler_MalformedBodyRejected(t *testing.T) {
	r, _ := newTestAuxInfoHandler(t)

	req := httptest.NewRequest("POST", "/aux-info/start", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
