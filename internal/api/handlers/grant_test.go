package handlers

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/torcus-labs/tss-wallet/internal/grant"
)

func TestGrantIssueHandler_IssuesSignedGrant(t *testing.T) {
	issuer, _, err := grant.GenerateIssuer()
	if err != nil {
		t.Fatalf("GenerateIssuer() error = %v", err)
	}
	handler := GrantIssueHandler(issuer)

	msgHash := make([]byte, 32)
	body, _ := json.Marshal(grantIssueRequest{
		WalletID: "wallet-1", MessageHashHex: hex.EncodeToString(msgHash),
		Threshold: 2, Participants: []int{0, 1, 2}, LifetimeSeconds: 60,
	})
	req := httptest.NewRequest("POST", "/grant/issue", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp grantResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.GrantID == "" || resp.SignatureHex == "" {
		t.Fatal("expected a populated grant_id and signature_hex")
	}
	if len(resp.Participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(resp.Participants))
	}
}

func TestGrantPubkeyHandler_ReturnsHexEncodedKey(t *testing.T) {
	_, pub, err := grant.GenerateIssuer()
	if err != nil {
		t.Fatalf("GenerateIssuer() error = %v", err)
	}
	handler := GrantPubkeyHandler(pub)

	req := httptest.NewRequest("GET", "/grant/pubkey", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp grantPubkeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.KeyType != "ed25519" {
		t.Fatalf("expected key_type ed25519, got %q", resp.KeyType)
	}
	decoded, err := hex.DecodeString(resp.PublicKeyHex)
	if err != nil || len(decoded) != 32 {
		t.Fatalf("expected a 32-byte hex-encoded ed25519 public key, got %q", resp.PublicKeyHex)
	}
}
