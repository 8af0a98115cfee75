package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/torcus-labs/tss-wallet/internal/certs"
	"github.com/torcus-labs/tss-wallet/internal/registry"
)

func TestRegisterHandler_NewNodeIssuesToken(t *testing.T) {
	reg := registry.New("cluster-psk", registry.DefaultConfig())
	handler := RegisterHandler(reg)

	body, _ := json.Marshal(registerRequest{PSK: "cluster-psk", NodeID: "node-a", PartyIndex: 0, Endpoint: "a.local:9000"})
	req := httptest.NewRequest("POST", "/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp registerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CertToken == "" {
		t.Fatal("expected a non-empty cert_token")
	}
}

func TestRegisterHandler_WrongPSKRejected(t *testing.T) {
	reg := registry.New("cluster-psk", registry.DefaultConfig())
	handler := RegisterHandler(reg)

	body, _ := json.Marshal(registerRequest{PSK: "wrong", NodeID: "node-a", PartyIndex: 0, Endpoint: "a.local:9000"})
	req := httptest.NewRequest("POST", "/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCertIssueHandler_ValidTokenIssuesCert(t *testing.T) {
	reg := registry.New("cluster-psk", registry.DefaultConfig())
	token, err := reg.Register("cluster-psk", "node-a", 0, "a.local:9000")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	ca, err := certs.GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}

	handler := CertIssueHandler(reg, ca)
	body, _ := json.Marshal(certIssueRequest{CertToken: token, PartyIndex: 0, Hostnames: []string{"node-a.local"}})
	req := httptest.NewRequest("POST", "/cert/issue", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp certIssueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CertPEM == "" || resp.CACertPEM == "" {
		t.Fatal("expected non-empty certificate PEM fields")
	}
}

func TestCertIssueHandler_WrongTokenRejected(t *testing.T) {
	reg := registry.New("cluster-psk", registry.DefaultConfig())
	if _, err := reg.Register("cluster-psk", "node-a", 0, "a.local:9000"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	ca, err := certs.GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}

	handler := CertIssueHandler(reg, ca)
	body, _ := json.Marshal(certIssueRequest{CertToken: "bogus", PartyIndex: 0})
	req := httptest.NewRequest("POST", "/cert/issue", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
