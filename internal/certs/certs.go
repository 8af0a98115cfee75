// Package certs implements the CA-signed certificate hierarchy that backs
// mutual TLS between cluster nodes (§4.2, §4.3): one self-signed root CA,
// and one leaf certificate per node carrying its party index in the
// subject so a peer's TLS identity can be bound to the application-layer
// sender field on every message.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

const (
	caCommonName = "Torcus MPC Wallet CA"
	orgName      = "Torcus"
	validity     = 365 * 24 * time.Hour
)

// StoredCA is the CA certificate and key, as persisted to disk (§4.2).
type StoredCA struct {
	CertPEM   string `json:"cert_pem"`
	KeyPEM    string `json:"key_pem"`
	CreatedAt int64  `json:"created_at"`
}

// StoredNodeCert is a node's leaf certificate and key, as persisted or
// handed to a node at registration time (§4.2, §6 register endpoint).
type StoredNodeCert struct {
	PartyIndex int    `json:"party_index"`
	CertPEM    string `json:"cert_pem"`
	KeyPEM     string `json:"key_pem"`
	CACertPEM  string `json:"ca_cert_pem"`
	CreatedAt  int64  `json:"created_at"`
}

// CA holds the root certificate authority's signing material.
type CA struct {
	cert    *x509.Certificate
	key     *ecdsa.PrivateKey
	certDER []byte
}

// GenerateCA creates a fresh self-signed root CA.
func GenerateCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   caCommonName,
			Organization: []string{orgName},
		},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated CA certificate: %w", err)
	}

	return &CA{cert: cert, key: key, certDER: der}, nil
}

// LoadCA parses a CA from its stored PEM form.
func LoadCA(stored *StoredCA) (*CA, error) {
	certDER, err := pemToDER(stored.CertPEM, "CERTIFICATE")
	if err != nil {
		return nil, fmt.Errorf("failed to decode CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	keyDER, err := pemToDER(stored.KeyPEM, "EC PRIVATE KEY")
	if err != nil {
		return nil, fmt.Errorf("failed to decode CA key: %w", err)
	}
	key, err := x509.ParseECPrivateKey(keyDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return &CA{cert: cert, key: key, certDER: certDER}, nil
}

// ToStored exports the CA for persistence.
func (ca *CA) ToStored() (*StoredCA, error) {
	keyDER, err := x509.MarshalECPrivateKey(ca.key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal CA key: %w", err)
	}
	return &StoredCA{
		CertPEM:   string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.certDER})),
		KeyPEM:    string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
		CreatedAt: time.Now().Unix(),
	}, nil
}

// CertPEM returns the CA's certificate in PEM form.
func (ca *CA) CertPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.certDER}))
}

// SignNodeCert issues a leaf certificate for partyIndex, valid for the given
// hostnames/IPs. The subject's organizational unit carries "party-{N}" so
// the transport layer can bind a TLS peer to an application-layer sender
// (§4.3: "sender identity binding between TLS cert and message sender").
func (ca *CA) SignNodeCert(partyIndex int, hosts []string) (*NodeCert, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate node key for party %d: %w", partyIndex, err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         fmt.Sprintf("MPC Node %d", partyIndex),
			Organization:       []string{orgName},
			OrganizationalUnit: []string{fmt.Sprintf("party-%d", partyIndex)},
		},
		NotBefore:   now,
		NotAfter:    now.Add(validity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign node certificate for party %d: %w", partyIndex, err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node key for party %d: %w", partyIndex, err)
	}

	return &NodeCert{
		PartyIndex: partyIndex,
		certDER:    der,
		keyDER:     keyDER,
		caCertPEM:  ca.CertPEM(),
	}, nil
}

// NodeCert is a signed leaf certificate for one node.
type NodeCert struct {
	PartyIndex int
	certDER    []byte
	keyDER     []byte
	caCertPEM  string
}

// ToStored exports this node certificate for persistence or transmission.
func (nc *NodeCert) ToStored() *StoredNodeCert {
	return &StoredNodeCert{
		PartyIndex: nc.PartyIndex,
		CertPEM:    string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: nc.certDER})),
		KeyPEM:     string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: nc.keyDER})),
		CACertPEM:  nc.caCertPEM,
		CreatedAt:  time.Now().Unix(),
	}
}

// NodeCertFromStored reconstitutes a NodeCert from its persisted form.
func NodeCertFromStored(stored *StoredNodeCert) (*NodeCert, error) {
	certDER, err := pemToDER(stored.CertPEM, "CERTIFICATE")
	if err != nil {
		return nil, fmt.Errorf("failed to decode node certificate: %w", err)
	}
	keyDER, err := pemToDER(stored.KeyPEM, "EC PRIVATE KEY")
	if err != nil {
		return nil, fmt.Errorf("failed to decode node key: %w", err)
	}
	return &NodeCert{
		PartyIndex: stored.PartyIndex,
		certDER:    certDER,
		keyDER:     keyDER,
		caCertPEM:  stored.CACertPEM,
	}, nil
}

// PartyIndexFromCert extracts the party index carried in a peer certificate's
// organizational unit, as set by SignNodeCert.
func PartyIndexFromCert(cert *x509.Certificate) (int, error) {
	for _, ou := range cert.Subject.OrganizationalUnit {
		var idx int
		if n, err := fmt.Sscanf(ou, "party-%d", &idx); err == nil && n == 1 {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("no party-N organizational unit found in certificate subject %q", cert.Subject)
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate serial: %w", err)
	}
	return serial, nil
}

func pemToDER(pemStr, blockType string) ([]byte, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("unexpected PEM block type %q, want %q", block.Type, blockType)
	}
	return block.Bytes, nil
}
