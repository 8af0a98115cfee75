// Package models holds the wire and storage data model shared across the
// torcus cluster: grants, sessions, key material, and the unsigned
// Bitcoin transaction shape built by internal/btctx.
package models

import "time"

// Protocol identifies which MPC protocol signs a given wallet.
type Protocol string

const (
	ProtocolCGGMP24 Protocol = "cggmp24" // threshold ECDSA, secp256k1, P2WPKH
	ProtocolFROST   Protocol = "frost"   // threshold Schnorr, BIP-340, P2TR
)

// AddressType is the Bitcoin output script type a wallet signs for.
type AddressType string

const (
	AddressP2WPKH AddressType = "p2wpkh"
	AddressP2TR   AddressType = "p2tr"
)

// ProtocolForAddress returns the MPC protocol used for a given address type,
// per spec §2: the orchestrator "selects protocol from address type".
func ProtocolForAddress(a AddressType) Protocol {
	if a == AddressP2TR {
		return ProtocolFROST
	}
	return ProtocolCGGMP24
}

// NodeID identifies a cluster node. 1-based, unique per cluster (§3).
type NodeID int

// PartyIndex is a node's 0-based position within a specific signing group (§3).
type PartyIndex int

// SessionState is the node-side signing session state machine (§4.5).
type SessionState string

const (
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
	SessionFailed     SessionState = "failed"
)

// SigningGrant is a coordinator-signed authorization to sign a specific
// message under a specific wallet with a specific party set (§3, §4.1).
type SigningGrant struct {
	GrantID      string   `json:"grant_id"`
	WalletID     string   `json:"wallet_id"`
	MessageHash  [32]byte `json:"message_hash"`
	Threshold    int      `json:"threshold"`
	Participants []int    `json:"participants"` // unique, sorted PartyIndex values
	Nonce        uint64   `json:"nonce"`
	ExpiresAt    int64    `json:"expires_at"` // unix seconds
	Signature    []byte   `json:"signature"`  // Ed25519, 64 bytes
}

// KeyShareRecord is one party's share of a wallet's key, written once by DKG
// completion and never mutated afterward (§3).
type KeyShareRecord struct {
	WalletID   string
	SessionID  string
	PartyIndex int
	Protocol   Protocol
	ShareBytes []byte // encrypted at rest
	PublicKey  []byte
}

// AuxInfoRecord holds CGGMP24 auxiliary ceremony parameters, generated once
// and reused across many signings of the same ceremony identity (§3).
type AuxInfoRecord struct {
	SessionID  string
	PartyIndex int
	AuxBytes   []byte
	CreatedAt  time.Time
}

// Presignature is single-use CGGMP24 pre-signature material (§3, §4.6).
type Presignature struct {
	PresigID     string
	WalletID     string
	Participants []int
	CreatedAt    time.Time
	IsUsed       bool
}

// RoundState tracks per-round message receipt for one session (§3, §4.5).
type RoundState struct {
	RoundNumber  int
	MessagesFrom map[int]bool // set of party indices that have contributed
	StartedAt    time.Time
	Expected     int
}

// NewRoundState creates an empty round awaiting `expected` contributions.
func NewRoundState(round, expected int, now time.Time) *RoundState {
	return &RoundState{
		RoundNumber:  round,
		MessagesFrom: make(map[int]bool, expected),
		StartedAt:    now,
		Expected:     expected,
	}
}

// Complete reports whether this round has received contributions from at
// least the expected number of participants.
func (r *RoundState) Complete() bool {
	return len(r.MessagesFrom) >= r.Expected
}

// SigningSession is per-node signing session state (§3, §4.5).
type SigningSession struct {
	SessionID       string
	GrantID         string
	WalletID        string
	Protocol        Protocol
	State           SessionState
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     time.Time
	CurrentRound    int
	LastMessageAt   time.Time
	Participants    []int
	NumParticipants int
	Signature       []byte
}

// RelayMessage is one MPC protocol-round message in flight, on either the
// QUIC transport or the relay bus (§3, §4.4, §4.11).
type RelayMessage struct {
	SessionID string
	Protocol  Protocol
	Sender    int
	Recipient *int // nil = broadcast
	Round     int
	Payload   []byte
	Seq       uint64
	Timestamp int64 // unix millis
}

// UTXO is a single unspent transaction output available to spend.
type UTXO struct {
	TxID        string
	Vout        uint32
	Value       int64 // satoshis
	PkScript    []byte
	AddressType AddressType
}

// TxOutput is a requested payment output (address, amount).
type TxOutput struct {
	Address string
	Amount  int64 // satoshis
}

// UnsignedTx is the tx builder's output before signing (§3, §4.10).
type UnsignedTx struct {
	RawBytes   []byte   // serialized wire.MsgTx, no witness data
	Sighashes  [][]byte // one per input, in input order
	Inputs     []UTXO   // selected inputs, in tx order
	Outputs    []TxOutput
	ChangeSats int64
	FeeSats    int64
	Vsize      int
}

// PeerInfo describes a cluster node as known to the registry (§3, §6).
type PeerInfo struct {
	PartyIndex  int
	Hostname    string
	QUICPort    int
	Certificate []byte // PEM
}

// Wallet is a persisted wallet record (§6 persistent state layout).
type Wallet struct {
	WalletID    string
	Name        string
	Protocol    Protocol
	AddressType AddressType
	PublicKey   []byte
	Address     string
	Threshold   int
	TotalNodes  int
	CreatedAt   time.Time
}
