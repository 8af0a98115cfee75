package config

import "errors"

// Sentinel errors, grouped by the taxonomy in spec §7.
var (
	// Configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// Validation.
	ErrInsufficientFunds = errors.New("insufficient funds for requested outputs and fee")
	ErrDustOutput        = errors.New("output below dust threshold")
	ErrOpReturnTooLarge  = errors.New("OP_RETURN payload exceeds maximum size")
	ErrTxTooLarge        = errors.New("transaction exceeds maximum weight")
	ErrInvalidSigLength  = errors.New("invalid signature length or structural form")
	ErrInvalidAddress    = errors.New("invalid or unsupported address")

	// Wallet lookup.
	ErrWalletNotFound  = errors.New("wallet not found")
	ErrKeyShareMissing = errors.New("no local key share for wallet")

	// Authorization.
	ErrInvalidGrantSignature = errors.New("grant signature invalid")
	ErrGrantExpired          = errors.New("grant expired")
	ErrNotParticipant        = errors.New("node is not a participant in this grant")
	ErrWrongInitiator        = errors.New("proposal from non-initiator party")
	ErrInvalidPSK            = errors.New("invalid registration pre-shared key")
	ErrBannedPeer            = errors.New("peer is banned")

	// Session state.
	ErrGrantReplayed      = errors.New("grant already used")
	ErrSessionExists      = errors.New("session already exists")
	ErrInvalidTransition  = errors.New("invalid session state transition")
	ErrTooManySessions    = errors.New("too many concurrent sessions")
	ErrRoundTimeout       = errors.New("round timed out")
	ErrSessionTimeout     = errors.New("session timed out")
	ErrIdleTimeout        = errors.New("session idle timed out")
	ErrInsufficientShares = errors.New("insufficient signature shares at timeout")
	ErrSignatureMismatch  = errors.New("signature shares do not agree")

	// Transport.
	ErrConnectionLost         = errors.New("connection lost")
	ErrSendFailed             = errors.New("send failed")
	ErrPeerNotFound           = errors.New("peer not found")
	ErrTLSHandshakeFailed     = errors.New("TLS handshake failed")
	ErrSenderIdentityMismatch = errors.New("message sender does not match authenticated peer")
	ErrBroadcastFailed        = errors.New("broadcast failed on all peers")

	// Coordination (KV).
	ErrLockHeld      = errors.New("lock held by another holder")
	ErrKVUnavailable = errors.New("KV store unavailable")

	// Presignatures.
	ErrNoPresignatures = errors.New("no presignatures available")
	ErrPresigNotFound  = errors.New("presignature not found or already used")

	// Relay bus.
	ErrRelayQueueFull    = errors.New("relay queue full")
	ErrRelaySessionGone  = errors.New("relay session expired or not found")
	ErrRelayInvalidParty = errors.New("sender or recipient not a participant")

	// Protocol (external MPC runner boundary).
	ErrProtocolFailed = errors.New("protocol runner failed")

	// Mainnet gate (Non-goals: mainnet refused until audited).
	ErrMainnetRefused = errors.New("mainnet is refused until the cluster is audited")
)

// Error codes returned over the coordinator HTTP surface (§6), as {code, message}.
const (
	ErrorInvalidConfig      = "ERROR_INVALID_CONFIG"
	ErrorInvalidGrant       = "ERROR_INVALID_GRANT"
	ErrorGrantExpired       = "ERROR_GRANT_EXPIRED"
	ErrorGrantReplayed      = "ERROR_GRANT_REPLAYED"
	ErrorNotParticipant     = "ERROR_NOT_PARTICIPANT"
	ErrorWrongInitiator     = "ERROR_WRONG_INITIATOR"
	ErrorInvalidPSK         = "ERROR_INVALID_PSK"
	ErrorTooManySessions    = "ERROR_TOO_MANY_SESSIONS"
	ErrorRoundTimeout       = "ERROR_ROUND_TIMEOUT"
	ErrorSessionTimeout     = "ERROR_SESSION_TIMEOUT"
	ErrorInsufficientShares = "ERROR_INSUFFICIENT_SHARES"
	ErrorLockHeld           = "ERROR_LOCK_HELD"
	ErrorNoPresignatures    = "ERROR_NO_PRESIGNATURES"
	ErrorInsufficientFunds  = "ERROR_INSUFFICIENT_FUNDS"
	ErrorDustOutput         = "ERROR_DUST_OUTPUT"
	ErrorOpReturnTooLarge   = "ERROR_OP_RETURN_TOO_LARGE"
	ErrorInvalidSigLength   = "ERROR_INVALID_SIGNATURE_LENGTH"
	ErrorProtocolFailed     = "ERROR_PROTOCOL_FAILED"
	ErrorMainnetRefused     = "ERROR_MAINNET_REFUSED"
	ErrorWalletNotFound     = "ERROR_WALLET_NOT_FOUND"
	ErrorKeyShareMissing    = "ERROR_KEY_SHARE_MISSING"
	ErrorInternal           = "ERROR_INTERNAL"
)
