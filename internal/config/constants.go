package config

import "time"

// Grant / session lifecycle (§4.5, §8)
const (
	SessionTimeout          = 120 * time.Second
	IdleTimeout             = 60 * time.Second
	RoundTimeout            = 30 * time.Second
	CleanupInterval         = 5 * time.Second
	SessionRetention        = 600 * time.Second
	MaxReplayCacheEntries   = 10_000
	MaxSessionsPerWallet    = 3
	MaxTotalSessions        = 10
	SigningShareCollectTime = 30 * time.Second
)

// Grant defaults (§4.1).
const (
	GrantMinThreshold    = 2
	DefaultGrantLifetime = 300 * time.Second
)

// Presignature pool (§4.6)
const (
	PresigTarget             = 100
	PresigMin                = 20
	PresigMax                = 150
	PresigGenerationPeriod   = 10 * time.Second
	PresigLockTTL            = 5 * time.Minute
	PresigMaxAge             = 24 * time.Hour
	PresigGenerationMaxBatch = 25
)

// Transport (§4.3, §6)
const (
	TransportALPN           = "mpc"
	TransportMaxFrameBytes  = 16 * 1024 * 1024
	TransportIdleTimeout    = 60 * time.Second
	TransportKeepAlive      = 15 * time.Second
	TransportConnectTimeout = 10 * time.Second
	TransportPoolMaxPerPeer = 50
	DefaultQUICPort         = 4001
)

// Router (§4.4, §5)
const (
	RouterChannelBuffer = 100
)

// Relay bus (§4.11)
const (
	RelayMaxMessagesPerParty = 1000
	RelayMaxSessions         = 100
	RelaySessionTTL          = 30 * time.Minute
)

// KV lock keys and cluster config keys (§4.7).
const (
	LockKeyDKG            = "/locks/dkg"
	LockKeyPresigGenerate = "/locks/presig-generation"
	LockKeySigningPrefix  = "/locks/signing/"
	KVKeyDKGConfigPrefix  = "/cluster/dkg/"
	KVKeyPublicKeyPrefix  = "/cluster/public_keys/"

	DKGLockTTL     = 10 * time.Minute
	SigningLockTTL = 45 * time.Second
)

// Bitcoin transaction construction (§4.10), teacher-style weight-unit naming.
const (
	DustLimitSats = 546

	BTCTxOverheadWU        = 42
	BTCP2WPKHInputNonWitWU = 164
	BTCP2WPKHInputWitWU    = 108 // 73-byte DER sig + 33-byte compressed pubkey, dummy witness
	BTCP2WPKHOutputWU      = 124
	BTCP2TRInputNonWitWU   = 164
	BTCP2TRInputWitWU      = 68 // 64-byte schnorr signature, dummy witness
	BTCP2TROutputWU        = 124
	BTCOpReturnBaseWU      = 44 // overhead for an OP_RETURN output excluding payload bytes
	BTCOpReturnMaxDataLen  = 80

	BTCMaxInputsPerTx = 2_500
	BTCMaxTxWeight    = 400_000
)

// Logging (ambient — kept from the teacher, renamed prefix).
const (
	LogDir         = "./logs"
	LogFilePattern = "torcus-%s-%s.log" // date, level
	LogMaxAgeDays  = 30
)

// Database.
const (
	DBPath        = "./data/torcus.sqlite"
	DBBusyTimeout = 5000 // milliseconds
)
