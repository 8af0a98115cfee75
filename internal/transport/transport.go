// Package transport carries MPC protocol messages between cluster nodes
// over QUIC with mutual TLS 1.3 (§4.3). Every connection is authenticated
// in both directions by CA-signed certificates from internal/certs; the
// transport binds a peer's TLS identity (its party index, carried in the
// certificate's organizational unit) to the sender field on every message
// it relays, so a node can never forge another party's identity.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/torcus-labs/tss-wallet/internal/certs"
	"github.com/torcus-labs/tss-wallet/internal/config"
)

const alpn = "torcus-mpc/1"

// Frame is one length-prefixed message read off or written to a stream.
type Frame struct {
	Sender  int // party index of the sender, verified against the TLS peer cert
	Payload []byte
}

// Handler processes a Frame received from a peer connection.
type Handler func(ctx context.Context, f Frame)

// pooledConn wraps a quic.Connection with its last-used time. The pool
// prunes closed connections (by their context) lazily on access rather
// than running a sweeper; lastUsed is recorded but not used for pruning.
type pooledConn struct {
	conn     *quic.Conn
	lastUsed time.Time
}

// Endpoint is this node's QUIC mTLS transport: it accepts inbound peer
// connections and maintains a bounded pool of outbound ones.
type Endpoint struct {
	partyIndex int
	listener   *quic.Listener
	tlsConfig  *tls.Config

	mu    sync.Mutex
	pools map[int][]*pooledConn // party index -> pooled connections

	handler Handler
}

// NewEndpoint builds a transport bound to quicPort, authenticating itself
// with nodeCert and trusting peers signed by the same CA.
func NewEndpoint(partyIndex int, quicPort int, nodeCert *certs.NodeCert, caCertPEM string, handler Handler) (*Endpoint, error) {
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM([]byte(caCertPEM)) {
		return nil, fmt.Errorf("failed to parse CA certificate for transport")
	}

	stored := nodeCert.ToStored()
	tlsCert, err := tls.X509KeyPair([]byte(stored.CertPEM), []byte(stored.KeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to load node TLS certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		ClientCAs:    caPool,
		RootCAs:      caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}

	ep := &Endpoint{
		partyIndex: partyIndex,
		tlsConfig:  tlsConfig,
		pools:      make(map[int][]*pooledConn),
		handler:    handler,
	}

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: quicPort})
	if err != nil {
		return nil, fmt.Errorf("failed to bind QUIC UDP socket on port %d: %w", quicPort, err)
	}

	listener, err := quic.Listen(udpConn, tlsConfig, quicTransportConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to start QUIC listener on port %d: %w", quicPort, err)
	}
	ep.listener = listener

	go ep.acceptLoop()

	slog.Info("quic transport listening", "party_index", partyIndex, "port", quicPort)
	return ep, nil
}

func quicTransportConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  config.TransportIdleTimeout,
		KeepAlivePeriod: config.TransportKeepAlive,
	}
}

func (e *Endpoint) acceptLoop() {
	ctx := context.Background()
	for {
		conn, err := e.listener.Accept(ctx)
		if err != nil {
			slog.Warn("quic accept loop exiting", "error", err)
			return
		}
		go e.serveConn(conn)
	}
}

func (e *Endpoint) serveConn(conn *quic.Conn) {
	sender, err := peerPartyIndex(conn)
	if err != nil {
		slog.Warn("rejecting connection with unverifiable sender identity", "error", err)
		conn.CloseWithError(0, "unverifiable sender")
		return
	}

	e.storeConn(sender, conn)

	for {
		stream, err := conn.AcceptUniStream(context.Background())
		if err != nil {
			return
		}
		go e.readStream(sender, stream)
	}
}

func (e *Endpoint) readStream(claimedSender int, stream *quic.ReceiveStream) {
	payload, err := readFrame(stream)
	if err != nil {
		if err != io.EOF {
			slog.Warn("failed to read frame", "error", err)
		}
		return
	}
	e.handler(context.Background(), Frame{Sender: claimedSender, Payload: payload})
}

// Send delivers payload to the given peer, opening a fresh unidirectional
// stream per message as quic-go recommends for independent message framing.
func (e *Endpoint) Send(ctx context.Context, peer int, hostname string, port int, payload []byte) error {
	conn, err := e.getConn(ctx, peer, hostname, port)
	if err != nil {
		return err
	}

	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to open stream to peer %d: %v", config.ErrSendFailed, peer, err)
	}
	defer stream.Close()

	if err := writeFrame(stream, payload); err != nil {
		return fmt.Errorf("%w: %v", config.ErrSendFailed, err)
	}
	return nil
}

// Broadcast sends payload to every peer in peers, returning an error
// (wrapping the last failure) only if delivery failed on all of them
// (§4.4: best-effort fanout).
func (e *Endpoint) Broadcast(ctx context.Context, peers map[int]PeerAddr, payload []byte) error {
	var failed int
	var lastErr error
	for idx, addr := range peers {
		if err := e.Send(ctx, idx, addr.Hostname, addr.Port, payload); err != nil {
			failed++
			lastErr = err
			slog.Warn("broadcast send failed", "peer", idx, "error", err)
		}
	}
	if failed > 0 && failed == len(peers) {
		return fmt.Errorf("%w: %v", config.ErrBroadcastFailed, lastErr)
	}
	return nil
}

// PeerAddr is the reachable address for a peer's QUIC endpoint.
type PeerAddr struct {
	Hostname string
	Port     int
}

func (e *Endpoint) getConn(ctx context.Context, peer int, hostname string, port int) (*quic.Conn, error) {
	e.mu.Lock()
	pool := e.pools[peer]
	now := time.Now()
	pruned := pool[:0]
	for _, pc := range pool {
		if pc.conn.Context().Err() == nil {
			pruned = append(pruned, pc)
		}
	}
	e.pools[peer] = pruned
	if len(pruned) > 0 {
		last := pruned[len(pruned)-1]
		last.lastUsed = now
		e.mu.Unlock()
		return last.conn, nil
	}
	e.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, config.TransportConnectTimeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", hostname, port)
	conn, err := quic.DialAddr(connectCtx, addr, e.tlsConfig, quicTransportConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s for peer %d: %v", config.ErrConnectionLost, addr, peer, err)
	}

	e.storeConn(peer, conn)
	return conn, nil
}

func (e *Endpoint) storeConn(peer int, conn *quic.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool := e.pools[peer]
	if len(pool) >= config.TransportPoolMaxPerPeer {
		// Evict the oldest entry before growing (§4.3 bounded connection pool).
		pool = pool[1:]
	}
	e.pools[peer] = append(pool, &pooledConn{conn: conn, lastUsed: time.Now()})
}

// Close shuts down the listener and all pooled connections.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	for _, pool := range e.pools {
		for _, pc := range pool {
			pc.conn.CloseWithError(0, "shutting down")
		}
	}
	e.mu.Unlock()
	return e.listener.Close()
}

func peerPartyIndex(conn *quic.Conn) (int, error) {
	state := conn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return 0, fmt.Errorf("no peer certificate presented")
	}
	return certs.PartyIndexFromCert(state.PeerCertificates[0])
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > config.TransportMaxFrameBytes {
		return fmt.Errorf("frame of %d bytes exceeds maximum %d", len(payload), config.TransportMaxFrameBytes)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > config.TransportMaxFrameBytes {
		return nil, fmt.Errorf("frame of %d bytes exceeds maximum %d", size, config.TransportMaxFrameBytes)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
