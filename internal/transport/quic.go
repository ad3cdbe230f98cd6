package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

// Hub links are long lived; the default 30s idle timeout would drop quiet nodes.
var defaultQuicConfig = &quic.Config{
	MaxIdleTimeout:  5 * time.Minute,
	KeepAlivePeriod: 30 * time.Second,
}

const (
	// ProtoID is the ALPN both ends of a hub link negotiate.
	ProtoID = "btbmesh/1"
	// HubServerName is the identity on the hub's certificate.
	HubServerName = "btbmesh-hub"

	hubCertLifetime = 30 * 24 * time.Hour
)

// Application error codes used when closing a hub link.
const (
	closeNormal   quic.ApplicationErrorCode = 0
	closeNoStream quic.ApplicationErrorCode = 1
)

// Conn is one frame stream between a node and the hub. SendFrame may be
// called from several goroutines.
type Conn struct {
	stream quic.Stream
	qc     quic.Connection

	wmu sync.Mutex
}

func newConn(stream quic.Stream, qc quic.Connection) *Conn {
	return &Conn{stream: stream, qc: qc}
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() string {
	return c.qc.RemoteAddr().String()
}

// SendFrame writes one frame
func (c *Conn) SendFrame(f *proto.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return f.Encode(c.stream)
}

// RecvFrame reads the next frame into f
func (c *Conn) RecvFrame(f *proto.Frame) error {
	return f.Decode(c.stream)
}

// Close ends the stream and the connection under it.
func (c *Conn) Close() error {
	err := c.stream.Close()
	_ = c.qc.CloseWithError(closeNormal, "bye")
	return err
}

// Drain discards inbound data until the peer closes or timeout passes.
func (c *Conn) Drain(timeout time.Duration) {
	_ = c.stream.SetReadDeadline(time.Now().Add(timeout))
	_, _ = io.Copy(io.Discard, c.stream)
}

// hubTLSConfig issues a fresh self-signed certificate for HubServerName. The
// hub has no stable identity, so a new key is made on every start.
func hubTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("hub key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, fmt.Errorf("hub cert serial: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: HubServerName, Organization: []string{"btbmesh"}},
		DNSNames:     []string{HubServerName},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(hubCertLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("hub cert: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("hub cert: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}},
		NextProtos:   []string{ProtoID},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// nodeTLSConfig is what a node presents when dialing a hub. The hub's
// certificate is self-signed per run, so only its name and ALPN are checked.
func nodeTLSConfig() *tls.Config {
	return &tls.Config{
		ServerName:         HubServerName,
		InsecureSkipVerify: true,
		NextProtos:         []string{ProtoID},
		MinVersion:         tls.VersionTLS13,
	}
}

// Server accepts node links for a hub. Each link is one QUIC connection
// carrying one bidirectional frame stream opened by the node.
type Server struct {
	ln     *quic.Listener
	handle func(*Conn)

	closed atomic.Bool
}

// ListenHub listens on addr and calls handle for every node link, each on its
// own goroutine. handle owns the Conn and must close it.
func ListenHub(ctx context.Context, addr string, handle func(*Conn)) (*Server, error) {
	if handle == nil {
		return nil, errors.New("listen hub: nil handler")
	}
	tlsCfg, err := hubTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsCfg, defaultQuicConfig)
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, handle: handle}
	go s.serve(ctx)
	return s, nil
}

func (s *Server) serve(ctx context.Context) {
	for {
		qc, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || s.closed.Load() {
				return
			}
			continue
		}
		go s.serveConn(ctx, qc)
	}
}

// serveConn waits for the node to open its frame stream. A node that never
// does is dropped when the handshake idle timeout fires or ctx ends.
func (s *Server) serveConn(ctx context.Context, qc quic.Connection) {
	stream, err := qc.AcceptStream(ctx)
	if err != nil {
		_ = qc.CloseWithError(closeNoStream, "no frame stream")
		return
	}
	s.handle(newConn(stream, qc))
}

// LocalAddr returns the address the hub listens on
func (s *Server) LocalAddr() string {
	return s.ln.Addr().String()
}

// Close stops accepting node links. Links already attached stay up until
// their handler returns.
func (s *Server) Close() error {
	s.closed.Store(true)
	return s.ln.Close()
}

// DialHub opens a link to the hub at addr.
func DialHub(ctx context.Context, addr string) (*Conn, error) {
	qc, err := quic.DialAddr(ctx, addr, nodeTLSConfig(), defaultQuicConfig)
	if err != nil {
		return nil, err
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(closeNoStream, "open stream failed")
		return nil, err
	}
	return newConn(stream, qc), nil
}
