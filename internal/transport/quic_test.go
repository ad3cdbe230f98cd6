package transport

import (
	"context"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

func TestHubTLSConfig_Identity(t *testing.T) {
	cfg, err := hubTLSConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{ProtoID}, cfg.NextProtos)
	require.Len(t, cfg.Certificates, 1)

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, HubServerName, leaf.Subject.CommonName)
	assert.NoError(t, leaf.VerifyHostname(HubServerName))
	assert.Contains(t, leaf.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	assert.True(t, leaf.NotAfter.After(time.Now()))

	other, err := hubTLSConfig()
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Certificates[0].Certificate[0], other.Certificates[0].Certificate[0])
}

func TestListenHub_RequiresHandler(t *testing.T) {
	_, err := ListenHub(context.Background(), "127.0.0.1:0", nil)
	assert.Error(t, err)
}

func TestDialHub_FrameRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan proto.Frame, 1)
	srv, err := ListenHub(ctx, "127.0.0.1:0", func(c *Conn) {
		defer c.Close()
		var f proto.Frame
		if err := c.RecvFrame(&f); err != nil {
			return
		}
		got <- f
		_ = c.SendFrame(&proto.Frame{Type: proto.FrameTypeAck, Ack: &proto.AckFrame{OK: true}})
		c.Drain(time.Second)
	})
	require.NoError(t, err)
	defer srv.Close()

	conn, err := DialHub(ctx, srv.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	state := conn.qc.ConnectionState().TLS
	assert.Equal(t, ProtoID, state.NegotiatedProtocol)
	require.NotEmpty(t, state.PeerCertificates)
	assert.Equal(t, HubServerName, state.PeerCertificates[0].Subject.CommonName)

	require.NoError(t, conn.SendFrame(&proto.Frame{Type: proto.FrameTypeHello, Hello: &proto.HelloFrame{NodeID: "n1"}}))
	select {
	case f := <-got:
		assert.Equal(t, proto.FrameTypeHello, f.Type)
		require.NotNil(t, f.Hello)
		assert.Equal(t, "n1", f.Hello.NodeID)
	case <-ctx.Done():
		t.Fatal("hub never saw hello")
	}

	var ack proto.Frame
	require.NoError(t, conn.RecvFrame(&ack))
	assert.Equal(t, proto.FrameTypeAck, ack.Type)
}
