// Package medium simulates a shared radio channel over the network. Nodes
// attach to a Hub over QUIC and the hub relays every advertisement to every
// other attached node as a scan report, the way nearby receivers would hear it.
package medium

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWAI-Ltd/btbmesh/internal/metrics"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
	"github.com/SWAI-Ltd/btbmesh/internal/transport"
)

// Error codes sent in ErrorFrame.Code
const (
	ErrCodeHelloRequired = "HELLO_REQUIRED"
	ErrCodeBadFrame      = "BAD_FRAME"
)

// HubConfig configures a Hub.
type HubConfig struct {
	Addr string
	// RSSI reports how strongly to hears from; nil means transport.DefaultRSSI
	// for every pair.
	RSSI func(from, to string) int8
	// RepeatInterval re-broadcasts every standing advertisement on this period,
	// as a radio keeps advertising until told to stop. Zero disables repeats.
	RepeatInterval time.Duration
	Logger         zerolog.Logger
}

// Hub is the broadcast medium. Each attached node holds at most one standing
// advertisement, replaced by Advertise and withdrawn by Stop.
type Hub struct {
	server *transport.Server
	cfg    HubConfig
	logger zerolog.Logger

	mu    sync.Mutex
	nodes map[*member]struct{}
}

type member struct {
	id   string
	conn *transport.Conn
	adv  *proto.AdvertiseFrame // guarded by Hub.mu
}

// RunHub starts a hub listening on cfg.Addr. It stops when ctx is done or
// Close is called.
func RunHub(ctx context.Context, cfg HubConfig) (*Hub, error) {
	h := &Hub{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "hub").Logger(),
		nodes:  make(map[*member]struct{}),
	}
	server, err := transport.ListenHub(ctx, cfg.Addr, h.handleConn)
	if err != nil {
		return nil, fmt.Errorf("hub listen %s: %w", cfg.Addr, err)
	}
	h.server = server
	if cfg.RepeatInterval > 0 {
		go h.repeatLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		_ = h.server.Close()
	}()
	h.logger.Info().Str("addr", server.LocalAddr()).Msg("hub listening")
	return h, nil
}

// Addr returns the hub's listen address.
func (h *Hub) Addr() string { return h.server.LocalAddr() }

// Nodes returns the number of attached nodes.
func (h *Hub) Nodes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// Close stops accepting nodes.
func (h *Hub) Close() error { return h.server.Close() }

func (h *Hub) handleConn(c *transport.Conn) {
	defer c.Close()

	var f proto.Frame
	if err := c.RecvFrame(&f); err != nil {
		return
	}
	if f.Type != proto.FrameTypeHello || f.Validate() != nil {
		_ = c.SendFrame(errorFrame(ErrCodeHelloRequired, "first frame must be hello"))
		c.Drain(time.Second)
		return
	}
	m := &member{id: f.Hello.NodeID, conn: c}
	if m.id == "" {
		m.id = c.RemoteAddr()
	}
	h.attach(m)
	defer h.detach(m)
	_ = c.SendFrame(&proto.Frame{Type: proto.FrameTypeAck, Ack: &proto.AckFrame{OK: true}})

	for {
		if err := c.RecvFrame(&f); err != nil {
			h.logger.Debug().Err(err).Str("node", m.id).Msg("node detached")
			return
		}
		if err := f.Validate(); err != nil {
			_ = c.SendFrame(errorFrame(ErrCodeBadFrame, err.Error()))
			continue
		}
		switch f.Type {
		case proto.FrameTypeAdvertise:
			adv := *f.Advertise
			h.mu.Lock()
			m.adv = &adv
			h.mu.Unlock()
			h.fanout(m, &adv)
		case proto.FrameTypeStop:
			h.mu.Lock()
			m.adv = nil
			h.mu.Unlock()
		}
	}
}

func (h *Hub) attach(m *member) {
	h.mu.Lock()
	h.nodes[m] = struct{}{}
	n := len(h.nodes)
	h.mu.Unlock()
	metrics.HubNodes.Set(float64(n))
	h.logger.Info().Str("node", m.id).Str("addr", m.conn.RemoteAddr()).Int("nodes", n).Msg("node attached")
}

func (h *Hub) detach(m *member) {
	h.mu.Lock()
	delete(h.nodes, m)
	n := len(h.nodes)
	h.mu.Unlock()
	metrics.HubNodes.Set(float64(n))
}

// fanout delivers adv from one node to every other attached node.
func (h *Hub) fanout(from *member, adv *proto.AdvertiseFrame) {
	h.mu.Lock()
	targets := make([]*member, 0, len(h.nodes))
	for m := range h.nodes {
		if m != from {
			targets = append(targets, m)
		}
	}
	h.mu.Unlock()

	for _, to := range targets {
		raw, err := proto.BuildAdvertisement(adv.ManufacturerCode, adv.Data, h.rssi(from.id, to.id))
		if err != nil {
			h.logger.Error().Err(err).Str("node", from.id).Msg("hub: bad advertisement")
			return
		}
		f := &proto.Frame{Type: proto.FrameTypeScan, Scan: &proto.ScanFrame{Raw: raw, From: from.id}}
		if err := to.conn.SendFrame(f); err != nil {
			metrics.HubFanoutTotal.WithLabelValues("error").Inc()
			h.logger.Debug().Err(err).Str("node", to.id).Msg("hub: failed to deliver")
			continue
		}
		metrics.HubFanoutTotal.WithLabelValues("success").Inc()
	}
}

func (h *Hub) rssi(from, to string) int8 {
	if h.cfg.RSSI == nil {
		return transport.DefaultRSSI
	}
	return h.cfg.RSSI(from, to)
}

// repeatLoop re-broadcasts standing advertisements until ctx is done.
func (h *Hub) repeatLoop(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.RepeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		type standing struct {
			m   *member
			adv *proto.AdvertiseFrame
		}
		h.mu.Lock()
		var out []standing
		for m := range h.nodes {
			if m.adv != nil {
				out = append(out, standing{m, m.adv})
			}
		}
		h.mu.Unlock()
		for _, s := range out {
			h.fanout(s.m, s.adv)
		}
	}
}

func errorFrame(code, msg string) *proto.Frame {
	return &proto.Frame{Type: proto.FrameTypeError, Error: &proto.ErrorFrame{Code: code, Message: msg}}
}
