// Package client provides the btbmesh developer SDK: attach to a medium, send
// text and read what the mesh delivers from a channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SWAI-Ltd/btbmesh/internal/config"
	"github.com/SWAI-Ltd/btbmesh/internal/discovery"
	"github.com/SWAI-Ltd/btbmesh/internal/engine"
	"github.com/SWAI-Ltd/btbmesh/internal/transport"
)

const (
	// DefaultMessageBuffer is the buffer size for the Messages() channel.
	DefaultMessageBuffer = 64
)

var (
	// ErrClosed is returned when using a client after Close.
	ErrClosed = errors.New("client closed")
	// ErrQueueFull is returned by Send when the input queue is full.
	ErrQueueFull = errors.New("input queue full")
	// ErrNoHub is returned by New when no hub address is configured and
	// discovery is disabled or finds nothing.
	ErrNoHub = errors.New("no hub address")
)

// Message is a line shown by the node: a received packet, the echo of a sent
// one, or command output.
type Message struct {
	Text string
	// Color is the display hint: brighter for stronger signals, engine.ColorLocal
	// for our own text and engine.ColorSystem for command output.
	Color uint8
}

// Config configures the client.
type Config struct {
	// Node holds the node settings; start from config.DefaultConfig or config.Load.
	Node config.Config
	// Transport overrides the hub connection, e.g. with a transport.Air member.
	// The client closes it on Close.
	Transport transport.Transport
	// MessageBuffer sets the capacity of Messages(); 0 uses DefaultMessageBuffer.
	MessageBuffer int
	Logger        zerolog.Logger
}

// Client is a running node. Use Send and read from Messages().
type Client struct {
	engine    *engine.Engine
	transport transport.Transport
	msgs      chan Message
	cancel    context.CancelFunc
	done      chan struct{}
	runErr    error
	logger    zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// New starts a node. Without Config.Transport it connects to Node.HubAddr, or
// looks for a hub over mDNS when the address is empty. The node runs until ctx
// is cancelled, /quit is sent, or Close is called.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := config.Validate(&cfg.Node); err != nil {
		return nil, err
	}
	buf := cfg.MessageBuffer
	if buf <= 0 {
		buf = DefaultMessageBuffer
	}

	tr := cfg.Transport
	if tr == nil {
		link, err := dialHub(ctx, cfg.Node, cfg.Logger)
		if err != nil {
			return nil, err
		}
		tr = link
	}

	c := &Client{
		transport: tr,
		msgs:      make(chan Message, buf),
		done:      make(chan struct{}),
		logger:    cfg.Logger,
	}
	n := cfg.Node
	eng, err := engine.New(engine.Config{
		Transport:     tr,
		Display:       engine.DisplayFunc(c.deliver),
		Settings:      engine.NewSettings(n.PrivacyCode(), n.ManufacturerCode(), n.MeshMode, n.DebugMode),
		TickInterval:  n.TickInterval,
		LocalDelay:    n.LocalDelay,
		RelayDelay:    n.RelayDelay,
		BackoffDelay:  n.BackoffDelay,
		Jitter:        n.Jitter,
		QueueDepth:    n.QueueDepth,
		MaxCandidates: n.MaxCandidates,
		MaxDraws:      n.MaxDraws,
		Logger:        cfg.Logger.With().Str("node", n.NodeID).Logger(),
	})
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	c.engine = eng

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		defer close(c.done)
		c.runErr = eng.Run(runCtx)
	}()
	return c, nil
}

func dialHub(ctx context.Context, n config.Config, logger zerolog.Logger) (*transport.Link, error) {
	addr := n.HubAddr
	if addr == "" && !n.DisableDiscovery {
		dctx, cancel := context.WithTimeout(ctx, n.DiscoveryTimeout)
		hub, err := discovery.FindHub(dctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoHub, err)
		}
		logger.Info().Str("hub", hub.Name).Str("addr", hub.Addr).Msg("hub discovered")
		addr = hub.Addr
	}
	if addr == "" {
		return nil, ErrNoHub
	}
	return transport.DialLink(ctx, addr, n.NodeID, n.QueueDepth, logger)
}

func (c *Client) deliver(text string, color uint8) {
	select {
	case c.msgs <- Message{Text: text, Color: color}:
	default:
		c.logger.Debug().Str("text", text).Msg("client: message buffer full, dropping")
	}
}

// Send queues a line of text, or a command such as "/pc secret".
func (c *Client) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.engine.Submit(text) {
		return ErrQueueFull
	}
	return nil
}

// Messages returns the channel of shown messages. It is closed by Close.
func (c *Client) Messages() <-chan Message {
	return c.msgs
}

// Settings returns the node's live settings.
func (c *Client) Settings() *engine.Settings {
	return c.engine.Settings()
}

// Stats returns a snapshot of the node's outbound queues.
func (c *Client) Stats() engine.Stats {
	return c.engine.Stats()
}

// Done is closed when the node stops running.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops the node, closes the transport and the Messages() channel.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	err := c.transport.Close()
	close(c.msgs)
	if c.runErr != nil {
		return c.runErr
	}
	return err
}
