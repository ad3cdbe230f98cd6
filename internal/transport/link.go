package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

// Link attaches a node to a broadcast hub. Advertisements sent through it are
// fanned out by the hub; advertisements from other nodes arrive on Receive.
type Link struct {
	conn     *Conn
	incoming chan []byte
	logger   zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// DialLink connects to the hub at addr and introduces the node as nodeID.
// depth is the capacity of the receive buffer.
func DialLink(ctx context.Context, addr, nodeID string, depth int, logger zerolog.Logger) (*Link, error) {
	if depth <= 0 {
		depth = 1024
	}
	conn, err := DialHub(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial hub %s: %w", addr, err)
	}
	hello := &proto.Frame{Type: proto.FrameTypeHello, Hello: &proto.HelloFrame{NodeID: nodeID}}
	if err := conn.SendFrame(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}
	l := &Link{
		conn:     conn,
		incoming: make(chan []byte, depth),
		logger:   logger.With().Str("hub", addr).Logger(),
		done:     make(chan struct{}),
	}
	go l.recvLoop()
	return l, nil
}

func (l *Link) recvLoop() {
	defer close(l.done)
	defer close(l.incoming)
	var f proto.Frame
	for {
		if err := l.conn.RecvFrame(&f); err != nil {
			l.logger.Debug().Err(err).Msg("hub link: recv ended")
			return
		}
		switch f.Type {
		case proto.FrameTypeScan:
			if f.Validate() != nil {
				continue
			}
			select {
			case l.incoming <- f.Scan.Raw:
			default:
				l.logger.Debug().Msg("hub link: receive buffer full, dropping advertisement")
			}
		case proto.FrameTypeError:
			if f.Error != nil {
				l.logger.Warn().Str("code", f.Error.Code).Msg(f.Error.Message)
			}
		}
	}
}

func (l *Link) Send(ctx context.Context, mfgCode uint16, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.isClosed() {
		return ErrClosed
	}
	return l.conn.SendFrame(&proto.Frame{
		Type:      proto.FrameTypeAdvertise,
		Advertise: &proto.AdvertiseFrame{ManufacturerCode: mfgCode, Data: data},
	})
}

// Stop withdraws the node's current advertisement from the hub.
func (l *Link) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.isClosed() {
		return ErrClosed
	}
	return l.conn.SendFrame(&proto.Frame{Type: proto.FrameTypeStop})
}

func (l *Link) Receive() <-chan []byte { return l.incoming }

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	_ = l.conn.SendFrame(&proto.Frame{Type: proto.FrameTypeStop})
	err := l.conn.Close()
	<-l.done
	return err
}
