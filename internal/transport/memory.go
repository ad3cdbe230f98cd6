package transport

import (
	"context"
	"sync"

	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

// DefaultRSSI is the signal strength between Air members in range of each
// other unless SetRSSI says otherwise.
const DefaultRSSI int8 = -50

type link struct{ from, to string }

// Air is an in-process broadcast medium. Every advertisement sent by one
// member is heard once by every other member in range.
type Air struct {
	mu      sync.RWMutex
	members map[string]*Memory
	rssi    map[link]int8
	cut     map[link]bool
}

// NewAir creates an empty medium where every member hears every other.
func NewAir() *Air {
	return &Air{
		members: make(map[string]*Memory),
		rssi:    make(map[link]int8),
		cut:     make(map[link]bool),
	}
}

// Join attaches a new member. depth is the capacity of its receive buffer.
func (a *Air) Join(id string, depth int) *Memory {
	if depth <= 0 {
		depth = 1024
	}
	m := &Memory{
		id:       id,
		air:      a,
		incoming: make(chan []byte, depth),
	}
	a.mu.Lock()
	a.members[id] = m
	a.mu.Unlock()
	return m
}

// SetRSSI sets the strength at which from and to hear each other.
func (a *Air) SetRSSI(from, to string, rssi int8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rssi[link{from, to}] = rssi
	a.rssi[link{to, from}] = rssi
}

// Cut puts two members out of range of each other.
func (a *Air) Cut(x, y string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cut[link{x, y}] = true
	a.cut[link{y, x}] = true
}

func (a *Air) broadcast(from string, mfgCode uint16, data []byte) error {
	a.mu.RLock()
	type target struct {
		m    *Memory
		rssi int8
	}
	targets := make([]target, 0, len(a.members))
	for id, m := range a.members {
		l := link{from, id}
		if id == from || a.cut[l] {
			continue
		}
		rssi, ok := a.rssi[l]
		if !ok {
			rssi = DefaultRSSI
		}
		targets = append(targets, target{m, rssi})
	}
	a.mu.RUnlock()

	for _, t := range targets {
		raw, err := proto.BuildAdvertisement(mfgCode, data, t.rssi)
		if err != nil {
			return err
		}
		t.m.deliver(raw)
	}
	return nil
}

func (a *Air) leave(id string) {
	a.mu.Lock()
	delete(a.members, id)
	a.mu.Unlock()
}

// Memory is one member's view of an Air.
type Memory struct {
	id       string
	air      *Air
	incoming chan []byte

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (m *Memory) ID() string { return m.id }

func (m *Memory) Send(ctx context.Context, mfgCode uint16, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.sent = append(m.sent, append([]byte(nil), data...))
	m.mu.Unlock()
	return m.air.broadcast(m.id, mfgCode, data)
}

func (m *Memory) Receive() <-chan []byte { return m.incoming }

// Inject delivers a raw buffer to this member as if it had been heard.
func (m *Memory) Inject(raw []byte) { m.deliver(raw) }

func (m *Memory) deliver(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.incoming <- raw:
	default:
	}
}

// Sent returns copies of every payload passed to Send.
func (m *Memory) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.incoming)
	m.mu.Unlock()
	m.air.leave(m.id)
	return nil
}
