// Package store holds packets waiting to be transmitted: a FIFO of locally
// authored packets and a weighted pool of relay candidates heard from peers.
package store

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWAI-Ltd/btbmesh/internal/clock"
	"github.com/SWAI-Ltd/btbmesh/internal/metrics"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

const (
	DefaultMaxCandidates = 512
	DefaultMaxDraws      = 8

	// priorityBase offsets the signed RSSI so nearer stations weigh more.
	priorityBase = 255
)

// Origin says which queue an Outbound came from.
type Origin uint8

const (
	OriginLocal Origin = iota
	OriginRelay
)

func (o Origin) String() string {
	if o == OriginRelay {
		return "relay"
	}
	return "local"
}

// Outbound is a packet ready for transmission. Delay is how long the
// scheduler waits before its next pick once this packet is on air.
// Priority is zero for local packets.
type Outbound struct {
	Packet   proto.Packet
	Delay    time.Duration
	Priority uint32
	Origin   Origin
}

// Priority derives the selection weight of a relay candidate from its RSSI.
func Priority(rssi int8) uint32 {
	return uint32(priorityBase + int(rssi))
}

// Config tunes a Store.
type Config struct {
	MaxCandidates int        // relay pool bound; defaults to DefaultMaxCandidates
	MaxDraws      int        // weighted draws per Select; defaults to DefaultMaxDraws
	Rand          *rand.Rand // defaults to a time-seeded source
	Logger        zerolog.Logger
}

// Store is safe for concurrent use. The weight total always equals the sum of
// the priorities of the candidates in the pool.
type Store struct {
	mu     sync.Mutex
	local  []Outbound
	pool   []Outbound
	total  uint64
	rnd    *rand.Rand
	cfg    Config
	logger zerolog.Logger
}

// New creates an empty Store.
func New(cfg Config) *Store {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.MaxDraws <= 0 {
		cfg.MaxDraws = DefaultMaxDraws
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Store{
		rnd:    rnd,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// PushLocal appends a locally authored packet to the FIFO.
func (s *Store) PushLocal(p proto.Packet, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = append(s.local, Outbound{Packet: p, Delay: delay, Origin: OriginLocal})
	metrics.LocalQueueSize.Set(float64(len(s.local)))
}

// AddCandidate inserts a received packet into the relay pool. When the pool
// is full the weakest candidate is evicted first.
func (s *Store) AddCandidate(rx proto.Received, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pool) >= s.cfg.MaxCandidates {
		s.evictWeakest()
	}
	c := Outbound{Packet: rx.Packet, Delay: delay, Priority: Priority(rx.RSSI), Origin: OriginRelay}
	s.pool = append(s.pool, c)
	s.total += uint64(c.Priority)
	s.updatePoolGauges()
}

// Select picks the next packet to transmit at minute now. Local packets are
// always served first, in order; stale ones are dropped on the way. Otherwise
// a relay candidate is drawn with probability proportional to its priority.
// Stale candidates are pruned when drawn, and after MaxDraws draws without a
// fresh pick Select gives up for this call.
func (s *Store) Select(now uint8) (Outbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.local) > 0 {
		out := s.local[0]
		s.local[0] = Outbound{}
		s.local = s.local[1:]
		metrics.LocalQueueSize.Set(float64(len(s.local)))
		if clock.Fresh(out.Packet.Minute(), now) {
			return out, true
		}
		metrics.OutboundDiscardedTotal.WithLabelValues(OriginLocal.String(), metrics.ReasonExpired).Inc()
		s.logger.Debug().Str("text", out.Packet.Text()).Msg("skipping expired local packet")
	}

	for draw := 0; draw < s.cfg.MaxDraws && len(s.pool) > 0; draw++ {
		i := s.pick()
		out := s.removeAt(i)
		if clock.Fresh(out.Packet.Minute(), now) {
			return out, true
		}
		metrics.OutboundDiscardedTotal.WithLabelValues(OriginRelay.String(), metrics.ReasonExpired).Inc()
		s.logger.Debug().Uint8("minute", out.Packet.Minute()).Msg("skipping expired relay packet")
	}
	return Outbound{}, false
}

// pick draws d uniformly from [1,total] and returns the index of the first
// candidate whose running weight reaches d.
func (s *Store) pick() int {
	d := uint64(s.rnd.Int63n(int64(s.total))) + 1
	var sum uint64
	for i := range s.pool {
		sum += uint64(s.pool[i].Priority)
		if sum >= d {
			return i
		}
	}
	// unreachable while total matches the pool
	return len(s.pool) - 1
}

func (s *Store) removeAt(i int) Outbound {
	out := s.pool[i]
	last := len(s.pool) - 1
	copy(s.pool[i:], s.pool[i+1:])
	s.pool[last] = Outbound{}
	s.pool = s.pool[:last]
	s.total -= uint64(out.Priority)
	s.updatePoolGauges()
	return out
}

func (s *Store) evictWeakest() {
	weakest := 0
	for i := range s.pool {
		if s.pool[i].Priority < s.pool[weakest].Priority {
			weakest = i
		}
	}
	s.removeAt(weakest)
	metrics.OutboundDiscardedTotal.WithLabelValues(OriginRelay.String(), metrics.ReasonEvicted).Inc()
}

func (s *Store) updatePoolGauges() {
	metrics.RelayPoolSize.Set(float64(len(s.pool)))
	metrics.RelayPoolWeight.Set(float64(s.total))
}

// LocalLen returns the number of queued local packets.
func (s *Store) LocalLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.local)
}

// PoolLen returns the number of relay candidates.
func (s *Store) PoolLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Total returns the running weight total of the relay pool.
func (s *Store) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Candidates returns a copy of the relay pool.
func (s *Store) Candidates() []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outbound(nil), s.pool...)
}

// Reset empties both queues.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = nil
	s.pool = nil
	s.total = 0
	metrics.LocalQueueSize.Set(0)
	s.updatePoolGauges()
}

// DropCandidates empties the relay pool and leaves local packets queued.
func (s *Store) DropCandidates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = nil
	s.total = 0
	s.updatePoolGauges()
}
