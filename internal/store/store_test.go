package store

import (
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

func newTestStore(seed int64) *Store {
	return New(Config{Rand: rand.New(rand.NewSource(seed)), Logger: zerolog.Nop()})
}

func received(minute uint8, text string, rssi int8) proto.Received {
	p := proto.NewPacket(0x42, minute, text)
	return proto.Received{Packet: p, RSSI: rssi, Checksum: p.Checksum()}
}

func sumPriorities(s *Store) uint64 {
	var sum uint64
	for _, c := range s.Candidates() {
		sum += uint64(c.Priority)
	}
	return sum
}

func TestPriority(t *testing.T) {
	assert.Equal(t, uint32(205), Priority(-50))
	assert.Equal(t, uint32(127), Priority(-128))
	assert.Equal(t, uint32(255), Priority(0))
	assert.Greater(t, Priority(-30), Priority(-90), "stronger signal weighs more")
}

func TestSelect_Empty(t *testing.T) {
	s := newTestStore(1)
	_, ok := s.Select(0)
	assert.False(t, ok)
}

func TestSelect_LocalFIFOOrder(t *testing.T) {
	s := newTestStore(1)
	for _, txt := range []string{"one", "two", "three"} {
		s.PushLocal(proto.NewPacket(0, 10, txt), 3*time.Second)
	}
	for _, want := range []string{"one", "two", "three"} {
		out, ok := s.Select(10)
		require.True(t, ok)
		assert.Equal(t, want, out.Packet.Text())
		assert.Equal(t, OriginLocal, out.Origin)
		assert.Equal(t, 3*time.Second, out.Delay)
	}
	assert.Zero(t, s.LocalLen())
}

func TestSelect_LocalBeforeRelay(t *testing.T) {
	s := newTestStore(2)
	for i := 0; i < 10; i++ {
		s.AddCandidate(received(10, "relay", -20), time.Second)
	}
	s.PushLocal(proto.NewPacket(0, 9, "stale"), time.Second) // stale at minute 11
	s.PushLocal(proto.NewPacket(0, 10, "mine"), time.Second)

	out, ok := s.Select(11)
	require.True(t, ok)
	assert.Equal(t, "mine", out.Packet.Text())
	assert.Equal(t, OriginLocal, out.Origin)
	assert.Equal(t, 10, s.PoolLen())

	out, ok = s.Select(11)
	require.True(t, ok)
	assert.Equal(t, OriginRelay, out.Origin)
}

func TestSelect_AllLocalExpiredFallsThroughToRelay(t *testing.T) {
	s := newTestStore(3)
	s.PushLocal(proto.NewPacket(0, 1, "old"), time.Second)
	s.AddCandidate(received(30, "fresh", -40), time.Second)

	out, ok := s.Select(30)
	require.True(t, ok)
	assert.Equal(t, "fresh", out.Packet.Text())
	assert.Zero(t, s.LocalLen())
}

func TestSelect_RemovesPickAndDecrementsTotal(t *testing.T) {
	s := newTestStore(4)
	s.AddCandidate(received(5, "a", -50), time.Second)
	s.AddCandidate(received(5, "b", -10), time.Second)
	require.Equal(t, uint64(205+245), s.Total())

	out, ok := s.Select(5)
	require.True(t, ok)
	assert.Equal(t, uint64(205+245)-uint64(out.Priority), s.Total())
	assert.Equal(t, 1, s.PoolLen())
	assert.Equal(t, sumPriorities(s), s.Total())
}

func TestSelect_PrunesExpiredCandidates(t *testing.T) {
	s := newTestStore(5)
	for i := 0; i < 3; i++ {
		s.AddCandidate(received(1, "stale", -30), time.Second)
	}
	_, ok := s.Select(40)
	assert.False(t, ok)
	assert.Zero(t, s.PoolLen())
	assert.Zero(t, s.Total())
}

func TestSelect_BoundedDraws(t *testing.T) {
	s := New(Config{MaxDraws: 2, Rand: rand.New(rand.NewSource(6)), Logger: zerolog.Nop()})
	for i := 0; i < 5; i++ {
		s.AddCandidate(received(1, "stale", -30), time.Second)
	}
	_, ok := s.Select(40)
	assert.False(t, ok)
	assert.Equal(t, 3, s.PoolLen(), "only MaxDraws candidates examined per call")
	assert.Equal(t, sumPriorities(s), s.Total())
}

func TestAddCandidate_EvictsWeakestWhenFull(t *testing.T) {
	s := New(Config{MaxCandidates: 2, Rand: rand.New(rand.NewSource(7)), Logger: zerolog.Nop()})
	s.AddCandidate(received(0, "weak", -100), time.Second)
	s.AddCandidate(received(0, "strong", -10), time.Second)
	s.AddCandidate(received(0, "mid", -50), time.Second)

	texts := []string{}
	for _, c := range s.Candidates() {
		texts = append(texts, c.Packet.Text())
	}
	assert.ElementsMatch(t, []string{"strong", "mid"}, texts)
	assert.Equal(t, uint64(245+205), s.Total())
}

func TestSelect_Fairness(t *testing.T) {
	const draws = 20000
	s := newTestStore(8)
	w1, w2 := Priority(-105), Priority(-5) // 150 and 250
	hits := 0
	for i := 0; i < draws; i++ {
		s.AddCandidate(received(0, "near", -5), 0)
		s.AddCandidate(received(0, "far", -105), 0)
		out, ok := s.Select(0)
		require.True(t, ok)
		if out.Packet.Text() == "far" {
			hits++
		}
		s.Reset()
	}
	want := float64(w1) / float64(w1+w2)
	got := float64(hits) / draws
	assert.InDelta(t, want, got, 0.02)
}

func TestReset(t *testing.T) {
	s := newTestStore(9)
	s.PushLocal(proto.NewPacket(0, 0, "x"), 0)
	s.AddCandidate(received(0, "y", 0), 0)
	s.Reset()
	assert.Zero(t, s.LocalLen())
	assert.Zero(t, s.PoolLen())
	assert.Zero(t, s.Total())
}

func TestDropCandidates_KeepsLocal(t *testing.T) {
	s := newTestStore(10)
	s.PushLocal(proto.NewPacket(0, 0, "x"), 0)
	s.AddCandidate(received(0, "y", -20), 0)
	s.DropCandidates()
	assert.Equal(t, 1, s.LocalLen())
	assert.Zero(t, s.PoolLen())
	assert.Zero(t, s.Total())
}

func TestWeightInvariantProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// Ops below 256 insert a candidate with RSSI op-128; the rest select at
	// minute op mod 60.
	properties.Property("total equals the sum of candidate weights", prop.ForAll(
		func(ops []int, seed int64) bool {
			s := New(Config{MaxCandidates: 16, Rand: rand.New(rand.NewSource(seed)), Logger: zerolog.Nop()})
			for _, op := range ops {
				if op < 256 {
					s.AddCandidate(received(uint8(op%60), "p", int8(op-128)), 0)
				} else {
					s.Select(uint8(op % 60))
				}
				if s.Total() != sumPriorities(s) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 400)),
		gen.Int64(),
	))

	properties.Property("select never returns relay while a fresh local is queued", prop.ForAll(
		func(stale int, rssis []int8) bool {
			s := New(Config{Rand: rand.New(rand.NewSource(1)), Logger: zerolog.Nop()})
			for _, r := range rssis {
				s.AddCandidate(received(20, "relay", r), 0)
			}
			for i := 0; i < stale; i++ {
				s.PushLocal(proto.NewPacket(0, 5, "stale"), 0)
			}
			s.PushLocal(proto.NewPacket(0, 20, "fresh"), 0)
			out, ok := s.Select(20)
			return ok && out.Origin == OriginLocal && out.Packet.Text() == "fresh"
		},
		gen.IntRange(0, 5),
		gen.SliceOf(gen.Int8()),
	))

	properties.TestingRun(t)
}
