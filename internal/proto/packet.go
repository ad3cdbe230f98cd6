package proto

import (
	"bytes"
	"unicode/utf8"

	"github.com/SWAI-Ltd/btbmesh/internal/checksum"
)

// Packet layout
const (
	PacketSize = 20
	TextOffset = 2
	TextSize   = PacketSize - TextOffset

	offPrivacy = 0
	offMinute  = 1
)

// Packet is the fixed-size application packet: privacy code, origin minute
// and zero-padded UTF-8 text.
type Packet [PacketSize]byte

// NewPacket stamps text with a privacy code and origin minute. Text longer
// than TextSize bytes is cut at the last whole rune that fits.
func NewPacket(privacy, minute uint8, text string) Packet {
	var p Packet
	p[offPrivacy] = privacy
	p[offMinute] = minute
	copy(p[TextOffset:], truncate(text, TextSize))
	return p
}

// PacketFromBytes copies the first PacketSize bytes of b; a shorter b is zero
// padded.
func PacketFromBytes(b []byte) Packet {
	var p Packet
	copy(p[:], b)
	return p
}

func (p Packet) Privacy() uint8 { return p[offPrivacy] }
func (p Packet) Minute() uint8  { return p[offMinute] }

// Text returns the payload with the zero padding stripped.
func (p Packet) Text() string {
	body := p[TextOffset:]
	if i := bytes.IndexByte(body, 0); i >= 0 {
		body = body[:i]
	}
	return string(body)
}

// Checksum is the CRC-8 fingerprint used for duplicate suppression.
func (p Packet) Checksum() uint8 {
	return checksum.CRC8(p[:])
}

// Received is a packet parsed from an inbound advertisement together with the
// receive-side metadata that never travels on the wire.
type Received struct {
	Packet   Packet
	RSSI     int8
	Checksum uint8
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
