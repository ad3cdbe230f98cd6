package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Advertisement constants
const (
	AdvertHeader = 0x1BFF // length 0x1B, AD type 0xFF (manufacturer specific)
	BeaconMarker = 0xBEAC

	// DefaultManufacturerCode distinguishes this protocol's traffic.
	DefaultManufacturerCode uint16 = 0x1122

	offHeader  = 3
	offMfg     = 5
	offBeacon  = 7
	offPayload = 9
	offRSSI    = offPayload + PacketSize

	// AdvertSize is the length of a raw advertisement buffer.
	AdvertSize = offRSSI + 1

	// ManufacturerDataSize is the outbound payload: beacon marker + packet.
	ManufacturerDataSize = 2 + PacketSize
)

// Parse errors. All of them mean the buffer is someone else's traffic.
var (
	ErrForeign             = errors.New("foreign advertisement")
	ErrShort               = fmt.Errorf("%w: buffer too short", ErrForeign)
	ErrNotAdvertisement    = fmt.Errorf("%w: not a manufacturer advertisement", ErrForeign)
	ErrForeignManufacturer = fmt.Errorf("%w: wrong manufacturer code", ErrForeign)
	ErrNotBeacon           = fmt.Errorf("%w: not a beacon", ErrForeign)
)

// preamble is flags AD (len 2, type 0x01, LE general discoverable | BR/EDR not supported).
var preamble = [3]byte{0x02, 0x01, 0x1A}

// ParseAdvertisement validates a raw advertisement buffer and extracts the
// packet it carries. Checks stop at the first mismatch.
func ParseAdvertisement(raw []byte, mfgCode uint16) (Received, error) {
	if len(raw) < AdvertSize {
		return Received{}, ErrShort
	}
	if binary.BigEndian.Uint16(raw[offHeader:]) != AdvertHeader {
		return Received{}, ErrNotAdvertisement
	}
	if binary.LittleEndian.Uint16(raw[offMfg:]) != mfgCode {
		return Received{}, ErrForeignManufacturer
	}
	if binary.BigEndian.Uint16(raw[offBeacon:]) != BeaconMarker {
		return Received{}, ErrNotBeacon
	}
	p := PacketFromBytes(raw[offPayload:offRSSI])
	return Received{
		Packet:   p,
		RSSI:     int8(raw[offRSSI]),
		Checksum: p.Checksum(),
	}, nil
}

// ManufacturerData builds the vendor-specific payload handed to the transport.
func ManufacturerData(p Packet) []byte {
	out := make([]byte, ManufacturerDataSize)
	binary.BigEndian.PutUint16(out, BeaconMarker)
	copy(out[2:], p[:])
	return out
}

// BuildAdvertisement wraps manufacturer data into the raw buffer layout a
// scanner reports, with rssi in the trailing byte.
func BuildAdvertisement(mfgCode uint16, mfgData []byte, rssi int8) ([]byte, error) {
	if len(mfgData) != ManufacturerDataSize {
		return nil, fmt.Errorf("manufacturer data: got %d bytes, want %d", len(mfgData), ManufacturerDataSize)
	}
	raw := make([]byte, AdvertSize)
	copy(raw, preamble[:])
	binary.BigEndian.PutUint16(raw[offHeader:], AdvertHeader)
	binary.LittleEndian.PutUint16(raw[offMfg:], mfgCode)
	copy(raw[offBeacon:], mfgData)
	raw[offRSSI] = byte(rssi)
	return raw, nil
}

// ErrInvalidManufacturerCode is returned for codes that are not 1-4 hex digits.
var ErrInvalidManufacturerCode = errors.New("manufacturer code must be 1-4 hex digits")

// ParseManufacturerCode parses up to four hex digits, with or without 0x.
func ParseManufacturerCode(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if s == "" || len(s) > 4 {
		return 0, ErrInvalidManufacturerCode
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, ErrInvalidManufacturerCode
	}
	return uint16(v), nil
}
