package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacket_RoundTripText(t *testing.T) {
	p := NewPacket(0x43, 17, "hi")
	assert.Equal(t, "hi", p.Text())
	assert.Equal(t, uint8(0x43), p.Privacy())
	assert.Equal(t, uint8(17), p.Minute())
	for i := TextOffset + 2; i < PacketSize; i++ {
		assert.Zero(t, p[i], "byte %d should be padding", i)
	}
}

func TestPacket_TruncatesAtRuneBoundary(t *testing.T) {
	p := NewPacket(0, 0, "0123456789abcdefgé") // 17 ASCII + 2-byte rune = 19 bytes
	assert.Equal(t, "0123456789abcdefg", p.Text())

	p = NewPacket(0, 0, "0123456789abcdefghijkl")
	assert.Equal(t, "0123456789abcdefgh", p.Text())
	assert.Len(t, p.Text(), TextSize)
}

func TestPacket_ChecksumCoversWholePacket(t *testing.T) {
	a := NewPacket(1, 2, "same")
	b := NewPacket(1, 3, "same")
	assert.NotEqual(t, a.Checksum(), b.Checksum())
	assert.Equal(t, a.Checksum(), NewPacket(1, 2, "same").Checksum())
}

func TestAdvertisement_RoundTrip(t *testing.T) {
	p := NewPacket(0x42, 5, "hello mesh")
	raw, err := BuildAdvertisement(DefaultManufacturerCode, ManufacturerData(p), -60)
	require.NoError(t, err)
	require.Len(t, raw, AdvertSize)

	// 02011A1BFF2211BEAC ...
	assert.Equal(t, []byte{0x02, 0x01, 0x1A, 0x1B, 0xFF, 0x22, 0x11, 0xBE, 0xAC}, raw[:offPayload])

	rx, err := ParseAdvertisement(raw, DefaultManufacturerCode)
	require.NoError(t, err)
	assert.Equal(t, p, rx.Packet)
	assert.Equal(t, int8(-60), rx.RSSI)
	assert.Equal(t, p.Checksum(), rx.Checksum)
	assert.Equal(t, "hello mesh", rx.Packet.Text())
}

func TestParseAdvertisement_Rejections(t *testing.T) {
	good, err := BuildAdvertisement(DefaultManufacturerCode, ManufacturerData(NewPacket(0, 0, "x")), -40)
	require.NoError(t, err)

	mutate := func(i int, v byte) []byte {
		b := append([]byte(nil), good...)
		b[i] = v
		return b
	}

	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"short", good[:AdvertSize-1], ErrShort},
		{"header", mutate(offHeader, 0x1C), ErrNotAdvertisement},
		{"manufacturer", mutate(offMfg, 0x23), ErrForeignManufacturer},
		{"beacon", mutate(offBeacon+1, 0xAD), ErrNotBeacon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAdvertisement(tt.raw, DefaultManufacturerCode)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrForeign)
		})
	}
}

func TestParseAdvertisement_HeaderCheckedFirst(t *testing.T) {
	// Wrong header and wrong everything else: the header error wins.
	raw := make([]byte, AdvertSize)
	_, err := ParseAdvertisement(raw, DefaultManufacturerCode)
	assert.ErrorIs(t, err, ErrNotAdvertisement)
}

func TestBuildAdvertisement_RejectsWrongSize(t *testing.T) {
	_, err := BuildAdvertisement(DefaultManufacturerCode, []byte{0xBE, 0xAC}, 0)
	assert.Error(t, err)
}

func TestParseManufacturerCode(t *testing.T) {
	got, err := ParseManufacturerCode("0x1122")
	require.NoError(t, err)
	assert.Equal(t, DefaultManufacturerCode, got)

	for _, bad := range []string{"", "0x", "12345", "zz"} {
		_, err := ParseManufacturerCode(bad)
		assert.ErrorIs(t, err, ErrInvalidManufacturerCode, bad)
	}
}
