// Package checksum provides the table-driven CRCs used to fingerprint packets
// and to derive the shared privacy code.
package checksum

import "hash/crc32"

// maximPoly is the reflected Maxim/1-Wire polynomial x^8+x^5+x^4+1.
const maximPoly = 0x8C

var crc8Table = makeCRC8Table(maximPoly)

func makeCRC8Table(poly uint8) *[256]uint8 {
	t := new([256]uint8)
	for i := range t {
		crc := uint8(i)
		for j := 0; j < 8; j++ {
			if crc&1 == 1 {
				crc = crc>>1 ^ poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}

// CRC8 returns the Maxim/1-Wire CRC-8 of data (init 0, no final xor).
func CRC8(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}

// CRC8Range returns the CRC-8 of data[0..last], last inclusive.
// The caller must pass last < len(data).
func CRC8Range(data []byte, last int) uint8 {
	return CRC8(data[:last+1])
}

// CRC32 returns the IEEE CRC-32 of data with a zero initial value and no final
// inversion. This is not the value hash/crc32.ChecksumIEEE reports.
func CRC32(data []byte) uint32 {
	// crc32.Update inverts on entry and exit; pre- and post-inverting cancels both.
	return ^crc32.Update(^uint32(0), crc32.IEEETable, data)
}

// CRC32Range returns the CRC-32 of data[0..last], last inclusive.
func CRC32Range(data []byte, last int) uint32 {
	return CRC32(data[:last+1])
}

// PrivacyCode derives the one-byte privacy code shared by a chat group.
// An empty passphrase yields the open code 0.
func PrivacyCode(passphrase string) uint8 {
	if passphrase == "" {
		return 0
	}
	return CRC8([]byte(passphrase))
}
