// Package checksum implements the line checksums used by the emulated
// instrument families: XOR-8, truncated mod-256 sum, and CRC-16/CCITT in
// the XMODEM variant (polynomial 0x1021, no reflection, no final XOR).
package checksum

import "errors"

// ErrInvalidLength is returned when a caller requires a non-empty payload.
var ErrInvalidLength = errors.New("checksum: empty payload")

// Xor8 returns the running XOR of b.
func Xor8(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return x
}

// SumMod256 returns the byte sum of b truncated to eight bits.
func SumMod256(b []byte) byte {
	var s byte
	for _, c := range b {
		s += c
	}
	return s
}

// Crc16CCITT computes CRC-16/CCITT (XMODEM) with the 0xFFFF initial value
// used by the present-weather family.
func Crc16CCITT(b []byte) uint16 {
	return Crc16CCITTSeed(0xFFFF, b)
}

// Crc16CCITTSeed computes CRC-16/CCITT over b starting from seed. One
// family seeds with 0x0000; everything else uses 0xFFFF.
func Crc16CCITTSeed(seed uint16, b []byte) uint16 {
	crc := seed
	for _, c := range b {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Crc16CCITTChecked is Crc16CCITT for callers whose wire format forbids an
// empty payload.
func Crc16CCITTChecked(b []byte) (uint16, error) {
	if len(b) == 0 {
		return 0, ErrInvalidLength
	}
	return Crc16CCITT(b), nil
}
