package program

import "math"

// Device instruction opcodes. The program is a flat sequence of
// instructions, mostly tag/length/value records; a few (end of list,
// encoder reset, sync pulses) are a bare tag byte with no length. Grounded
// on the
// teacher's radiod control-frame encoding (encodeInt32/encodeDouble/
// encodeByte/encodeString in radiod.go) — leading zero-suppressed
// big-endian integers, a length-prefixed byte string for band/path
// markers, and no record longer than 255 bytes of payload.
const (
	tagEOL             = 0x00
	tagSamplePoint     = 0x01 // frequency point, RF enabled
	tagSamplePointMute = 0x02 // frequency point, RF disabled (exclusion band)
	tagBandChange      = 0x03 // cross a band boundary
	tagPathBegin       = 0x04 // begin a (tx,rx) path block
	tagEncoderRead      = 0x10
	tagEncoderReset      = 0x11
	tagSerialCapture     = 0x12
	tagSyncPulseGenerate = 0x13
	tagSyncPulseReceive  = 0x14
	tagIfGain            = 0x15
	tagPad12dB           = 0x16
	tagSendSweepTimer    = 0x17
	tagResetFrameCounter = 0x18
	tagEnabledReceivers  = 0x19
	tagAttenuation       = 0x1a
	tagTddBlock          = 0x20
)

// appendTag writes a tag byte.
func appendTag(buf []byte, tag byte) []byte {
	return append(buf, tag)
}

// appendU32 writes a tag followed by a zero-suppressed big-endian uint32,
// matching the teacher's encodeInt32.
func appendU32(buf []byte, tag byte, value uint32) []byte {
	buf = append(buf, tag)
	if value == 0 {
		return append(buf, 0)
	}
	x := uint64(value)
	length := 8
	for length > 0 && (x>>56) == 0 {
		x <<= 8
		length--
	}
	buf = append(buf, byte(length))
	for i := 0; i < length; i++ {
		buf = append(buf, byte(x>>56))
		x <<= 8
	}
	return buf
}

// appendF64 writes a tag followed by a zero-suppressed IEEE-754 float64,
// matching the teacher's encodeDouble.
func appendF64(buf []byte, tag byte, value float64) []byte {
	buf = append(buf, tag)
	bits := math.Float64bits(value)
	if bits == 0 {
		return append(buf, 0)
	}
	length := 8
	for length > 0 && (bits>>56) == 0 {
		bits <<= 8
		length--
	}
	buf = append(buf, byte(length))
	for i := 0; i < length; i++ {
		buf = append(buf, byte(bits>>56))
		bits <<= 8
	}
	return buf
}

// appendByte writes a tag plus a single-byte value, matching encodeByte.
func appendByte(buf []byte, tag byte, value byte) []byte {
	return append(buf, tag, 1, value)
}

// appendBytes writes a tag, a length byte, and raw bytes (used for the TDD
// register block, which is forwarded verbatim per spec §9).
func appendBytes(buf []byte, tag byte, value []byte) []byte {
	buf = append(buf, tag, byte(len(value)))
	return append(buf, value...)
}
