// Package transport implements the UDP wire protocol described in spec §6:
// fixed-header command/reply frames with a trailing checksum, and the
// streaming sweep frame emitted once a Task is running asynchronously.
//
// The checksum and header layout are grounded on the teacher's radiod
// control protocol (radiod.go / radiod_status.go in the retrieval pack):
// a small fixed header is read byte-by-byte with explicit bounds checks,
// and a hash over the payload (there, FNV-1; here, the same FNV-1 pass)
// guards against truncated or corrupted datagrams.
package transport

import (
	"encoding/binary"
	"fmt"
)

// PacketType is the single leading byte on every UDP datagram that lets the
// receive loop dispatch device->host traffic without parsing the rest of
// the packet first — the same discriminator role the teacher's pktTypeStatus
// / pktTypeCmd constants play in radiod_status.go.
type PacketType byte

const (
	PacketTypeCommand PacketType = iota
	PacketTypeReply
	PacketTypeSweep
)

// Opcode identifies the kind of command frame sent host->device.
type Opcode byte

const (
	OpPing Opcode = iota
	OpCapabilitiesQuery
	OpPromRead
	OpProgramChunk
	OpProgramCommit
	OpStart
	OpStop
	OpTrigger
	OpBeginAsync
	OpHaltAsync
	OpBroadcastBegin
	OpLowPowerState
)

// Status is the one-byte status code a reply frame carries.
type Status byte

const (
	StatusOK Status = iota
	StatusError
)

const (
	cmdHeaderLen    = 1 + 2 + 4 // opcode, length, sequence
	cmdChecksumLen  = 4
	replyHeaderLen  = 4 + 1 // sequence, status
	sweepHeaderLen  = 4 + 2 + 2 + 4 + 8
)

// ParsePacketType reads the leading discriminator byte off a raw datagram
// and returns the remaining bytes, mirroring the teacher's "check buf[0],
// then parse the rest" receive-loop shape.
func ParsePacketType(data []byte) (PacketType, []byte, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("transport: empty datagram")
	}
	return PacketType(data[0]), data[1:], nil
}

// fnv1 matches the FNV-1 hash used as a cheap frame checksum, the same
// construction the teacher uses for make_maddr()/fnv1hash() in radiod.go.
func fnv1(data []byte) uint32 {
	hash := uint32(0x811c9dc5)
	for _, b := range data {
		hash *= 0x01000193
		hash ^= uint32(b)
	}
	return hash
}

// CommandFrame is a host->device request: opcode + sequence + payload,
// trailed by a checksum over everything preceding it.
type CommandFrame struct {
	Opcode   Opcode
	Sequence uint32
	Payload  []byte
}

// Encode serializes the frame to wire bytes, including the leading
// PacketTypeCommand discriminator byte.
func (f *CommandFrame) Encode() []byte {
	total := 1 + cmdHeaderLen + len(f.Payload) + cmdChecksumLen
	buf := make([]byte, total)
	buf[0] = byte(PacketTypeCommand)
	rest := buf[1:]
	rest[0] = byte(f.Opcode)
	binary.BigEndian.PutUint16(rest[1:3], uint16(len(f.Payload)))
	binary.BigEndian.PutUint32(rest[3:7], f.Sequence)
	copy(rest[cmdHeaderLen:], f.Payload)
	sum := fnv1(rest[:cmdHeaderLen+len(f.Payload)])
	binary.BigEndian.PutUint32(rest[cmdHeaderLen+len(f.Payload):], sum)
	return buf
}

// ReplyFrame is a device->host response matching a request's sequence.
type ReplyFrame struct {
	Sequence uint32
	Status   Status
	Payload  []byte
}

// DecodeReplyFrame parses a reply frame, validating length and checksum.
// A violation of either is reported as ErrBytes-class by the caller.
func DecodeReplyFrame(data []byte) (*ReplyFrame, error) {
	if len(data) < replyHeaderLen+cmdChecksumLen {
		return nil, fmt.Errorf("transport: reply frame too short: %d bytes", len(data))
	}
	body := data[:len(data)-cmdChecksumLen]
	wantSum := binary.BigEndian.Uint32(data[len(data)-cmdChecksumLen:])
	if gotSum := fnv1(body); gotSum != wantSum {
		return nil, fmt.Errorf("transport: reply frame checksum mismatch: got %08x want %08x", gotSum, wantSum)
	}
	seq := binary.BigEndian.Uint32(body[0:4])
	status := Status(body[4])
	payload := append([]byte(nil), body[replyHeaderLen:]...)
	return &ReplyFrame{Sequence: seq, Status: status, Payload: payload}, nil
}

// SweepFrame is one UDP datagram's worth of a streamed sweep: a header
// identifying which sweep/packet/frame it belongs to, and a payload that is
// a concatenation of per-point records (I, Q, and optionally encoder/serial
// data — decoded by the pipeline package, which knows the active feature
// set).
type SweepFrame struct {
	SweepNumber    uint32
	PacketNumber   uint16
	TotalPackets   uint16
	FrameNumber    uint32
	TimestampTicks uint64
	Payload        []byte
}

// DecodeSweepFrame parses a streaming sweep frame, validating length and
// checksum the same way DecodeReplyFrame does.
func DecodeSweepFrame(data []byte) (*SweepFrame, error) {
	if len(data) < sweepHeaderLen+cmdChecksumLen {
		return nil, fmt.Errorf("transport: sweep frame too short: %d bytes", len(data))
	}
	body := data[:len(data)-cmdChecksumLen]
	wantSum := binary.BigEndian.Uint32(data[len(data)-cmdChecksumLen:])
	if gotSum := fnv1(body); gotSum != wantSum {
		return nil, fmt.Errorf("transport: sweep frame checksum mismatch: got %08x want %08x", gotSum, wantSum)
	}
	f := &SweepFrame{
		SweepNumber:    binary.BigEndian.Uint32(body[0:4]),
		PacketNumber:   binary.BigEndian.Uint16(body[4:6]),
		TotalPackets:   binary.BigEndian.Uint16(body[6:8]),
		FrameNumber:    binary.BigEndian.Uint32(body[8:12]),
		TimestampTicks: binary.BigEndian.Uint64(body[12:20]),
	}
	f.Payload = append([]byte(nil), body[sweepHeaderLen:]...)
	return f, nil
}

// EncodeSweepFrame is used only by tests, to build synthetic device traffic.
func EncodeSweepFrame(f *SweepFrame) []byte {
	total := sweepHeaderLen + len(f.Payload) + cmdChecksumLen
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], f.SweepNumber)
	binary.BigEndian.PutUint16(buf[4:6], f.PacketNumber)
	binary.BigEndian.PutUint16(buf[6:8], f.TotalPackets)
	binary.BigEndian.PutUint32(buf[8:12], f.FrameNumber)
	binary.BigEndian.PutUint64(buf[12:20], f.TimestampTicks)
	copy(buf[sweepHeaderLen:], f.Payload)
	sum := fnv1(buf[:sweepHeaderLen+len(f.Payload)])
	binary.BigEndian.PutUint32(buf[sweepHeaderLen+len(f.Payload):], sum)
	return buf
}
