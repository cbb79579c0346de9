package transport

import "testing"

func TestCommandFrameEncodeReplyFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		opcode  Opcode
		seq     uint32
		payload []byte
	}{
		{"ping no payload", OpPing, 1, nil},
		{"start with payload", OpStart, 42, []byte{0x01, 0x02, 0x03}},
		{"large sequence", OpTrigger, 0xFFFFFFFE, []byte("hello")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &CommandFrame{Opcode: tc.opcode, Sequence: tc.seq, Payload: tc.payload}
			encoded := cmd.Encode()

			pt, rest, err := ParsePacketType(encoded)
			if err != nil {
				t.Fatalf("ParsePacketType: %v", err)
			}
			if pt != PacketTypeCommand {
				t.Fatalf("packet type = %v, want PacketTypeCommand", pt)
			}
			if Opcode(rest[0]) != tc.opcode {
				t.Fatalf("opcode = %v, want %v", Opcode(rest[0]), tc.opcode)
			}
		})
	}
}

func TestDecodeReplyFrameRoundTrip(t *testing.T) {
	reply := &ReplyFrame{Sequence: 7, Status: StatusOK, Payload: []byte{1, 2, 3, 4}}
	body := make([]byte, replyHeaderLen+len(reply.Payload)+cmdChecksumLen)
	body[4] = byte(reply.Status)
	body[0], body[1], body[2], body[3] = 0, 0, 0, 7
	copy(body[replyHeaderLen:], reply.Payload)
	sum := fnv1(body[:replyHeaderLen+len(reply.Payload)])
	body[len(body)-4] = byte(sum >> 24)
	body[len(body)-3] = byte(sum >> 16)
	body[len(body)-2] = byte(sum >> 8)
	body[len(body)-1] = byte(sum)

	got, err := DecodeReplyFrame(body)
	if err != nil {
		t.Fatalf("DecodeReplyFrame: %v", err)
	}
	if got.Sequence != reply.Sequence || got.Status != reply.Status {
		t.Fatalf("got %+v, want %+v", got, reply)
	}
	if string(got.Payload) != string(reply.Payload) {
		t.Fatalf("payload = %v, want %v", got.Payload, reply.Payload)
	}
}

func TestDecodeReplyFrameRejectsBadChecksum(t *testing.T) {
	body := make([]byte, replyHeaderLen+cmdChecksumLen)
	_, err := DecodeReplyFrame(body)
	if err == nil {
		t.Fatalf("expected checksum mismatch error, got nil")
	}
}

func TestDecodeReplyFrameRejectsShortFrame(t *testing.T) {
	_, err := DecodeReplyFrame([]byte{1, 2, 3})
	if err == nil {
		t.Fatalf("expected too-short error, got nil")
	}
}

func TestSweepFrameEncodeDecodeRoundTrip(t *testing.T) {
	want := &SweepFrame{
		SweepNumber:    99,
		PacketNumber:   2,
		TotalPackets:   5,
		FrameNumber:    1234,
		TimestampTicks: 0xDEADBEEFCAFE,
		Payload:        []byte("payload bytes go here"),
	}
	encoded := EncodeSweepFrame(want)
	got, err := DecodeSweepFrame(encoded)
	if err != nil {
		t.Fatalf("DecodeSweepFrame: %v", err)
	}
	if got.SweepNumber != want.SweepNumber || got.PacketNumber != want.PacketNumber ||
		got.TotalPackets != want.TotalPackets || got.FrameNumber != want.FrameNumber ||
		got.TimestampTicks != want.TimestampTicks {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if string(got.Payload) != string(want.Payload) {
		t.Fatalf("payload = %q, want %q", got.Payload, want.Payload)
	}
}

func TestSweepFrameRejectsCorruptedChecksum(t *testing.T) {
	want := &SweepFrame{SweepNumber: 1, PacketNumber: 0, TotalPackets: 1, Payload: []byte("x")}
	encoded := EncodeSweepFrame(want)
	encoded[len(encoded)-1] ^= 0xFF
	if _, err := DecodeSweepFrame(encoded); err == nil {
		t.Fatalf("expected checksum mismatch error, got nil")
	}
}

func TestFnv1IsDeterministic(t *testing.T) {
	a := fnv1([]byte("some bytes"))
	b := fnv1([]byte("some bytes"))
	if a != b {
		t.Fatalf("fnv1 not deterministic: %d != %d", a, b)
	}
	c := fnv1([]byte("other bytes"))
	if a == c {
		t.Fatalf("fnv1 collided on distinct inputs (unlucky, but check the test)")
	}
}
