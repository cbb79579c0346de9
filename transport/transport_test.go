package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

// fakeDevice is a bare UDP socket that answers every command frame it
// receives with a reply frame carrying the same sequence number, standing
// in for a real VMU in these tests.
type fakeDevice struct {
	conn *net.UDPConn
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("failed to open fake device socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &fakeDevice{conn: conn}
}

func (d *fakeDevice) addr() *net.UDPAddr {
	return d.conn.LocalAddr().(*net.UDPAddr)
}

// respondOnce reads one command frame and replies with the given status and
// payload, using the request's own sequence number.
func (d *fakeDevice) respondOnce(t *testing.T, status Status, payload []byte) {
	t.Helper()
	buf := make([]byte, 65535)
	d.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, from, err := d.conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("fake device read failed: %v", err)
	}
	_, rest, err := ParsePacketType(buf[:n])
	if err != nil {
		t.Fatalf("fake device failed to parse packet type: %v", err)
	}
	seq := uint32(rest[3])<<24 | uint32(rest[4])<<16 | uint32(rest[5])<<8 | uint32(rest[6])

	reply := &ReplyFrame{Sequence: seq, Status: status, Payload: payload}
	body := make([]byte, 1+replyHeaderLen+len(payload)+cmdChecksumLen)
	body[0] = byte(PacketTypeReply)
	body[1], body[2], body[3], body[4] = byte(seq>>24), byte(seq>>16), byte(seq>>8), byte(seq)
	body[5] = byte(reply.Status)
	copy(body[6:], payload)
	sum := fnv1(body[1 : 1+replyHeaderLen+len(payload)])
	n2 := len(body)
	body[n2-4], body[n2-3], body[n2-2], body[n2-1] = byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum)

	if _, err := d.conn.WriteToUDP(body, from); err != nil {
		t.Fatalf("fake device write failed: %v", err)
	}
}

func (d *fakeDevice) sendSweep(t *testing.T, to *net.UDPAddr, frame *SweepFrame) {
	t.Helper()
	body := append([]byte{byte(PacketTypeSweep)}, EncodeSweepFrame(frame)...)
	if _, err := d.conn.WriteToUDP(body, to); err != nil {
		t.Fatalf("fake device sweep send failed: %v", err)
	}
}

func TestTransportRequestReplyRoundTrip(t *testing.T) {
	tr, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	dev := newFakeDevice(t)
	done := make(chan struct{})
	go func() {
		dev.respondOnce(t, StatusOK, []byte("pong"))
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	reply, err := tr.Request(ctx, dev.addr(), OpPing, nil, time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if reply.Status != StatusOK {
		t.Fatalf("Status = %v, want StatusOK", reply.Status)
	}
	if string(reply.Payload) != "pong" {
		t.Fatalf("Payload = %q, want %q", reply.Payload, "pong")
	}
	<-done
}

func TestTransportRequestTimesOutWithNoReply(t *testing.T) {
	tr, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	dev := newFakeDevice(t) // never responds

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = tr.Request(ctx, dev.addr(), OpPing, nil, 100*time.Millisecond)
	if err == nil {
		t.Fatalf("expected a timeout error, got nil")
	}
}

func TestTransportSweepChanDelivery(t *testing.T) {
	tr, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	dev := newFakeDevice(t)
	localAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: tr.LocalPort()}

	want := &SweepFrame{SweepNumber: 7, PacketNumber: 0, TotalPackets: 1, FrameNumber: 3, Payload: []byte("samples")}
	dev.sendSweep(t, localAddr, want)

	ch := tr.SweepChan(dev.addr())
	select {
	case got := <-ch:
		if got.SweepNumber != want.SweepNumber || string(got.Payload) != string(want.Payload) {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for sweep frame")
	}
}

func TestTransportDrainSweepsIsNonBlocking(t *testing.T) {
	tr, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	dev := newFakeDevice(t)
	if frames := tr.DrainSweeps(dev.addr()); frames != nil {
		t.Fatalf("expected no frames before any arrive, got %v", frames)
	}
}

func TestTransportReceiveLoopReportsCorruptSweepFrame(t *testing.T) {
	tr, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	dev := newFakeDevice(t)
	localAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: tr.LocalPort()}

	good := EncodeSweepFrame(&SweepFrame{SweepNumber: 1, PacketNumber: 0, TotalPackets: 1, Payload: []byte("samples")})
	body := append([]byte{byte(PacketTypeSweep)}, good...)
	corrupt := body[:len(body)-1] // drop the last checksum byte
	if _, err := dev.conn.WriteToUDP(corrupt, localAddr); err != nil {
		t.Fatalf("fake device write failed: %v", err)
	}

	select {
	case err := <-tr.DecodeErrors(dev.addr()):
		if err == nil {
			t.Fatalf("expected a non-nil decode error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a decode error to be reported")
	}

	// The corrupted datagram must not also show up as a usable sweep frame.
	select {
	case f := <-tr.SweepChan(dev.addr()):
		t.Fatalf("expected no sweep frame to be delivered from corrupt bytes, got %+v", f)
	default:
	}
}

func TestTransportForgetPeerDropsState(t *testing.T) {
	tr, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	dev := newFakeDevice(t)
	tr.RegisterPeer(dev.addr())
	tr.ForgetPeer(dev.addr())
	// A fresh RegisterPeer after ForgetPeer should return a clean peerState
	// with no stale sweep frames queued from before.
	ch := tr.SweepChan(dev.addr())
	select {
	case f := <-ch:
		t.Fatalf("expected an empty channel after ForgetPeer, got %+v", f)
	default:
	}
}
