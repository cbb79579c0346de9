package pipeline

import (
	"testing"

	"github.com/AkelaInc/avmu/transport"
)

func encodePoint(i, q float64) []byte {
	buf := make([]byte, 8)
	writeFixed := func(b []byte, v float64) {
		raw := int32(v * fixedPointScale)
		b[0] = byte(raw >> 24)
		b[1] = byte(raw >> 16)
		b[2] = byte(raw >> 8)
		b[3] = byte(raw)
	}
	writeFixed(buf[0:4], i)
	writeFixed(buf[4:8], q)
	return buf
}

func buildSweepPayload(numPaths, numPoints int) []byte {
	var out []byte
	for path := 0; path < numPaths; path++ {
		for i := 0; i < numPoints; i++ {
			out = append(out, encodePoint(float64(path), float64(i))...)
		}
	}
	return out
}

func TestPipelineSingleFrameSweepDecodes(t *testing.T) {
	p := New(DecodeParams{NumPoints: 4, NumPaths: 2}, 0)
	payload := buildSweepPayload(2, 4)
	frame := &transport.SweepFrame{
		SweepNumber:  1,
		PacketNumber: 0,
		TotalPackets: 1,
		FrameNumber:  1,
		Payload:      payload,
	}
	p.Push(frame)

	for path := 0; path < 2; path++ {
		rec := p.Dequeue(path)
		if rec == nil {
			t.Fatalf("path %d: expected a record, got nil", path)
		}
		if rec.PathIndex != path {
			t.Fatalf("path %d: PathIndex = %d", path, rec.PathIndex)
		}
		if len(rec.I) != 4 || len(rec.Q) != 4 {
			t.Fatalf("path %d: got %d I / %d Q samples, want 4/4", path, len(rec.I), len(rec.Q))
		}
		if rec.I[0] != float64(path) {
			t.Fatalf("path %d: I[0] = %v, want %v", path, rec.I[0], float64(path))
		}
	}
	if d := p.QueueDepth(0); d != 0 {
		t.Fatalf("queue depth after dequeue = %d, want 0", d)
	}
}

func TestPipelineMultiPacketReassembly(t *testing.T) {
	p := New(DecodeParams{NumPoints: 2, NumPaths: 1}, 0)
	payload := buildSweepPayload(1, 2)
	half := len(payload) / 2

	p.Push(&transport.SweepFrame{SweepNumber: 5, PacketNumber: 0, TotalPackets: 2, Payload: payload[:half]})
	if rec := p.Dequeue(0); rec != nil {
		t.Fatalf("expected no record before sweep completes, got %+v", rec)
	}
	p.Push(&transport.SweepFrame{SweepNumber: 5, PacketNumber: 1, TotalPackets: 2, Payload: payload[half:]})

	rec := p.Dequeue(0)
	if rec == nil {
		t.Fatalf("expected a record after both packets arrive")
	}
	if len(rec.I) != 2 {
		t.Fatalf("got %d I samples, want 2", len(rec.I))
	}
}

func TestPipelineSupersededPartialCountsAsLost(t *testing.T) {
	p := New(DecodeParams{NumPoints: 1, NumPaths: 1}, 0)
	payload := buildSweepPayload(1, 1)

	// Sweep 1 only partially arrives (1 of 2 packets).
	p.Push(&transport.SweepFrame{SweepNumber: 1, PacketNumber: 0, TotalPackets: 2, Payload: payload})
	// Sweep 2 completes in full, superseding sweep 1.
	p.Push(&transport.SweepFrame{SweepNumber: 2, PacketNumber: 0, TotalPackets: 1, Payload: payload})

	if p.LostSweeps != 1 {
		t.Fatalf("LostSweeps = %d, want 1", p.LostSweeps)
	}
	if rec := p.Dequeue(0); rec == nil {
		t.Fatalf("expected sweep 2's record to be queued")
	}
}

func TestPipelineHighWaterMarkDropsOldest(t *testing.T) {
	p := New(DecodeParams{NumPoints: 1, NumPaths: 1}, 2)
	payload := buildSweepPayload(1, 1)

	for sn := uint32(1); sn <= 3; sn++ {
		p.Push(&transport.SweepFrame{SweepNumber: sn, PacketNumber: 0, TotalPackets: 1, Payload: payload})
	}
	if d := p.QueueDepth(0); d != 2 {
		t.Fatalf("queue depth = %d, want 2 (bounded by high-water mark)", d)
	}
	first := p.Dequeue(0)
	if first == nil || first.SweepNumber != 2 {
		t.Fatalf("expected oldest surviving record to be sweep 2, got %+v", first)
	}
}

func TestPipelineResetClearsState(t *testing.T) {
	p := New(DecodeParams{NumPoints: 1, NumPaths: 1}, 0)
	payload := buildSweepPayload(1, 1)
	p.Push(&transport.SweepFrame{SweepNumber: 1, PacketNumber: 0, TotalPackets: 1, Payload: payload})
	if p.QueueDepth(0) != 1 {
		t.Fatalf("expected queued record before reset")
	}
	p.Reset()
	if p.QueueDepth(0) != 0 {
		t.Fatalf("expected empty queue after reset")
	}
	if rec := p.Dequeue(0); rec != nil {
		t.Fatalf("expected nil dequeue after reset, got %+v", rec)
	}
}

func TestPipelineTruncatedSweepDecodesWhatItCan(t *testing.T) {
	p := New(DecodeParams{NumPoints: 4, NumPaths: 2}, 0)
	payload := buildSweepPayload(2, 4)
	truncated := payload[:len(payload)/2] // only room for one path's worth
	p.Push(&transport.SweepFrame{SweepNumber: 1, PacketNumber: 0, TotalPackets: 1, Payload: truncated})

	if rec := p.Dequeue(0); rec == nil {
		t.Fatalf("expected path 0's record to decode from the truncated sweep")
	}
	if rec := p.Dequeue(1); rec != nil {
		t.Fatalf("expected path 1 to be skipped for a truncated sweep, got %+v", rec)
	}
	if err := p.TakeDecodeError(); err == nil {
		t.Fatalf("expected a decode error to be reported for the truncated sweep")
	}
	if err := p.TakeDecodeError(); err != nil {
		t.Fatalf("expected only one decode error to be queued, got a second: %v", err)
	}
}
