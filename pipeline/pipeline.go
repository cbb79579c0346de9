// Package pipeline implements the in-flight sweep reassembly and per-path
// delivery queue described in spec §4.7 (ReceivePipeline). It is grounded
// on the teacher's FrontendStatusTracker (radiod_status.go): a mutex-
// guarded map keyed by an in-flight identifier (there, SSRC; here, sweep
// number), fed by a single receive loop and drained by callers.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/AkelaInc/avmu/transport"
)

// Record is one path's reassembled sweep data — the pipeline's own
// mirror of avmu.SweepDataStruct, kept decoupled from the avmu package the
// same way program.Result is kept decoupled from avmu.SweepConfig.
type Record struct {
	PathIndex int // index into the measured-paths list this came from

	I []float64
	Q []float64

	ShaftEncoderLeft  uint32
	ShaftEncoderRight uint32

	SerialDataAge   uint32
	SerialDataBytes []byte

	TimestampTicks   uint32
	TimestampSeconds float64
	PacketNum        uint32
	SweepNumber      uint32
	FrameNum         uint32
}

// DecodeParams describes how to split a reassembled sweep's payload into
// per-path records: how many frequency points per path, how many paths,
// and which optional per-path fields are present. The pipeline needs this
// because the wire payload is just a concatenation of per-point records
// (spec §6) — it has no self-describing structure of its own.
type DecodeParams struct {
	NumPoints        int
	NumPaths         int
	EncoderEnabled   bool
	SerialPortBuffer int // 0 if serial capture is disabled
}

const fixedPointScale = 1 << 16 // Q16.16 fixed-point, device I/Q encoding

func decodeFixedPoint(b []byte) float64 {
	raw := int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
	return float64(raw) / fixedPointScale
}

// partialSweep accumulates datagrams for one in-flight sweep number until
// every packet has arrived.
type partialSweep struct {
	totalPackets uint16
	packets      map[uint16][]byte
}

func (p *partialSweep) complete() bool {
	return len(p.packets) == int(p.totalPackets)
}

// assembledPayload concatenates packets in packet-number order.
func (p *partialSweep) assembledPayload() []byte {
	var out []byte
	for i := uint16(0); i < p.totalPackets; i++ {
		out = append(out, p.packets[i]...)
	}
	return out
}

// Pipeline reassembles streamed sweep frames and holds a bounded,
// high-water-marked delivery queue per path index.
type Pipeline struct {
	params DecodeParams

	mu          sync.Mutex
	partials    map[uint32]*partialSweep
	highestSeen uint32
	haveSeen    bool

	queues    map[int][]*Record
	highWater int

	lastSweepNumber uint32
	haveLastSweep   bool

	LostSweeps int

	// decodeErrCh signals reassembled sweep payloads too short to hold
	// every configured path, so fewer paths decode than configured — framing
	// corruption, not ordinary loss, and must surface rather than be
	// swallowed (spec §7).
	decodeErrCh chan error
}

// New returns a Pipeline configured to decode sweeps shaped by params, with
// queues bounded to highWaterMark entries per path.
func New(params DecodeParams, highWaterMark int) *Pipeline {
	return &Pipeline{
		params:      params,
		partials:    make(map[uint32]*partialSweep),
		queues:      make(map[int][]*Record),
		highWater:   highWaterMark,
		decodeErrCh: make(chan error, 8),
	}
}

// SetParams updates the decode shape, used when a Task re-starts with a
// different path/point configuration (the pipeline itself is reset by the
// Task on stop/start transitions rather than internally).
func (p *Pipeline) SetParams(params DecodeParams) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = params
}

// Reset discards all in-flight and queued state, used on haltAsync / stop.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partials = make(map[uint32]*partialSweep)
	p.haveSeen = false
	p.queues = make(map[int][]*Record)
	p.haveLastSweep = false
}

// Push feeds one streamed frame into the reassembly map. When it completes
// the sweep it belongs to, the sweep is decoded into per-path Records and
// enqueued. A partial sweep superseded by a strictly newer sweep number is
// discarded and counted as a loss (spec §4.7).
func (p *Pipeline) Push(frame *transport.SweepFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sn := frame.SweepNumber

	// A superseded partial (older than the newest sweep number we've
	// started assembling) is dead on arrival: drop it and count the loss.
	if p.haveSeen && sn < p.highestSeen {
		if _, exists := p.partials[sn]; exists {
			delete(p.partials, sn)
		}
		p.LostSweeps++
		return
	}

	if !p.haveSeen || sn > p.highestSeen {
		// A newer sweep has begun: any still-partial sweep strictly older
		// than it is now superseded and will never complete.
		for old := range p.partials {
			if old < sn {
				delete(p.partials, old)
				p.LostSweeps++
			}
		}
		p.highestSeen = sn
		p.haveSeen = true
	}

	ps, ok := p.partials[sn]
	if !ok {
		ps = &partialSweep{totalPackets: frame.TotalPackets, packets: make(map[uint16][]byte)}
		p.partials[sn] = ps
	}
	ps.packets[frame.PacketNumber] = frame.Payload

	if !ps.complete() {
		return
	}
	delete(p.partials, sn)

	records, err := decodeSweep(ps.assembledPayload(), frame, p.params)
	if err != nil {
		select {
		case p.decodeErrCh <- err:
		default:
		}
	}
	for _, r := range records {
		p.enqueueLocked(r)
	}
}

func (p *Pipeline) enqueueLocked(r *Record) {
	q := p.queues[r.PathIndex]
	q = append(q, r)
	if p.highWater > 0 && len(q) > p.highWater {
		// Drop oldest: async streaming tolerates loss by design (spec §4.7).
		q = q[len(q)-p.highWater:]
	}
	p.queues[r.PathIndex] = q
}

// Dequeue pops the oldest queued record for pathIndex, or nil if empty.
func (p *Pipeline) Dequeue(pathIndex int) *Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queues[pathIndex]
	if len(q) == 0 {
		return nil
	}
	r := q[0]
	p.queues[pathIndex] = q[1:]
	return r
}

// QueueDepth reports how many records are pending for pathIndex (used by
// the metrics package for avmu_receive_queue_depth).
func (p *Pipeline) QueueDepth(pathIndex int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[pathIndex])
}

// LostSweepCount reports how many partial sweeps have been superseded
// before completion, the pipeline's running count behind
// avmu_lost_sweeps_total.
func (p *Pipeline) LostSweepCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.LostSweeps
}

// TakeDecodeError returns the oldest pending sweep-decode error, if any,
// without blocking. Callers (Measure, MeasureAsync) surface this as
// ErrBytes rather than treating a corrupted sweep like ordinary loss.
func (p *Pipeline) TakeDecodeError() error {
	select {
	case err := <-p.decodeErrCh:
		return err
	default:
		return nil
	}
}

func decodeSweep(payload []byte, frame *transport.SweepFrame, params DecodeParams) ([]*Record, error) {
	perPointBytes := 8 // I + Q, 4 bytes each fixed-point
	perPathHeader := 0
	if params.EncoderEnabled {
		perPathHeader += 8
	}
	if params.SerialPortBuffer > 0 {
		perPathHeader += 4 + params.SerialPortBuffer
	}
	perPathBytes := perPathHeader + perPointBytes*params.NumPoints

	var records []*Record
	offset := 0
	for path := 0; path < params.NumPaths; path++ {
		if offset+perPathBytes > len(payload) {
			return records, fmt.Errorf("pipeline: truncated sweep %d: path %d needs %d bytes, payload has %d remaining",
				frame.SweepNumber, path, perPathBytes, len(payload)-offset)
		}
		r := &Record{
			PathIndex:        path,
			TimestampTicks:   uint32(frame.TimestampTicks),
			TimestampSeconds: float64(frame.TimestampTicks) / 1e7,
			PacketNum:        uint32(frame.PacketNumber),
			SweepNumber:      frame.SweepNumber,
			FrameNum:         frame.FrameNumber,
		}
		cursor := offset
		if params.EncoderEnabled {
			r.ShaftEncoderLeft = be32(payload[cursor : cursor+4])
			r.ShaftEncoderRight = be32(payload[cursor+4 : cursor+8])
			cursor += 8
		}
		if params.SerialPortBuffer > 0 {
			r.SerialDataAge = be32(payload[cursor : cursor+4])
			cursor += 4
			r.SerialDataBytes = append([]byte(nil), payload[cursor:cursor+params.SerialPortBuffer]...)
			cursor += params.SerialPortBuffer
		}
		r.I = make([]float64, params.NumPoints)
		r.Q = make([]float64, params.NumPoints)
		for i := 0; i < params.NumPoints; i++ {
			r.I[i] = decodeFixedPoint(payload[cursor : cursor+4])
			cursor += 4
			r.Q[i] = decodeFixedPoint(payload[cursor : cursor+4])
			cursor += 4
		}
		records = append(records, r)
		offset += perPathBytes
	}
	return records, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
