package avmu

import (
	"context"
	"time"

	"github.com/AkelaInc/avmu/transport"
)

// Measure triggers one synchronous sweep and blocks until a record is
// available for every configured path or the sweep time (points / hop rate)
// plus the reply timeout elapses (spec §4.5). Valid only from Started with MeasurementType == ProgramSync.
// interruptMeasurement cancels an in-progress call early with ErrInterrupted.
func (t *Task) Measure(ctx context.Context) error {
	t.mu.Lock()
	if err := t.requireState(Started); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.config.MeasurementType != ProgramSync {
		t.mu.Unlock()
		return newErr(ErrWrongProgramType, "measure requires MeasurementType ProgramSync")
	}
	peer := t.peerAddr
	tr := t.transport
	timeout := t.timeoutDuration()
	numPaths := len(t.programPaths)
	pl := t.pipeline
	frameRate := t.config.HopRate.SamplesPerSecond()
	numFreqs := len(t.config.frequencies)
	t.mu.Unlock()

	if _, err := tr.Request(ctx, peer, transport.OpTrigger, nil, timeout); err != nil {
		return wrapErr(ErrNoResponse, err, "trigger command failed")
	}

	// §4.5: the device needs getPreciseTimePerFrame just to step the whole
	// sweep before it can even reply, on top of ordinary transport latency.
	sweepTime := timeout
	if frameRate > 0 {
		sweepTime += time.Duration(float64(numFreqs) / frameRate * float64(time.Second))
	}

	sweepCh := tr.SweepChan(peer)
	decodeErrCh := tr.DecodeErrors(peer)
	deadline := time.NewTimer(sweepTime)
	defer deadline.Stop()

	for !everyPathReady(pl, numPaths) {
		select {
		case frame := <-sweepCh:
			pl.Push(frame)
			if err := pl.TakeDecodeError(); err != nil {
				return wrapErr(ErrBytes, err, "corrupt sweep frame from device")
			}
		case err := <-decodeErrCh:
			return wrapErr(ErrBytes, err, "corrupt frame from device")
		case <-deadline.C:
			return newErr(ErrNoResponse, "sweep did not complete within %s", sweepTime)
		case <-t.interruptCh:
			return newErr(ErrInterrupted, "measurement interrupted")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func everyPathReady(pl interface{ QueueDepth(int) int }, numPaths int) bool {
	for i := 0; i < numPaths; i++ {
		if pl.QueueDepth(i) == 0 {
			return false
		}
	}
	return numPaths > 0
}

// ExtractSweepData dequeues the oldest reassembled record for the (tx, rx)
// path, decoding it into a SweepDataStruct (spec §4.5, §4.6). Returns
// ErrPathHasNoData if nothing is queued yet, and ErrBadPath if (tx, rx) was
// not part of the program this Task is currently running.
func (t *Task) ExtractSweepData(tx, rx Path) (*SweepDataStruct, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, p := range t.programPaths {
		if p.Tx == tx && p.Rx == rx {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, newErr(ErrBadPath, "path (%v,%v) is not part of the running program", tx, rx)
	}

	rec := t.pipeline.Dequeue(idx)
	if rec == nil {
		return nil, newErr(ErrPathHasNoData, "no data queued for path (%v,%v)", tx, rx)
	}

	points := make([]ComplexSample, len(rec.I))
	for i := range points {
		points[i] = ComplexSample{I: rec.I[i], Q: rec.Q[i]}
	}
	return &SweepDataStruct{
		Path:              PathPair{Tx: tx, Rx: rx},
		Points:            points,
		ShaftEncoderLeft:  rec.ShaftEncoderLeft,
		ShaftEncoderRight: rec.ShaftEncoderRight,
		SerialDataAge:     rec.SerialDataAge,
		SerialDataBytes:   rec.SerialDataBytes,
		TimestampTicks:    rec.TimestampTicks,
		TimestampSeconds:  rec.TimestampSeconds,
		PacketNum:         rec.PacketNum,
		SweepNumber:       rec.SweepNumber,
		FrameNum:          rec.FrameNum,
		ReceivedAt:        time.Now(),
	}, nil
}

// QueueDepth reports how many reassembled records are pending for the
// path at index idx in the currently-running program (spec §4.7: callers
// watch this to detect drain starvation). idx follows the same program-path
// ordering as PathAt/ExtractSweepData.
func (t *Task) QueueDepth(idx int) int {
	t.mu.Lock()
	pl := t.pipeline
	t.mu.Unlock()
	return pl.QueueDepth(idx)
}

// LostSweepCount reports how many partial sweeps have been superseded
// before completing, for callers that want to track receive-path health
// (spec §4.7).
func (t *Task) LostSweepCount() int {
	t.mu.Lock()
	pl := t.pipeline
	t.mu.Unlock()
	return pl.LostSweepCount()
}

// InterruptMeasurement cancels an in-progress Measure call from any thread
// without touching the Task's state (spec §4.5, §9 thread-safety notes).
// Safe to call even when no measurement is in flight.
func (t *Task) InterruptMeasurement() {
	select {
	case t.interruptCh <- struct{}{}:
	default:
	}
}
