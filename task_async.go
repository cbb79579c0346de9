package avmu

import (
	"context"

	"github.com/AkelaInc/avmu/transport"
)

// BeginAsync starts continuous streaming acquisition (spec §4.6). Valid
// only from Started with MeasurementType == ProgramAsync; moves to
// Running on success.
func (t *Task) BeginAsync(ctx context.Context) error {
	t.mu.Lock()
	if err := t.requireState(Started); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.config.MeasurementType != ProgramAsync {
		t.mu.Unlock()
		return newErr(ErrWrongProgramType, "beginAsync requires MeasurementType ProgramAsync")
	}
	peer := t.peerAddr
	tr := t.transport
	timeout := t.timeoutDuration()
	t.mu.Unlock()

	if _, err := tr.Request(ctx, peer, transport.OpBeginAsync, nil, timeout); err != nil {
		return wrapErr(ErrNoResponse, err, "beginAsync command failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Started {
		return newErr(ErrWrongState, "task left started state during beginAsync()")
	}
	t.state = Running
	return nil
}

// HaltAsync stops continuous streaming and discards anything still
// in-flight in the receive pipeline (spec §4.6). Valid only from Running;
// moves back to Started on success.
func (t *Task) HaltAsync(ctx context.Context) error {
	t.mu.Lock()
	if err := t.requireState(Running); err != nil {
		t.mu.Unlock()
		return err
	}
	peer := t.peerAddr
	tr := t.transport
	timeout := t.timeoutDuration()
	t.mu.Unlock()

	if _, err := tr.Request(ctx, peer, transport.OpHaltAsync, nil, timeout); err != nil {
		return wrapErr(ErrNoResponse, err, "haltAsync command failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pipeline.Reset()
	t.state = Started
	return nil
}

// MeasureAsync drains whatever sweep frames the transport has buffered for
// this Task's peer and feeds them through the receive pipeline without
// blocking (spec §4.6: "caller must invoke measure often enough to drain
// the socket buffer"). It does not wait for a full sweep to complete;
// ExtractSweepData reports ErrPathHasNoData until one has. Valid from
// Running.
func (t *Task) MeasureAsync() error {
	t.mu.Lock()
	if err := t.requireState(Running); err != nil {
		t.mu.Unlock()
		return err
	}
	peer := t.peerAddr
	tr := t.transport
	pl := t.pipeline
	t.mu.Unlock()

	if err := tr.TakeDecodeError(peer); err != nil {
		return wrapErr(ErrBytes, err, "corrupt frame from device")
	}
	for _, frame := range tr.DrainSweeps(peer) {
		pl.Push(frame)
	}
	if err := pl.TakeDecodeError(); err != nil {
		return wrapErr(ErrBytes, err, "corrupt sweep frame from device")
	}
	return nil
}
