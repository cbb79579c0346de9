package avmu

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/AkelaInc/avmu/pipeline"
	"github.com/AkelaInc/avmu/transport"
)

// encodeFixedPointPair appends one Q16.16 fixed-point (i, q) sample pair to
// buf, matching the pipeline package's on-wire sample encoding.
func encodeFixedPointPair(buf []byte, i, q float64) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(int32(i*65536)))
	buf = append(buf, b[:]...)
	binary.BigEndian.PutUint32(b[:], uint32(int32(q*65536)))
	buf = append(buf, b[:]...)
	return buf
}

func TestMeasureRejectsWrongState(t *testing.T) {
	task := newUnboundTask(t)
	if err := task.Measure(context.Background()); !errors.Is(err, KindError(ErrWrongState)) {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestMeasureRejectsWrongProgramType(t *testing.T) {
	task := newUnboundTask(t)
	task.mu.Lock()
	task.state = Started
	task.config.MeasurementType = ProgramAsync
	task.mu.Unlock()

	if err := task.Measure(context.Background()); !errors.Is(err, KindError(ErrWrongProgramType)) {
		t.Fatalf("err = %v, want ErrWrongProgramType", err)
	}
}

func TestExtractSweepDataRejectsUnknownPath(t *testing.T) {
	task := newUnboundTask(t)
	task.mu.Lock()
	task.programPaths = []PathPair{{Tx: Path0, Rx: Path1}}
	task.mu.Unlock()

	if _, err := task.ExtractSweepData(Path2, Path3); !errors.Is(err, KindError(ErrBadPath)) {
		t.Fatalf("err = %v, want ErrBadPath", err)
	}
}

func TestExtractSweepDataReportsNoDataUntilQueued(t *testing.T) {
	task := newUnboundTask(t)
	task.mu.Lock()
	task.programPaths = []PathPair{{Tx: Path0, Rx: Path1}}
	task.pipeline.SetParams(pipeline.DecodeParams{NumPoints: 2, NumPaths: 1})
	task.mu.Unlock()

	if _, err := task.ExtractSweepData(Path0, Path1); !errors.Is(err, KindError(ErrPathHasNoData)) {
		t.Fatalf("err = %v, want ErrPathHasNoData", err)
	}
}

func TestExtractSweepDataReturnsQueuedRecord(t *testing.T) {
	task := newUnboundTask(t)
	task.mu.Lock()
	task.programPaths = []PathPair{{Tx: Path0, Rx: Path1}}
	task.pipeline.SetParams(pipeline.DecodeParams{NumPoints: 2, NumPaths: 1})
	task.mu.Unlock()

	var payload []byte
	payload = encodeFixedPointPair(payload, 1.5, -2.25)
	payload = encodeFixedPointPair(payload, 0.0, 3.0)
	frame := &transport.SweepFrame{
		SweepNumber:  1,
		PacketNumber: 0,
		TotalPackets: 1,
		FrameNumber:  5,
		Payload:      payload,
	}
	task.pipeline.Push(frame)

	data, err := task.ExtractSweepData(Path0, Path1)
	if err != nil {
		t.Fatalf("ExtractSweepData: %v", err)
	}
	if len(data.Points) != 2 {
		t.Fatalf("len(Points) = %d, want 2", len(data.Points))
	}
	if data.Path != (PathPair{Tx: Path0, Rx: Path1}) {
		t.Errorf("Path = %+v, want (0,1)", data.Path)
	}
}
