package avmu

import (
	"context"

	"github.com/AkelaInc/avmu/program"
	"github.com/AkelaInc/avmu/transport"
)

// GetPreciseTimePerFrame returns the wall-clock duration, in seconds, one
// full sweep across every configured frequency takes at the configured hop
// rate (spec §4.9). Returns an error if the Task isn't Started or Running,
// since the calculation depends on the committed frequency count.
func (t *Task) GetPreciseTimePerFrame() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Started && t.state != Running {
		return 0, newErr(ErrWrongState, "getPreciseTimePerFrame requires state started or running, task is %s", t.state)
	}
	rate := t.config.HopRate.SamplesPerSecond()
	if rate == 0 {
		return 0, newErr(ErrMissingHop, "hop rate not set")
	}
	return float64(len(t.config.frequencies)) / rate, nil
}

// UtilPingUnit sends up to tries pings, spaced by the configured timeout,
// and reports whether any was answered (spec §4.9). Callable with an
// endpoint set in any state except Running, since an ongoing async sweep
// must not be interrupted by unrelated control traffic.
func (t *Task) UtilPingUnit(ctx context.Context, tries int) error {
	t.mu.Lock()
	if t.state == Running {
		t.mu.Unlock()
		return newErr(ErrWrongState, "utilPingUnit cannot run during an ongoing async sweep")
	}
	if t.peerAddr == nil {
		t.mu.Unlock()
		return newErr(ErrMissingIP, "endpoint not set")
	}
	peer := t.peerAddr
	tr := t.transport
	timeout := t.timeoutDuration()
	t.mu.Unlock()

	var lastErr error
	for i := 0; i < tries; i++ {
		if _, err := tr.Request(ctx, peer, transport.OpPing, nil, timeout); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return wrapErr(ErrNoResponse, lastErr, "no ping reply after %d tries", tries)
}

// UtilEnterLowPowerState commands the device into its low-power idle mode
// (spec §4.9). Valid from Started or Stopped, where no sweep is using the
// RF front end.
func (t *Task) UtilEnterLowPowerState(ctx context.Context) error {
	t.mu.Lock()
	if t.state != Started && t.state != Stopped {
		t.mu.Unlock()
		return newErr(ErrWrongState, "utilEnterLowPowerState requires state started or stopped, task is %s", t.state)
	}
	peer := t.peerAddr
	tr := t.transport
	timeout := t.timeoutDuration()
	t.mu.Unlock()

	if _, err := tr.Request(ctx, peer, transport.OpLowPowerState, nil, timeout); err != nil {
		return wrapErr(ErrNoResponse, err, "low power state command failed")
	}
	return nil
}

// UtilGenerateLinearSweep returns n frequencies evenly spaced between
// start and end, grid-snapped (spec §4.9). Pure; callable in any state.
func UtilGenerateLinearSweep(start, end float64, n int) []float64 {
	return program.LinearSweep(start, end, n)
}

// UtilNearestLegalFreq rounds freq to the nearest hardware-grid-exact
// value (spec §4.9). Pure; callable in any state.
func UtilNearestLegalFreq(freq float64) float64 {
	return program.NearestLegalFreq(freq)
}

// UtilFixLinearSweepLimits adjusts start/end so n evenly spaced points all
// land on exactly generatable frequencies (spec §4.9). Pure; callable in
// any state.
func UtilFixLinearSweepLimits(start, end float64, n int) (float64, float64) {
	return program.FixLinearSweepLimits(start, end, n)
}
