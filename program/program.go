package program

import "errors"

// ProgramCapacityBytes is the device's instruction memory budget. The exact
// figure is hardware-specific and out of this spec's scope to standardize
// (spec §1 Non-goals); what matters for the budget check in step 6 is that
// Build enforces *some* fixed ceiling and reports an overflow distinctly
// from a too-many-points input error.
const ProgramCapacityBytes = 65536

// Sentinel errors the avmu package maps onto the matching ErrorKind.
var (
	ErrNoPathsMeasured    = errors.New("program: no paths measured")
	ErrOverflow           = errors.New("program: generated program exceeds device instruction memory")
	ErrMissingAttenuation = errors.New("program: switchboard requires an attenuation value")
	ErrTddRequired         = errors.New("program: tdd switchboard selected but no tdd settings configured")
)

// pointPlan is one frequency point's resolved band index and mute state,
// computed once up front so path blocks can all reuse it.
type pointPlan struct {
	freq   float64
	band   int
	muted  bool
}

// bandIndexFor returns which band a frequency falls in, given descending
// boundaries: band 0 is above boundaries[0], band 1 is between
// boundaries[0] and boundaries[1], and so on.
func bandIndexFor(freq float64, boundaries []float64) int {
	band := 0
	for _, b := range boundaries {
		if freq < b {
			band++
		} else {
			break
		}
	}
	return band
}

func inExclusion(freq float64, bands []ExclusionBand) bool {
	for _, b := range bands {
		if freq >= b.StartMHz && freq <= b.StopMHz {
			return true
		}
	}
	return false
}

// Build is the pure function described in spec §4.3: it never touches a
// socket or any mutable state, so it can be (and is) tested with plain
// table-driven unit tests independent of any real hardware.
func Build(profile Profile, cfg Config) (Result, error) {
	if len(cfg.MeasuredPaths) == 0 {
		return Result{}, ErrNoPathsMeasured
	}
	if profile.SwitchboardKind.RequiresAttenuation() && !cfg.Attenuation.Set {
		return Result{}, ErrMissingAttenuation
	}
	if profile.SwitchboardKind == SwitchTdd4 && cfg.Tdd == nil {
		return Result{}, ErrTddRequired
	}

	// Step 1: frequency snapping. SetFrequencies already snaps on the way
	// in (so getFrequencies reflects the grid immediately, spec §8
	// invariant 2); re-applying here keeps Build a pure, idempotent
	// function of its inputs regardless of caller discipline.
	snapped := make([]float64, len(cfg.Frequencies))
	for i, f := range cfg.Frequencies {
		snapped[i] = NearestLegalFreq(f)
	}

	// Steps 2-3: resolve each point's exclusion-mute state and band index
	// in the order the caller supplied them (spec describes frequencies as
	// an "ordered sequence" — Build honors that order rather than
	// re-sorting it, and instruments every point-to-point band transition
	// as it occurs).
	plans := make([]pointPlan, len(snapped))
	for i, f := range snapped {
		plans[i] = pointPlan{
			freq:  f,
			band:  bandIndexFor(f, profile.BandBoundaries),
			muted: inExclusion(f, cfg.ExclusionBands),
		}
	}

	var buf []byte

	// Feature opcodes that apply for the whole program, emitted once up
	// front (encoder, serial, sync-pulse, gain, pad, timers).
	if cfg.EncoderEnabled {
		buf = appendByte(buf, tagEncoderRead, 1)
		if cfg.EncoderResetOnStart {
			buf = appendTag(buf, tagEncoderReset)
		}
	}
	if cfg.SerialPortEnabled {
		buf = appendU32(buf, tagSerialCapture, uint32(cfg.SerialPortBufferSize))
	}
	if cfg.SyncPulseGenerate {
		buf = appendTag(buf, tagSyncPulseGenerate)
	}
	if cfg.SyncPulseReceive {
		buf = appendTag(buf, tagSyncPulseReceive)
	}
	if cfg.IfGainSet {
		buf = appendU32(buf, tagIfGain, uint32(int32(cfg.IfGainValue)))
	}
	if cfg.Pad12dBEnabled {
		buf = appendByte(buf, tagPad12dB, 1)
	}
	if cfg.SendSweepTimer {
		buf = appendByte(buf, tagSendSweepTimer, 1)
	}
	if cfg.ResetFrameCounterOnStart {
		buf = appendByte(buf, tagResetFrameCounter, 1)
	}
	if profile.Features.MultipleReceivers {
		buf = appendByte(buf, tagEnabledReceivers, cfg.EnabledReceivers)
	}
	if cfg.Attenuation.Set {
		buf = appendF64(buf, tagAttenuation, cfg.Attenuation.Value)
	}
	if cfg.Tdd != nil {
		buf = appendBytes(buf, tagTddBlock, encodeTdd(cfg.Tdd))
	}

	// Step 4: path ordering. Each (tx, rx) pair contributes a block of
	// per-point opcodes, honoring band-crossing order within the block.
	for _, path := range cfg.MeasuredPaths {
		buf = appendU32(buf, tagPathBegin, uint32(path.Tx)<<16|uint32(path.Rx))

		lastBand := -1
		for _, p := range plans {
			if p.band != lastBand {
				buf = appendU32(buf, tagBandChange, uint32(p.band))
				lastBand = p.band
			}
			if p.muted {
				buf = appendF64(buf, tagSamplePointMute, p.freq)
			} else {
				buf = appendF64(buf, tagSamplePoint, p.freq)
			}
		}
	}

	buf = appendTag(buf, tagEOL)

	// Step 6: budget check.
	if len(buf) > ProgramCapacityBytes {
		return Result{}, ErrOverflow
	}

	return Result{Program: buf, SnappedFrequencies: snapped}, nil
}

func encodeTdd(t *TddSettings) []byte {
	flags := byte(0)
	if t.Active {
		flags |= 1 << 0
	}
	if t.Enabled {
		flags |= 1 << 1
	}
	if t.Nulling {
		flags |= 1 << 2
	}
	if t.PowerAmp {
		flags |= 1 << 3
	}
	if t.Slave {
		flags |= 1 << 4
	}
	if t.AttenuatorEnabled {
		flags |= 1 << 5
	}
	if t.Lna {
		flags |= 1 << 6
	}

	out := make([]byte, 0, 1+2+4*6)
	out = append(out, flags)
	out = append(out, byte(t.AttenuatorValue>>8), byte(t.AttenuatorValue))
	for _, v := range []uint32{t.Tx, t.TxToRx1, t.Rx1, t.Rx1ToRx2, t.Rx2, t.Rx2ToTx} {
		out = append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return out
}
