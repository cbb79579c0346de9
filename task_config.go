package avmu

import (
	"github.com/AkelaInc/avmu/program"
)

// SetHopRate sets the synthesizer dwell rate. Hop90K is accepted here but
// rejected at start() (spec §9 Open Questions: the fastest rate is
// documented in the PROM but not safe to drive continuously on every
// switchboard revision, so the source gates it at start rather than here).
func (t *Task) SetHopRate(rate HopRate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if !rate.valid() {
		return newErr(ErrBadHop, "hop rate %v is not one of the defined rates", rate)
	}
	t.config.HopRate = rate
	return nil
}

// GetHopRate returns the configured hop rate.
func (t *Task) GetHopRate() HopRate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.HopRate
}

// SetFrequencies replaces the configured frequency list, grid-snapping
// every value on the way in so GetFrequencies immediately reflects the
// hardware grid (spec §8 invariant 2).
func (t *Task) SetFrequencies(freqs []float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if len(freqs) == 0 {
		return newErr(ErrMissingFreqs, "frequency list is empty")
	}
	if t.hasProfile && len(freqs) > t.profile.MaxPoints {
		return newErr(ErrTooManyPoints, "%d points exceeds device maximum of %d", len(freqs), t.profile.MaxPoints)
	}
	snapped := make([]float64, len(freqs))
	for i, f := range freqs {
		if t.hasProfile && (f < t.profile.MinFreqMHz || f > t.profile.MaxFreqMHz) {
			return newErr(ErrFreqOutOfBounds, "frequency %v MHz outside device range [%v, %v]", f, t.profile.MinFreqMHz, t.profile.MaxFreqMHz)
		}
		snapped[i] = program.NearestLegalFreq(f)
	}
	t.config.setFrequenciesRaw(snapped)
	return nil
}

// GetFrequencies returns the configured frequency list.
func (t *Task) GetFrequencies() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.Frequencies()
}

// SetIfGain sets the IF amplifier gain step, or IfGainUseDefault.
func (t *Task) SetIfGain(gain IfGain) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if !gain.valid() {
		return newErr(ErrInvalidParameter, "if gain %d invalid: must be UseDefault or a multiple of 3 in [0,45]", gain)
	}
	t.config.IfGain = gain
	return nil
}

// GetIfGain returns the configured IF gain.
func (t *Task) GetIfGain() IfGain {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.IfGain
}

// SetPad12dB toggles the 12 dB input pad.
func (t *Task) SetPad12dB(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	t.config.Pad12dBEnabled = enabled
	return nil
}

// SetAttenuation sets the explicit attenuation value, required before
// start() on switchboards that requireAttenuation (spec §4.4).
func (t *Task) SetAttenuation(value float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if t.hasProfile && !t.profile.Features.Attenuators {
		return newErr(ErrNoAttenPresent, "hardware reports no attenuators present")
	}
	t.config.Attenuation = value
	t.config.AttenuationSet = true
	return nil
}

// AddExclusionBand appends an RF-muted frequency interval.
func (t *Task) AddExclusionBand(startMHz, stopMHz float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	return t.config.addExclusionBand(startMHz, stopMHz)
}

// ClearExclusionBands removes every configured exclusion band.
func (t *Task) ClearExclusionBands() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	t.config.clearExclusionBands()
	return nil
}

// ExclusionBandCount returns the number of configured exclusion bands.
func (t *Task) ExclusionBandCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.ExclusionBandCount()
}

// ExclusionBandAt returns the exclusion band at idx.
func (t *Task) ExclusionBandAt(idx int) (ExclusionBand, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.ExclusionBandAt(idx)
}

// AddPathToMeasure adds a (tx, rx) pair to the measured-paths set.
func (t *Task) AddPathToMeasure(tx, rx Path) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	return t.config.addPathToMeasure(tx, rx)
}

// ClearMeasuredPaths removes every configured measured path.
func (t *Task) ClearMeasuredPaths() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	t.config.clearMeasuredPaths()
	return nil
}

// MeasuredPathCount returns the number of configured measured paths.
func (t *Task) MeasuredPathCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.MeasuredPathCount()
}

// PathAt returns the measured path at idx, in insertion order.
func (t *Task) PathAt(idx int) (PathPair, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.PathAt(idx)
}

// SetEncoder configures shaft-encoder sampling.
func (t *Task) SetEncoder(feature EncoderFeature) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if feature.Enabled && t.hasProfile && !t.profile.Features.Encoders {
		return newErr(ErrFeatureNotPresent, "hardware reports no shaft encoder present")
	}
	t.config.Encoder = feature
	return nil
}

// SetSerialPort configures serial RX capture.
func (t *Task) SetSerialPort(feature SerialPortFeature) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if feature.Enabled && t.hasProfile && !t.profile.Features.SerialPort {
		return newErr(ErrFeatureNotPresent, "hardware reports no serial port present")
	}
	t.config.SerialPort = feature
	return nil
}

// SetEnabledReceivers sets the bitmask of active receivers on
// multi-receiver hardware (supplemented feature, see SPEC_FULL.md).
func (t *Task) SetEnabledReceivers(mask uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if t.hasProfile && !t.profile.Features.MultipleReceivers && mask != 0 {
		return newErr(ErrFeatureNotPresent, "hardware does not report multiple receivers")
	}
	t.config.EnabledReceivers = mask
	return nil
}

// IsShaftEncoderPresent reports whether the cached profile's switchboard
// reports a shaft encoder (supplemented feature).
func (t *Task) IsShaftEncoderPresent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.profile.Features.Encoders
}

// IsSerialPortPresent reports whether the cached profile reports a serial
// port (supplemented feature).
func (t *Task) IsSerialPortPresent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.profile.Features.SerialPort
}

// SetSyncPulseMode sets this Task's role in a multi-unit broadcast start
// (spec §4.8).
func (t *Task) SetSyncPulseMode(mode SyncPulseMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	t.config.SyncPulseMode = mode
	return nil
}

// SetTddSettings sets the raw TDD register block, required before start()
// on SwitchTdd4 switchboards.
func (t *Task) SetTddSettings(settings TddSettings) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	t.config.Tdd = &settings
	return nil
}
