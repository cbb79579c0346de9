package avmu

import "fmt"

// HopRate is the synthesizer's dwell frequency per point, samples/second
// (spec §3, GLOSSARY).
type HopRate int

const (
	HopUndefined HopRate = iota
	Hop90K               // currently rejected at start(), see spec §9 Open Questions
	Hop45K
	Hop30K
	Hop15K
	Hop7K
	Hop3K
	Hop2K
	Hop1K
	Hop550
	Hop312
	Hop156
	Hop78
	Hop39
	Hop20
)

var hopRateSamplesPerSecond = map[HopRate]float64{
	Hop90K: 90000, Hop45K: 45000, Hop30K: 30000, Hop15K: 15000,
	Hop7K: 7000, Hop3K: 3000, Hop2K: 2000, Hop1K: 1000,
	Hop550: 550, Hop312: 312, Hop156: 156, Hop78: 78, Hop39: 39, Hop20: 20,
}

func (h HopRate) valid() bool {
	_, ok := hopRateSamplesPerSecond[h]
	return ok
}

// SamplesPerSecond returns the hop rate's dwell rate, or 0 for Undefined.
func (h HopRate) SamplesPerSecond() float64 {
	return hopRateSamplesPerSecond[h]
}

// Path is a switchboard port selector (spec §3, GLOSSARY).
type Path int

const (
	Path0 Path = iota
	Path1
	Path2
	Path3
	Path4
	Path5
	Path6
	Path7
	PathNone
)

// PathPair is a (transmit, receive) path selection.
type PathPair struct {
	Tx Path
	Rx Path
}

// IfGain is the IF amplifier gain step in dB, or UseDefault.
type IfGain int

const IfGainUseDefault IfGain = -1

func (g IfGain) valid() bool {
	if g == IfGainUseDefault {
		return true
	}
	return g >= 0 && g <= 45 && g%3 == 0
}

// SyncPulseMode is the hardware-level sync-pulse role across Tasks sharing
// a broadcast start (spec §4.8, GLOSSARY).
type SyncPulseMode int

const (
	SyncIgnore SyncPulseMode = iota
	SyncGenerate
	SyncReceive
)

// ExclusionBand is a frequency interval within which RF output is muted
// while the synthesizer still steps through its points (spec §3, GLOSSARY).
type ExclusionBand struct {
	StartMHz float64
	StopMHz  float64
}

// EncoderFeature configures shaft-encoder sampling (spec §3).
type EncoderFeature struct {
	Enabled      bool
	ResetOnStart bool
}

// SerialPortFeature configures serial RX capture (spec §3).
type SerialPortFeature struct {
	Enabled    bool
	BufferSize uint
}

// TddSettings is the TDD register block (spec §3, §9): values are
// forwarded verbatim to the device with no semantic validation beyond the
// switchboard-kind presence check performed by ProgramBuilder.
type TddSettings struct {
	Active            bool
	Enabled           bool
	Nulling           bool
	PowerAmp          bool
	Slave             bool
	AttenuatorEnabled bool
	AttenuatorValue   uint16
	Lna               bool
	Tx                uint32
	TxToRx1           uint32
	Rx1               uint32
	Rx1ToRx2          uint32
	Rx2               uint32
	Rx2ToTx           uint32
}

// ProgramType selects synchronous vs. asynchronous acquisition (spec §3).
type ProgramType int

const (
	ProgramSync ProgramType = iota
	ProgramAsync
)

// SweepConfig is the declarative, mutable-while-stopped configuration
// described in spec §3. Every mutator is only valid while the owning Task
// is Uninitialized or Stopped; SweepConfig itself does not enforce that —
// Task does, by routing every mutator through requireConfigurable().
type SweepConfig struct {
	IPv4 string
	Port int

	HopRate HopRate

	frequencies []float64 // insertion order preserved for indexed access

	exclusionBands []ExclusionBand

	measuredPaths []PathPair

	IfGain         IfGain
	Pad12dBEnabled bool

	Attenuation    float64
	AttenuationSet bool

	Encoder    EncoderFeature
	SerialPort SerialPortFeature

	EnabledReceivers uint8 // supplemented feature, see SPEC_FULL.md

	SyncPulseMode SyncPulseMode

	SendSweepTimer           bool
	ResetFrameCounterOnStart bool

	Tdd *TddSettings

	MeasurementType ProgramType
}

// NewSweepConfig returns a SweepConfig with the documented defaults: port
// unset, hop rate Undefined, sync measurement, IF gain at device default.
func NewSweepConfig() *SweepConfig {
	return &SweepConfig{
		HopRate:         HopUndefined,
		IfGain:          IfGainUseDefault,
		MeasurementType: ProgramSync,
	}
}

func validPort(port int) bool {
	return port >= MinDevicePort && port <= MaxDevicePort
}

// Port bounds from spec §3 ("port ∈ [1025, 1279]").
const (
	MinDevicePort = 1025
	MaxDevicePort = 1279
)

// Frequencies returns the configured frequency list in insertion order.
// After setFrequencies, values here are the hardware-grid-snapped values
// (spec §8 invariant 2); they are populated by Task.SetFrequencies, which
// calls the program package's grid-snap helper before storing them.
func (c *SweepConfig) Frequencies() []float64 {
	out := make([]float64, len(c.frequencies))
	copy(out, c.frequencies)
	return out
}

func (c *SweepConfig) setFrequenciesRaw(freqs []float64) {
	c.frequencies = append([]float64(nil), freqs...)
}

// addExclusionBand appends a band; duplicate (start, stop) pairs accumulate
// separate entries (spec §8 round-trip law), union semantics are resolved
// downstream by ProgramBuilder.
func (c *SweepConfig) addExclusionBand(start, stop float64) error {
	if !(start > 0 && stop > start) {
		return newErr(ErrInvalidParameter, "exclusion band requires 0 < start < stop, got [%v, %v]", start, stop)
	}
	c.exclusionBands = append(c.exclusionBands, ExclusionBand{StartMHz: start, StopMHz: stop})
	return nil
}

func (c *SweepConfig) clearExclusionBands() {
	c.exclusionBands = nil
}

// ExclusionBandCount returns the number of exclusion bands (getExclusionBandCount).
func (c *SweepConfig) ExclusionBandCount() int {
	return len(c.exclusionBands)
}

// ExclusionBandAt returns the exclusion band at idx (getExclusionBand).
func (c *SweepConfig) ExclusionBandAt(idx int) (ExclusionBand, error) {
	if idx < 0 || idx >= len(c.exclusionBands) {
		return ExclusionBand{}, newErr(ErrIndexOutOfBounds, "exclusion band index %d out of range [0,%d)", idx, len(c.exclusionBands))
	}
	return c.exclusionBands[idx], nil
}

// addPathToMeasure appends a (tx, rx) pair; duplicates error (spec §3).
func (c *SweepConfig) addPathToMeasure(tx, rx Path) error {
	for _, p := range c.measuredPaths {
		if p.Tx == tx && p.Rx == rx {
			return newErr(ErrPathAlreadyMeasured, "path (%v,%v) already added", tx, rx)
		}
	}
	c.measuredPaths = append(c.measuredPaths, PathPair{Tx: tx, Rx: rx})
	return nil
}

func (c *SweepConfig) clearMeasuredPaths() {
	c.measuredPaths = nil
}

// MeasuredPathCount returns the number of configured paths (getMeasuredPathCount).
func (c *SweepConfig) MeasuredPathCount() int {
	return len(c.measuredPaths)
}

// PathAt returns the path pair at idx, in insertion order (getPathAtIndex).
func (c *SweepConfig) PathAt(idx int) (PathPair, error) {
	if idx < 0 || idx >= len(c.measuredPaths) {
		return PathPair{}, newErr(ErrIndexOutOfBounds, "path index %d out of range [0,%d)", idx, len(c.measuredPaths))
	}
	return c.measuredPaths[idx], nil
}

// hasPath reports whether (tx, rx) is in the measured set.
func (c *SweepConfig) hasPath(tx, rx Path) bool {
	for _, p := range c.measuredPaths {
		if p.Tx == tx && p.Rx == rx {
			return true
		}
	}
	return false
}

func (p PathPair) String() string {
	return fmt.Sprintf("(%d->%d)", p.Tx, p.Rx)
}
