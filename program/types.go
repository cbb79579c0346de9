// Package program implements the pure ProgramBuilder described in spec
// §4.3: it turns a HardwareProfile-equivalent and SweepConfig-equivalent
// pair into a byte-coded device program and the post-snap frequency list,
// with no knowledge of sockets, state machines, or anything else — kept
// deliberately decoupled from the avmu package's Task/SweepConfig types so
// it stays trivially unit-testable, per the spec's own rationale in §4.3.
package program

// SwitchboardKind mirrors avmu.SwitchboardKind without importing it.
type SwitchboardKind int

const (
	SwitchNoSwitch SwitchboardKind = iota
	SwitchSimple4
	SwitchTdd4
	SwitchSimple8
	SwitchSParameter
)

func (k SwitchboardKind) RequiresAttenuation() bool {
	return k == SwitchSimple8 || k == SwitchSParameter
}

// Features mirrors avmu.HardwareFeatures.
type Features struct {
	Encoders          bool
	SerialPort        bool
	Attenuators       bool
	MultipleReceivers bool
	ScanTriggerIn     bool
	ScanTriggerOut    bool
}

// Profile is the subset of HardwareProfile the builder needs.
type Profile struct {
	MinFreqMHz      float64
	MaxFreqMHz      float64
	MaxPoints       int
	BandBoundaries  []float64 // descending
	SwitchboardKind SwitchboardKind
	Features        Features
}

// Path mirrors avmu.Path.
type Path int

// PathPair mirrors avmu.PathPair.
type PathPair struct {
	Tx Path
	Rx Path
}

// ExclusionBand mirrors avmu.ExclusionBand.
type ExclusionBand struct {
	StartMHz float64
	StopMHz  float64
}

// TddSettings mirrors avmu.TddSettings.
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

// AttenuationSetting carries the explicit attenuation value a switchboard
// that RequiresAttenuation() needs; Set is false when none was provided.
type AttenuationSetting struct {
	Set   bool
	Value float64
}

// Config is the subset of SweepConfig the builder needs.
type Config struct {
	Frequencies    []float64
	ExclusionBands []ExclusionBand
	MeasuredPaths  []PathPair

	IfGainSet   bool
	IfGainValue int

	Pad12dBEnabled bool

	EncoderEnabled      bool
	EncoderResetOnStart bool

	SerialPortEnabled    bool
	SerialPortBufferSize uint

	EnabledReceivers uint8

	SyncPulseGenerate bool
	SyncPulseReceive  bool

	SendSweepTimer           bool
	ResetFrameCounterOnStart bool

	Tdd *TddSettings

	Attenuation AttenuationSetting
}

// Result is what Build returns: the device program bytes and the
// frequency list after hardware-grid snapping.
type Result struct {
	Program            []byte
	SnappedFrequencies []float64
}
