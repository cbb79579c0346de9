package avmu

// SwitchboardKind identifies the RF front-end routing matrix variant
// reported by the device's PROM during initialize (spec §3).
type SwitchboardKind int

const (
	SwitchNoSwitch SwitchboardKind = iota
	SwitchSimple4
	SwitchTdd4
	SwitchSimple8
	SwitchSParameter
)

func (k SwitchboardKind) String() string {
	switch k {
	case SwitchNoSwitch:
		return "no-switch"
	case SwitchSimple4:
		return "simple-4"
	case SwitchTdd4:
		return "tdd-4"
	case SwitchSimple8:
		return "simple-8"
	case SwitchSParameter:
		return "s-parameter"
	default:
		return "unknown-switchboard"
	}
}

// requiresAttenuation reports whether this switchboard demands a set
// attenuation value before start() (spec §4.4).
func (k SwitchboardKind) requiresAttenuation() bool {
	return k == SwitchSimple8 || k == SwitchSParameter
}

// HardwareFeatures is the feature-flag bundle from spec §3.
type HardwareFeatures struct {
	Encoders           bool
	SerialPort         bool
	Attenuators        bool
	MultipleReceivers  bool
	ScanTriggerIn      bool
	ScanTriggerOut     bool
}

// HardwareProfile is the immutable snapshot obtained during initialize
// (spec §3, §4.2). It is the zero value before initialize ever succeeds
// (getHardwareDetails returns a zeroed profile before initialize, §4.9).
type HardwareProfile struct {
	MinFreqMHz      float64
	MaxFreqMHz      float64
	MaxPoints       int
	SerialNumber    int
	BandBoundaries  []float64 // descending order, <= 8 entries
	SwitchboardKind SwitchboardKind
	Features        HardwareFeatures

	// FirmwareVersion is populated from the PROM (supplemented feature,
	// see SPEC_FULL.md) and compared against the minimum version this
	// driver understands.
	FirmwareVersion string
}

// validate checks the internal-consistency invariant from spec §3: a
// switchboard that both requires and forbids attenuation is rejected.
func (p *HardwareProfile) validate() error {
	if p.SwitchboardKind.requiresAttenuation() && !p.Features.Attenuators {
		return newErr(ErrPromInvalidFeatureConfiguration,
			"switchboard %s requires attenuation but hardware reports no attenuators", p.SwitchboardKind)
	}
	if p.SwitchboardKind == SwitchNoSwitch && p.Features.Attenuators {
		return newErr(ErrPromInvalidFeatureConfiguration,
			"switchboard %s forbids attenuation but hardware reports attenuators present", p.SwitchboardKind)
	}
	return nil
}
