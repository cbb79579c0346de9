package avmu

import "time"

// ComplexSample is one in-phase/quadrature sample pair.
type ComplexSample struct {
	I float64
	Q float64
}

// SweepDataStruct is one record per measured path per sweep (spec §3). It
// is produced by the receive pipeline and owned by the Task's queue;
// extractSweepData copies it into caller storage.
type SweepDataStruct struct {
	Path PathPair

	// Points has length equal to the configured frequency list's length.
	Points []ComplexSample

	ShaftEncoderLeft  uint32
	ShaftEncoderRight uint32

	SerialDataAge   uint32
	SerialDataBytes []byte

	TimestampTicks   uint32
	TimestampSeconds float64
	PacketNum        uint32
	SweepNumber      uint32
	FrameNum         uint32

	ReceivedAt time.Time
}

// Clone returns a deep copy, used when delivering a record out of the
// queue so a caller mutating SweepDataStruct can't corrupt internal state.
func (s *SweepDataStruct) Clone() *SweepDataStruct {
	out := *s
	out.Points = append([]ComplexSample(nil), s.Points...)
	out.SerialDataBytes = append([]byte(nil), s.SerialDataBytes...)
	return &out
}
