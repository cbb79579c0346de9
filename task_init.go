package avmu

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/hashicorp/go-version"

	"github.com/AkelaInc/avmu/transport"
)

// promChunkSize is a nominal PROM chunk size kept well under typical UDP
// MTU. It is not sent to the device: an OpPromRead request carries only the
// offset, and the device decides each reply's length. A failed chunk
// exchange aborts initialization; it is not retried.
const promChunkSize = 256

// minFirmwareVersion is the oldest PROM firmware revision this driver
// understands. Older units still answer OpCapabilitiesQuery but report a
// version string initialize() refuses, rather than silently misreading a
// PROM layout that predates a field.
var minFirmwareVersion = version.Must(version.NewVersion("1.2.0"))

const (
	featBitEncoders          = 1 << 0
	featBitSerialPort        = 1 << 1
	featBitAttenuators       = 1 << 2
	featBitMultipleReceivers = 1 << 3
	featBitScanTriggerIn     = 1 << 4
	featBitScanTriggerOut    = 1 << 5
	knownFeatureBits         = featBitEncoders | featBitSerialPort | featBitAttenuators |
		featBitMultipleReceivers | featBitScanTriggerIn | featBitScanTriggerOut
)

const maxBandBoundaries = 8

// ProgressFunc reports PROM-download progress as a percentage in [0, 100].
// Returning false aborts initialize() with ErrInterrupted, leaving the Task
// in Uninitialized (spec §4.2).
type ProgressFunc func(percent int) bool

// Initialize queries the device's capabilities, downloads its PROM, and
// derives the HardwareProfile (spec §4.2). Valid only from Uninitialized;
// on success the Task moves to Stopped. progress may be nil.
func (t *Task) Initialize(ctx context.Context, progress ProgressFunc) error {
	t.mu.Lock()
	if err := t.requireState(Uninitialized); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.config.IPv4 == "" {
		t.mu.Unlock()
		return newErr(ErrMissingIP, "ip address not set")
	}
	if t.config.Port == 0 {
		t.mu.Unlock()
		return newErr(ErrMissingPort, "ip port not set")
	}
	peer := t.peerAddr
	tr := t.transport
	timeout := t.timeoutDuration()
	t.mu.Unlock()

	if _, err := tr.Request(ctx, peer, transport.OpCapabilitiesQuery, nil, timeout); err != nil {
		return wrapErr(ErrNoResponse, err, "capabilities query failed")
	}

	sizeReply, err := tr.Request(ctx, peer, transport.OpPromRead, encodeU32(0), timeout)
	if err != nil {
		return wrapErr(ErrNoResponse, err, "prom size probe failed")
	}
	if len(sizeReply.Payload) < 4 {
		return newErr(ErrBytes, "prom size reply too short")
	}
	total := binary.BigEndian.Uint32(sizeReply.Payload[0:4])
	if total == 0 {
		return newErr(ErrEmptyProm, "device reports an empty prom")
	}

	prom := make([]byte, 0, total)
	for uint32(len(prom)) < total {
		offset := uint32(len(prom))
		reply, err := tr.Request(ctx, peer, transport.OpPromRead, encodeU32(offset), timeout)
		if err != nil {
			return wrapErr(ErrNoResponse, err, "prom chunk at offset %d failed", offset)
		}
		if len(reply.Payload) == 0 {
			return newErr(ErrBadProm, "prom chunk at offset %d was empty", offset)
		}
		prom = append(prom, reply.Payload...)

		if progress != nil {
			percent := int(uint64(len(prom)) * 100 / uint64(total))
			if percent > 100 {
				percent = 100
			}
			if !progress(percent) {
				return newErr(ErrInterrupted, "initialize aborted by progress callback")
			}
		}
	}
	if uint32(len(prom)) > total {
		prom = prom[:total]
	}

	profile, err := decodeProm(prom)
	if err != nil {
		return err
	}
	if err := profile.validate(); err != nil {
		return err
	}

	if fw, err := version.NewVersion(profile.FirmwareVersion); err != nil {
		return wrapErr(ErrBadProm, err, "prom firmware version %q does not parse", profile.FirmwareVersion)
	} else if fw.LessThan(minFirmwareVersion) {
		return newErr(ErrBadProm, "firmware version %s is older than the minimum supported %s", fw, minFirmwareVersion)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Uninitialized {
		// Endpoint changed mid-download (setIPAddress/setIPPort reset us);
		// the profile we just fetched may belong to the wrong device.
		return newErr(ErrInterrupted, "endpoint changed during initialize")
	}
	t.profile = profile
	t.hasProfile = true
	t.state = Stopped
	return nil
}

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// decodeProm parses the fixed-layout capability block a device reports in
// response to OpPromRead (spec §3, §9 supplemented features): two
// float64 frequency bounds, a point/serial-number pair, a switchboard kind
// byte, a feature bitmask, up to 8 descending band boundaries, and a
// length-prefixed firmware version string.
func decodeProm(b []byte) (HardwareProfile, error) {
	const fixedLen = 8 + 8 + 4 + 4 + 1 + 1 + 1 // minFreq, maxFreq, maxPoints, serial, switchboard, features, numBands
	if len(b) < fixedLen {
		return HardwareProfile{}, newErr(ErrBadProm, "prom too short: %d bytes", len(b))
	}

	var p HardwareProfile
	p.MinFreqMHz = math.Float64frombits(binary.BigEndian.Uint64(b[0:8]))
	p.MaxFreqMHz = math.Float64frombits(binary.BigEndian.Uint64(b[8:16]))
	p.MaxPoints = int(binary.BigEndian.Uint32(b[16:20]))
	p.SerialNumber = int(binary.BigEndian.Uint32(b[20:24]))
	p.SwitchboardKind = SwitchboardKind(b[24])
	if p.SwitchboardKind > SwitchSParameter {
		return HardwareProfile{}, newErr(ErrBadProm, "prom reports unknown switchboard kind %d", b[24])
	}

	features := b[25]
	if features&^byte(knownFeatureBits) != 0 {
		return HardwareProfile{}, newErr(ErrUnknownFeature, "prom reports unknown feature bits %#02x", features)
	}
	p.Features = HardwareFeatures{
		Encoders:          features&featBitEncoders != 0,
		SerialPort:        features&featBitSerialPort != 0,
		Attenuators:       features&featBitAttenuators != 0,
		MultipleReceivers: features&featBitMultipleReceivers != 0,
		ScanTriggerIn:     features&featBitScanTriggerIn != 0,
		ScanTriggerOut:    features&featBitScanTriggerOut != 0,
	}

	numBands := int(b[26])
	if numBands > maxBandBoundaries {
		return HardwareProfile{}, newErr(ErrBadProm, "prom reports %d band boundaries, max is %d", numBands, maxBandBoundaries)
	}
	cursor := fixedLen
	if len(b) < cursor+numBands*8+1 {
		return HardwareProfile{}, newErr(ErrBadProm, "prom truncated in band-boundary block")
	}
	p.BandBoundaries = make([]float64, numBands)
	for i := 0; i < numBands; i++ {
		p.BandBoundaries[i] = math.Float64frombits(binary.BigEndian.Uint64(b[cursor : cursor+8]))
		cursor += 8
	}

	fwLen := int(b[cursor])
	cursor++
	if len(b) < cursor+fwLen {
		return HardwareProfile{}, newErr(ErrBadProm, "prom truncated in firmware-version block")
	}
	p.FirmwareVersion = string(b[cursor : cursor+fwLen])

	return p, nil
}
