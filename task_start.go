package avmu

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"time"

	"github.com/AkelaInc/avmu/pipeline"
	"github.com/AkelaInc/avmu/program"
	"github.com/AkelaInc/avmu/transport"
)

// programChunkSize bounds how many program bytes go in one OpProgramChunk
// datagram, mirroring the PROM download's chunking discipline.
const programChunkSize = 1024

// Start compiles the current SweepConfig into a device program via the
// ProgramBuilder, uploads it, and commits it (spec §4.4). Valid only from
// Stopped; on success the Task moves to Started.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if err := t.requireState(Stopped); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.config.HopRate == HopUndefined {
		t.mu.Unlock()
		return newErr(ErrMissingHop, "hop rate not set")
	}
	if t.config.HopRate == Hop90K {
		t.mu.Unlock()
		return newErr(ErrBadHop, "90k samples/sec is reported by the prom but rejected at start")
	}
	if len(t.config.frequencies) == 0 {
		t.mu.Unlock()
		return newErr(ErrMissingFreqs, "no frequencies configured")
	}

	profile := toBuilderProfile(t.profile)
	cfg := t.toBuilderConfig()
	peer := t.peerAddr
	tr := t.transport
	timeout := t.timeoutDuration()
	t.mu.Unlock()

	result, err := program.Build(profile, cfg)
	if err != nil {
		return mapBuildError(err)
	}

	if err := uploadProgram(ctx, tr, peer, timeout, result.Program); err != nil {
		return err
	}

	if _, err := tr.Request(ctx, peer, transport.OpStart, nil, timeout); err != nil {
		return wrapErr(ErrNoResponse, err, "start command failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Stopped {
		return newErr(ErrWrongState, "task left stopped state during start()")
	}
	t.config.setFrequenciesRaw(result.SnappedFrequencies)
	t.programPaths = append([]PathPair(nil), t.config.measuredPaths...)
	t.pipeline.SetParams(pipeline.DecodeParams{
		NumPoints:        len(result.SnappedFrequencies),
		NumPaths:         len(t.programPaths),
		EncoderEnabled:   t.config.Encoder.Enabled,
		SerialPortBuffer: int(t.config.SerialPort.BufferSize),
	})
	t.pipeline.Reset()
	t.state = Started
	return nil
}

// Stop halts acquisition and returns the Task to Stopped (spec §4.4). Valid
// from Started or Running.
func (t *Task) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.state != Started && t.state != Running {
		t.mu.Unlock()
		return newErr(ErrWrongState, "stop requires state started or running, task is %s", t.state)
	}
	peer := t.peerAddr
	tr := t.transport
	timeout := t.timeoutDuration()
	t.mu.Unlock()

	if _, err := tr.Request(ctx, peer, transport.OpStop, nil, timeout); err != nil {
		return wrapErr(ErrNoResponse, err, "stop command failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pipeline.Reset()
	t.state = Stopped
	return nil
}

func uploadProgram(ctx context.Context, tr *transport.Transport, peer *net.UDPAddr, timeout time.Duration, data []byte) error {
	for offset := 0; offset < len(data); offset += programChunkSize {
		end := offset + programChunkSize
		if end > len(data) {
			end = len(data)
		}
		payload := make([]byte, 4+(end-offset))
		binary.BigEndian.PutUint32(payload[0:4], uint32(offset))
		copy(payload[4:], data[offset:end])
		if _, err := tr.Request(ctx, peer, transport.OpProgramChunk, payload, timeout); err != nil {
			return wrapErr(ErrNoResponse, err, "program chunk at offset %d failed", offset)
		}
	}
	if _, err := tr.Request(ctx, peer, transport.OpProgramCommit, nil, timeout); err != nil {
		return wrapErr(ErrNoResponse, err, "program commit failed")
	}
	return nil
}

func mapBuildError(err error) error {
	switch {
	case errors.Is(err, program.ErrNoPathsMeasured):
		return newErr(ErrNoPathsMeasured, "no paths configured to measure")
	case errors.Is(err, program.ErrMissingAttenuation):
		return newErr(ErrMissingAtten, "switchboard requires an attenuation value")
	case errors.Is(err, program.ErrTddRequired):
		return newErr(ErrFeatureNotPresent, "tdd switchboard selected but no tdd settings configured")
	case errors.Is(err, program.ErrOverflow):
		return newErr(ErrProgOverflow, "generated program exceeds device instruction memory")
	default:
		return wrapErr(ErrBytes, err, "program build failed")
	}
}

func toBuilderProfile(p HardwareProfile) program.Profile {
	return program.Profile{
		MinFreqMHz:      p.MinFreqMHz,
		MaxFreqMHz:      p.MaxFreqMHz,
		MaxPoints:       p.MaxPoints,
		BandBoundaries:  p.BandBoundaries,
		SwitchboardKind: program.SwitchboardKind(p.SwitchboardKind),
		Features: program.Features{
			Encoders:          p.Features.Encoders,
			SerialPort:        p.Features.SerialPort,
			Attenuators:       p.Features.Attenuators,
			MultipleReceivers: p.Features.MultipleReceivers,
			ScanTriggerIn:     p.Features.ScanTriggerIn,
			ScanTriggerOut:    p.Features.ScanTriggerOut,
		},
	}
}

func (t *Task) toBuilderConfig() program.Config {
	bands := make([]program.ExclusionBand, len(t.config.exclusionBands))
	for i, b := range t.config.exclusionBands {
		bands[i] = program.ExclusionBand{StartMHz: b.StartMHz, StopMHz: b.StopMHz}
	}
	paths := make([]program.PathPair, len(t.config.measuredPaths))
	for i, p := range t.config.measuredPaths {
		paths[i] = program.PathPair{Tx: program.Path(p.Tx), Rx: program.Path(p.Rx)}
	}
	var tdd *program.TddSettings
	if t.config.Tdd != nil {
		tdd = &program.TddSettings{
			Active:            t.config.Tdd.Active,
			Enabled:           t.config.Tdd.Enabled,
			Nulling:           t.config.Tdd.Nulling,
			PowerAmp:          t.config.Tdd.PowerAmp,
			Slave:             t.config.Tdd.Slave,
			AttenuatorEnabled: t.config.Tdd.AttenuatorEnabled,
			AttenuatorValue:   t.config.Tdd.AttenuatorValue,
			Lna:               t.config.Tdd.Lna,
			Tx:                t.config.Tdd.Tx,
			TxToRx1:           t.config.Tdd.TxToRx1,
			Rx1:               t.config.Tdd.Rx1,
			Rx1ToRx2:          t.config.Tdd.Rx1ToRx2,
			Rx2:               t.config.Tdd.Rx2,
			Rx2ToTx:           t.config.Tdd.Rx2ToTx,
		}
	}

	ifGainSet := t.config.IfGain != IfGainUseDefault
	ifGainValue := 0
	if ifGainSet {
		ifGainValue = int(t.config.IfGain)
	}

	return program.Config{
		Frequencies:              t.config.frequencies,
		ExclusionBands:           bands,
		MeasuredPaths:            paths,
		IfGainSet:                ifGainSet,
		IfGainValue:              ifGainValue,
		Pad12dBEnabled:           t.config.Pad12dBEnabled,
		EncoderEnabled:           t.config.Encoder.Enabled,
		EncoderResetOnStart:      t.config.Encoder.ResetOnStart,
		SerialPortEnabled:        t.config.SerialPort.Enabled,
		SerialPortBufferSize:     t.config.SerialPort.BufferSize,
		EnabledReceivers:         t.config.EnabledReceivers,
		SyncPulseGenerate:        t.config.SyncPulseMode == SyncGenerate,
		SyncPulseReceive:         t.config.SyncPulseMode == SyncReceive,
		SendSweepTimer:           t.config.SendSweepTimer,
		ResetFrameCounterOnStart: t.config.ResetFrameCounterOnStart,
		Tdd:                      tdd,
		Attenuation:              program.AttenuationSetting{Set: t.config.AttenuationSet, Value: t.config.Attenuation},
	}
}
