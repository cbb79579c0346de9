// Package avmu is the host-side control-plane core for a family of
// networked Vector Measurement Units (VMUs): UDP-connected RF sweep
// instruments that return coherent I/Q samples for a configured set of
// transmit/receive path combinations (spec.md §1).
package avmu

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AkelaInc/avmu/internal/avmulog"
	"github.com/AkelaInc/avmu/pipeline"
	"github.com/AkelaInc/avmu/transport"
)

// TaskState is one of the four states in the Task lifecycle (spec §4.1).
type TaskState int

const (
	Uninitialized TaskState = iota
	Stopped
	Started
	Running
)

func (s TaskState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Stopped:
		return "stopped"
	case Started:
		return "started"
	case Running:
		return "running"
	default:
		return "unknown-state"
	}
}

// DefaultTimeoutMs is the default reply timeout, spec §3.
const DefaultTimeoutMs = 100

// Task is a per-device control object: the identity at the center of this
// module (spec §3). Its handle identity is its uuid.UUID ID — the Go
// analogue of the C ABI's opaque TaskHandle (spec §9 Design Notes), backed
// here by direct object ownership rather than a process-wide handle table,
// since Go callers hold a *Task directly.
type Task struct {
	ID uuid.UUID

	mu sync.Mutex

	state     TaskState
	transport *transport.Transport
	ownsTransport bool
	peerAddr  *net.UDPAddr

	config  *SweepConfig
	profile HardwareProfile
	hasProfile bool

	timeoutMs uint

	pipeline *pipeline.Pipeline

	// programPaths is the measured-paths snapshot taken at the most recent
	// start(); it fixes the path-index <-> (tx,rx) mapping the pipeline
	// uses until the next start(), since SweepConfig is free to change
	// again once the Task returns to Stopped.
	programPaths []PathPair

	log *avmulog.Logger

	// interruptCh is intentionally not guarded by mu: interruptMeasurement
	// must be callable from any thread without risking a deadlock against
	// a thread blocked inside measure() while holding mu (spec §5).
	interruptCh chan struct{}
}

// NewTask creates a Task in the Uninitialized state with its own private
// Transport (spec: createTask()).
func NewTask() (*Task, error) {
	tr, err := transport.New(0)
	if err != nil {
		return nil, wrapErr(ErrSocket, err, "failed to create transport")
	}
	return newTaskWithTransport(tr, true), nil
}

func newTaskWithTransport(tr *transport.Transport, owns bool) *Task {
	t := &Task{
		ID:            uuid.New(),
		state:         Uninitialized,
		transport:     tr,
		ownsTransport: owns,
		config:        NewSweepConfig(),
		timeoutMs:     DefaultTimeoutMs,
		pipeline:      pipeline.New(pipeline.DecodeParams{}, 64),
		interruptCh:   make(chan struct{}, 1),
	}
	t.log = avmulog.New("unbound")
	return t
}

// Delete releases the Task's resources. If it owns its Transport (was not
// created via createSharedTask), the Transport's socket is closed too —
// spec §9: "deleteTask() guarantees release on all exit paths."
func (t *Task) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ownsTransport {
		return t.transport.Close()
	}
	return nil
}

// State returns the Task's current state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) requireState(want TaskState) error {
	if t.state != want {
		return newErr(ErrWrongState, "operation requires state %s, task is %s", want, t.state)
	}
	return nil
}

func (t *Task) requireConfigurable() error {
	if t.state != Uninitialized && t.state != Stopped {
		return newErr(ErrWrongState, "configuration mutators require state uninitialized or stopped, task is %s", t.state)
	}
	return nil
}

// SetIPAddress sets the device's IPv4 address. Valid only in Uninitialized
// or Stopped; forces the Task back to Uninitialized, discarding any cached
// HardwareProfile (spec §4.1) because a different device may now be
// targeted.
func (t *Task) SetIPAddress(ipv4 string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if ipv4 == "" {
		return newErr(ErrMissingIP, "ipv4 address is empty")
	}
	if net.ParseIP(ipv4) == nil {
		return newErr(ErrMissingIP, "ipv4 address %q does not parse", ipv4)
	}
	t.config.IPv4 = ipv4
	t.invalidateProfileLocked()
	t.refreshPeerLocked()
	t.log.SetPrefix(t.peerLabel())
	return nil
}

// GetIPAddress returns the configured IPv4 address.
func (t *Task) GetIPAddress() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.IPv4
}

// SetIPPort sets the device's UDP port, which must be in [1025, 1279]
// (spec §3; port 1024 is reserved for broadcast). Same state/invalidation
// rules as SetIPAddress.
func (t *Task) SetIPPort(port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	if !validPort(port) {
		return newErr(ErrBadIPPort, "port %d out of range [%d,%d]", port, MinDevicePort, MaxDevicePort)
	}
	t.config.Port = port
	t.invalidateProfileLocked()
	t.refreshPeerLocked()
	t.log.SetPrefix(t.peerLabel())
	return nil
}

// GetIPPort returns the configured port.
func (t *Task) GetIPPort() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.Port
}

func (t *Task) invalidateProfileLocked() {
	t.state = Uninitialized
	t.profile = HardwareProfile{}
	t.hasProfile = false
}

func (t *Task) refreshPeerLocked() {
	if t.config.IPv4 == "" || t.config.Port == 0 {
		t.peerAddr = nil
		return
	}
	if old := t.peerAddr; old != nil {
		t.transport.ForgetPeer(old)
	}
	t.peerAddr = &net.UDPAddr{IP: net.ParseIP(t.config.IPv4), Port: t.config.Port}
}

func (t *Task) peerLabel() string {
	if t.peerAddr == nil {
		return "unbound"
	}
	return t.peerAddr.String()
}

// SetTimeout sets the reply timeout in milliseconds (spec §4.9; default
// 100). A value of 0 is treated as a non-blocking poll (spec §9 Open
// Questions: the source leaves this TODO; we pick the documented
// interpretation rather than guess at anything stricter).
func (t *Task) SetTimeout(ms uint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeoutMs = ms
	return nil
}

// GetTimeout returns the configured reply timeout in milliseconds.
func (t *Task) GetTimeout() uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeoutMs
}

func (t *Task) timeoutDuration() time.Duration {
	return time.Duration(t.timeoutMs) * time.Millisecond
}

// SetMeasurementType selects sync or async acquisition. Valid only in
// Uninitialized or Stopped (spec §4.1).
func (t *Task) SetMeasurementType(pt ProgramType) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConfigurable(); err != nil {
		return err
	}
	t.config.MeasurementType = pt
	return nil
}

// GetMeasurementType returns the configured acquisition mode.
func (t *Task) GetMeasurementType() ProgramType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.MeasurementType
}

// GetHardwareDetails returns the cached HardwareProfile, or a zero-valued
// one before initialize has ever succeeded (spec §4.9).
func (t *Task) GetHardwareDetails() HardwareProfile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.profile
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{%s, %s, state=%s}", t.ID, t.peerLabel(), t.state)
}
