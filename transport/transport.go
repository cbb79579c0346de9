package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// BroadcastPort is the reserved port that all devices on a subnet honor for
// broadcast commands (spec §6: "device listens on all ports for unicast
// but honors broadcasts only on 1024").
const BroadcastPort = 1024

// MinUnicastPort and MaxUnicastPort bound the legal per-device ports.
const (
	MinUnicastPort = 1025
	MaxUnicastPort = 1279
)

// pendingReply is a single in-flight request awaiting its matching reply.
type pendingReply struct {
	replyCh chan *ReplyFrame
}

// peerState tracks the in-flight exchanges and streamed sweep frames for
// one remote device, keyed by its UDP address. One Transport can multiplex
// many peerStates over a single local socket — the Go analogue of the
// teacher's single control socket serving many radiod channels.
type peerState struct {
	addr *net.UDPAddr

	mu      sync.Mutex
	pending map[uint32]*pendingReply

	sweepCh chan *SweepFrame

	// decodeErrCh signals framing corruption (bad checksum, truncated
	// frame) observed in datagrams from this peer. Unlike a dropped or
	// never-sent datagram, corruption is not ordinary packet loss and
	// must surface to the caller as ErrBytes rather than being silently
	// retried (spec §7).
	decodeErrCh chan error
}

// reportDecodeError records a framing error for this peer without
// blocking the shared receive loop; a full channel means a caller isn't
// draining errors fast enough, and the oldest pending signal is still
// enough to raise ErrBytes.
func (p *peerState) reportDecodeError(err error) {
	select {
	case p.decodeErrCh <- err:
	default:
	}
}

// Transport owns one UDP socket and demultiplexes request/reply exchanges
// and streamed sweep frames by peer address, so it can be shared across
// several Tasks (spec §4.8, §9 "Shared Transport across Tasks").
type Transport struct {
	conn *net.UDPConn

	sendMu sync.Mutex // serializes writes, mirrors the teacher's cmdMu

	seq uint32 // atomically incremented per-request sequence counter

	mu    sync.RWMutex
	peers map[string]*peerState

	closeOnce sync.Once
	closed    chan struct{}
}

// New opens a UDP socket bound to localPort (0 for an ephemeral port) and
// starts its receive loop. The socket options mirror the teacher's
// setupControlSocket: SO_REUSEADDR/SO_REUSEPORT so another socket can bind
// the same local port without EADDRINUSE (CreateSharedTask does not bind
// again; it shares this Transport), with non-blocking reads otherwise left
// to net.UDPConn's deadline-based API.
func New(localPort int) (*Transport, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, rawConn syscall.RawConn) error {
			var ctrlErr error
			err := rawConn.Control(func(fd uintptr) {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
					ctrlErr = e
					return
				}
				// SO_REUSEPORT lets a second socket bind the same port;
				// best-effort.
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", localPort))
	if err != nil {
		return nil, fmt.Errorf("transport: failed to open UDP socket: %w", err)
	}
	conn := pc.(*net.UDPConn)

	t := &Transport{
		conn:   conn,
		peers:  make(map[string]*peerState),
		closed: make(chan struct{}),
	}
	go t.receiveLoop()
	return t, nil
}

// LocalPort reports the port this Transport's socket is bound to.
func (t *Transport) LocalPort() int {
	return t.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close shuts the transport's socket down, unblocking the receive loop and
// any pending requests with ErrInterrupted-equivalent io errors.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

func peerKey(addr *net.UDPAddr) string {
	return addr.String()
}

// RegisterPeer returns the demultiplexing state for addr, creating it if
// this is the first Task to reference that peer. Multiple Tasks sharing a
// Transport but targeting the same peer share the same peerState; Tasks for
// distinct peers get distinct states, so a reply from peer A never leaks
// into peer B's queues (spec §5: "replies from a peer that is not the
// originating Task's peer are forwarded to the correct Task's queue").
func (t *Transport) RegisterPeer(addr *net.UDPAddr) *peerState {
	key := peerKey(addr)

	t.mu.RLock()
	p, ok := t.peers[key]
	t.mu.RUnlock()
	if ok {
		return p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[key]; ok {
		return p
	}
	p = &peerState{
		addr:        addr,
		pending:     make(map[uint32]*pendingReply),
		sweepCh:     make(chan *SweepFrame, 256),
		decodeErrCh: make(chan error, 8),
	}
	t.peers[key] = p
	return p
}

// ForgetPeer drops the demultiplexing state for addr. Used when a Task's
// endpoint changes (setIPAddress/setIPPort) so stale state isn't retained.
func (t *Transport) ForgetPeer(addr *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, peerKey(addr))
}

func (t *Transport) nextSequence() uint32 {
	return atomic.AddUint32(&t.seq, 1)
}

// Request sends a command frame to addr and blocks until the matching reply
// arrives or timeout elapses. It is safe to call concurrently from several
// Tasks sharing this Transport, each targeting its own peer.
func (t *Transport) Request(ctx context.Context, addr *net.UDPAddr, opcode Opcode, payload []byte, timeout time.Duration) (*ReplyFrame, error) {
	peer := t.RegisterPeer(addr)
	seq := t.nextSequence()

	pending := &pendingReply{replyCh: make(chan *ReplyFrame, 1)}
	peer.mu.Lock()
	peer.pending[seq] = pending
	peer.mu.Unlock()
	defer func() {
		peer.mu.Lock()
		delete(peer.pending, seq)
		peer.mu.Unlock()
	}()

	frame := &CommandFrame{Opcode: opcode, Sequence: seq, Payload: payload}
	if err := t.send(addr, frame.Encode()); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-pending.replyCh:
		return reply, nil
	case <-timer.C:
		return nil, fmt.Errorf("transport: no response from %s within %s", addr, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, fmt.Errorf("transport: closed")
	}
}

// send writes raw bytes to addr, serialized against concurrent senders the
// same way the teacher's RadiodController.cmdMu guards sendCommand.
func (t *Transport) send(addr *net.UDPAddr, data []byte) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	_, err := t.conn.WriteToUDP(data, addr)
	if err != nil {
		return fmt.Errorf("transport: write to %s failed: %w", addr, err)
	}
	return nil
}

// Broadcast sends a command frame to the reserved broadcast port (1024) on
// the given subnet broadcast address, for broadcastBeginCommand (spec §4.8).
func (t *Transport) Broadcast(ctx context.Context, broadcastIP net.IP, opcode Opcode, payload []byte) error {
	addr := &net.UDPAddr{IP: broadcastIP, Port: BroadcastPort}
	seq := t.nextSequence()
	frame := &CommandFrame{Opcode: opcode, Sequence: seq, Payload: payload}

	if pc, err := net.ListenPacket("udp4", ":0"); err == nil {
		defer pc.Close()
		if p4 := ipv4.NewPacketConn(pc); p4 != nil {
			_ = p4.SetMulticastTTL(1)
		}
	}

	return t.send(addr, frame.Encode())
}

// SweepChan returns the channel of streamed sweep frames for addr. The
// Task's ReceivePipeline drains this during async measurement.
func (t *Transport) SweepChan(addr *net.UDPAddr) <-chan *SweepFrame {
	return t.RegisterPeer(addr).sweepCh
}

// DecodeErrors returns the channel of framing/decode errors observed in
// datagrams from addr: bad checksums, truncated replies or sweep frames.
// Measure and MeasureAsync select on (or poll) this so corruption surfaces
// as ErrBytes instead of looking like an ordinary dropped packet.
func (t *Transport) DecodeErrors(addr *net.UDPAddr) <-chan error {
	return t.RegisterPeer(addr).decodeErrCh
}

// TakeDecodeError returns the oldest pending decode error for addr without
// blocking, or nil if none is pending.
func (t *Transport) TakeDecodeError(addr *net.UDPAddr) error {
	select {
	case err := <-t.RegisterPeer(addr).decodeErrCh:
		return err
	default:
		return nil
	}
}

// DrainSweeps returns all sweep frames currently buffered for addr without
// blocking, used by the async MeasureAsync drain (the synchronous Measure
// reads SweepChan directly).
func (t *Transport) DrainSweeps(addr *net.UDPAddr) []*SweepFrame {
	ch := t.SweepChan(addr)
	var out []*SweepFrame
	for {
		select {
		case f := <-ch:
			out = append(out, f)
		default:
			return out
		}
	}
}

// receiveLoop is the Transport's single reader goroutine: it reads
// datagrams off the shared socket and demultiplexes them by source address
// and packet type, the same shape as the teacher's listenLoop in
// radiod_status.go.
func (t *Transport) receiveLoop() {
	buf := make([]byte, 65535)
	for {
		select {
		case <-t.closed:
			return
		default:
		}

		t.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-t.closed:
				return
			default:
				continue
			}
		}

		peer := t.RegisterPeer(from)

		ptype, rest, err := ParsePacketType(buf[:n])
		if err != nil {
			peer.reportDecodeError(fmt.Errorf("transport: malformed packet from %s: %w", from, err))
			continue
		}

		switch ptype {
		case PacketTypeReply:
			reply, err := DecodeReplyFrame(rest)
			if err != nil {
				peer.reportDecodeError(fmt.Errorf("transport: corrupt reply frame from %s: %w", from, err))
				continue
			}
			peer.mu.Lock()
			pending, ok := peer.pending[reply.Sequence]
			peer.mu.Unlock()
			if ok {
				select {
				case pending.replyCh <- reply:
				default:
				}
			}
		case PacketTypeSweep:
			frame, err := DecodeSweepFrame(rest)
			if err != nil {
				peer.reportDecodeError(fmt.Errorf("transport: corrupt sweep frame from %s: %w", from, err))
				continue
			}
			select {
			case peer.sweepCh <- frame:
			default:
				// Queue full: oldest-drop behavior is the pipeline's job;
				// here we simply refuse to block the shared receive loop.
			}
		}
	}
}
