package avmu

import (
	"context"
	"net"

	"github.com/AkelaInc/avmu/transport"
)

// CreateSharedTask returns a new Task in Uninitialized that shares share's
// Transport instead of opening its own UDP socket (spec §4.8). Used to
// control several units on the same host NIC without exhausting ephemeral
// ports, and required for broadcastBeginCommand, which sends one broadcast
// datagram that every peer Task shares.
func CreateSharedTask(share *Task) *Task {
	share.mu.Lock()
	tr := share.transport
	share.mu.Unlock()
	return newTaskWithTransport(tr, false)
}

// ValidateArrayTasks checks that a set of Tasks is coherent for a
// broadcast-synchronized multi-unit acquisition (spec §4.8): a common hop
// rate and frequency-list length across all of them, and compatible
// sync-pulse roles — exactly one SyncGenerate (the rest SyncReceive or
// SyncIgnore), or no SyncGenerate at all, in which case every task must be
// SyncIgnore (a SyncReceive task with no generator in the array has no
// hardware master driving the pulse it's listening for).
func ValidateArrayTasks(tasks []*Task) error {
	if len(tasks) == 0 {
		return newErr(ErrTaskArrayInvalid, "task array is empty")
	}

	first := tasks[0]
	first.mu.Lock()
	wantHop := first.config.HopRate
	wantPoints := len(first.config.frequencies)
	first.mu.Unlock()

	generators := 0
	for _, task := range tasks {
		task.mu.Lock()
		hop := task.config.HopRate
		points := len(task.config.frequencies)
		mode := task.config.SyncPulseMode
		task.mu.Unlock()

		if hop != wantHop {
			return newErr(ErrTaskArrayInvalid, "task %s hop rate %v does not match array hop rate %v", task.ID, hop, wantHop)
		}
		if points != wantPoints {
			return newErr(ErrTaskArrayInvalid, "task %s has %d frequencies, array expects %d", task.ID, points, wantPoints)
		}
		if mode == SyncGenerate {
			generators++
		}
	}
	if generators > 1 {
		return newErr(ErrTaskArrayInvalid, "array has %d sync-pulse generators, at most one is allowed", generators)
	}
	if generators == 0 {
		for _, task := range tasks {
			task.mu.Lock()
			mode := task.config.SyncPulseMode
			task.mu.Unlock()
			if mode != SyncIgnore {
				return newErr(ErrTaskArrayInvalid, "task %s is %v with no sync-pulse generator in the array; with zero generators every task must be SyncIgnore", task.ID, mode)
			}
		}
	}
	return nil
}

// BroadcastBeginCommand sends a single broadcast datagram that starts every
// Task in the array at once (spec §4.8). Every Task must already be Running
// (each one's own beginAsync already performed the Started -> Running
// transition) and must share one Transport (as returned by
// CreateSharedTask); the broadcast address is derived from the first Task's
// peer by setting its host octet to 255, since this module has no independent
// netmask configuration to consult (documented Open Question decision, see
// DESIGN.md).
func BroadcastBeginCommand(ctx context.Context, tasks []*Task) error {
	if err := ValidateArrayTasks(tasks); err != nil {
		return err
	}

	var tr *transport.Transport
	for _, task := range tasks {
		task.mu.Lock()
		if task.state != Running {
			err := newErr(ErrWrongState, "task %s must be running before a broadcast begin, is %s", task.ID, task.state)
			task.mu.Unlock()
			return err
		}
		if tr == nil {
			tr = task.transport
		} else if tr != task.transport {
			task.mu.Unlock()
			return newErr(ErrTaskArrayInvalid, "all tasks in a broadcast array must share one transport (see CreateSharedTask)")
		}
		task.mu.Unlock()
	}

	first := tasks[0]
	first.mu.Lock()
	peerIP := first.peerAddr.IP.To4()
	first.mu.Unlock()
	if peerIP == nil {
		return newErr(ErrMissingIP, "first task has no ipv4 peer")
	}
	broadcastIP := net.IPv4(peerIP[0], peerIP[1], peerIP[2], 255)

	if err := tr.Broadcast(ctx, broadcastIP, transport.OpBroadcastBegin, nil); err != nil {
		return wrapErr(ErrSocket, err, "broadcast begin failed")
	}
	return nil
}
