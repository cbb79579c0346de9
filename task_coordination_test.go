package avmu

import (
	"context"
	"errors"
	"testing"
)

func TestCreateSharedTaskSharesTransportWithoutOwningIt(t *testing.T) {
	owner := newUnboundTask(t)
	shared := CreateSharedTask(owner)

	owner.mu.Lock()
	ownerTr := owner.transport
	owner.mu.Unlock()

	shared.mu.Lock()
	sharedTr := shared.transport
	sharedOwns := shared.ownsTransport
	shared.mu.Unlock()

	if sharedTr != ownerTr {
		t.Fatalf("shared task does not share the owner's transport")
	}
	if sharedOwns {
		t.Fatalf("shared task must not claim ownership of the transport")
	}
	if shared.State() != Uninitialized {
		t.Fatalf("shared task state = %v, want Uninitialized", shared.State())
	}

	// Deleting the shared task must not close the transport out from under
	// the owner; the ownership flag checked above is what guarantees that.
	// The owner stays usable afterwards: a ping still fails at the usual
	// endpoint check (no endpoint configured), which runs before the socket
	// is touched.
	if err := shared.Delete(); err != nil {
		t.Fatalf("shared.Delete(): %v", err)
	}
	if err := owner.UtilPingUnit(context.Background(), 1); !errors.Is(err, KindError(ErrMissingIP)) {
		t.Fatalf("err = %v, want ErrMissingIP (owner should remain usable)", err)
	}
}

func TestValidateArrayTasksRejectsEmpty(t *testing.T) {
	if err := ValidateArrayTasks(nil); !errors.Is(err, KindError(ErrTaskArrayInvalid)) {
		t.Fatalf("err = %v, want ErrTaskArrayInvalid", err)
	}
}

func TestValidateArrayTasksRejectsMismatchedHopRates(t *testing.T) {
	a := newUnboundTask(t)
	b := newUnboundTask(t)
	a.mu.Lock()
	a.config.HopRate = Hop1K
	a.mu.Unlock()
	b.mu.Lock()
	b.config.HopRate = Hop2K
	b.mu.Unlock()

	if err := ValidateArrayTasks([]*Task{a, b}); !errors.Is(err, KindError(ErrTaskArrayInvalid)) {
		t.Fatalf("err = %v, want ErrTaskArrayInvalid", err)
	}
}

func TestValidateArrayTasksRejectsMismatchedFrequencyCounts(t *testing.T) {
	a := newUnboundTask(t)
	b := newUnboundTask(t)
	a.mu.Lock()
	a.config.setFrequenciesRaw([]float64{1, 2})
	a.mu.Unlock()
	b.mu.Lock()
	b.config.setFrequenciesRaw([]float64{1})
	b.mu.Unlock()

	if err := ValidateArrayTasks([]*Task{a, b}); !errors.Is(err, KindError(ErrTaskArrayInvalid)) {
		t.Fatalf("err = %v, want ErrTaskArrayInvalid", err)
	}
}

func TestValidateArrayTasksRejectsMultipleGenerators(t *testing.T) {
	a := newUnboundTask(t)
	b := newUnboundTask(t)
	a.mu.Lock()
	a.config.SyncPulseMode = SyncGenerate
	a.mu.Unlock()
	b.mu.Lock()
	b.config.SyncPulseMode = SyncGenerate
	b.mu.Unlock()

	if err := ValidateArrayTasks([]*Task{a, b}); !errors.Is(err, KindError(ErrTaskArrayInvalid)) {
		t.Fatalf("err = %v, want ErrTaskArrayInvalid", err)
	}
}

func TestValidateArrayTasksAcceptsConsistentArray(t *testing.T) {
	a := newUnboundTask(t)
	b := newUnboundTask(t)
	a.mu.Lock()
	a.config.HopRate = Hop1K
	a.config.setFrequenciesRaw([]float64{1, 2})
	a.config.SyncPulseMode = SyncGenerate
	a.mu.Unlock()
	b.mu.Lock()
	b.config.HopRate = Hop1K
	b.config.setFrequenciesRaw([]float64{1, 2})
	b.config.SyncPulseMode = SyncReceive
	b.mu.Unlock()

	if err := ValidateArrayTasks([]*Task{a, b}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateArrayTasksRejectsReceiveWithNoGenerator(t *testing.T) {
	a := newUnboundTask(t)
	b := newUnboundTask(t)
	a.mu.Lock()
	a.config.SyncPulseMode = SyncIgnore
	a.mu.Unlock()
	b.mu.Lock()
	b.config.SyncPulseMode = SyncReceive
	b.mu.Unlock()

	if err := ValidateArrayTasks([]*Task{a, b}); !errors.Is(err, KindError(ErrTaskArrayInvalid)) {
		t.Fatalf("err = %v, want ErrTaskArrayInvalid (no generator driving the sync pulse b listens for)", err)
	}
}

func TestValidateArrayTasksAcceptsAllIgnoreWithNoGenerator(t *testing.T) {
	a := newUnboundTask(t)
	b := newUnboundTask(t)
	a.mu.Lock()
	a.config.SyncPulseMode = SyncIgnore
	a.mu.Unlock()
	b.mu.Lock()
	b.config.SyncPulseMode = SyncIgnore
	b.mu.Unlock()

	if err := ValidateArrayTasks([]*Task{a, b}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBroadcastBeginCommandRejectsTasksNotRunning(t *testing.T) {
	a := newUnboundTask(t)
	a.mu.Lock()
	a.state = Started // Started, not Running: must still be rejected
	a.mu.Unlock()

	if err := BroadcastBeginCommand(context.Background(), []*Task{a}); !errors.Is(err, KindError(ErrWrongState)) {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestBroadcastBeginCommandRejectsTasksWithDifferentTransports(t *testing.T) {
	a := newUnboundTask(t)
	b := newUnboundTask(t) // b has its own private transport, not shared with a
	a.mu.Lock()
	a.state = Running
	a.mu.Unlock()
	b.mu.Lock()
	b.state = Running
	b.mu.Unlock()

	if err := BroadcastBeginCommand(context.Background(), []*Task{a, b}); !errors.Is(err, KindError(ErrTaskArrayInvalid)) {
		t.Fatalf("err = %v, want ErrTaskArrayInvalid", err)
	}
}
