package cancel_test

import (
	"testing"

	"github.com/firasghr/wreqbridge/cancel"
)

func TestRegistry_CancelInvokesFunc(t *testing.T) {
	r := cancel.NewRegistry()
	called := false
	r.Register(1, func() { called = true })

	if !r.Cancel(1) {
		t.Fatal("Cancel: expected true for a registered request_id")
	}
	if !called {
		t.Error("expected the registered CancelFunc to be invoked")
	}
}

func TestRegistry_CancelIsSingleShot(t *testing.T) {
	r := cancel.NewRegistry()
	calls := 0
	r.Register(1, func() { calls++ })

	r.Cancel(1)
	if r.Cancel(1) {
		t.Error("second Cancel on the same request_id must return false")
	}
	if calls != 1 {
		t.Errorf("CancelFunc invoked %d times, want 1", calls)
	}
}

func TestRegistry_CancelUnknownID(t *testing.T) {
	r := cancel.NewRegistry()
	if r.Cancel(42) {
		t.Error("expected false for an unregistered request_id")
	}
}

func TestRegistry_RemoveThenCancelIsNoOp(t *testing.T) {
	r := cancel.NewRegistry()
	called := false
	r.Register(7, func() { called = true })

	r.Remove(7)
	if r.Cancel(7) {
		t.Error("Cancel after Remove must return false")
	}
	if called {
		t.Error("CancelFunc must not be invoked once Removed")
	}
}

func TestRegistry_OnlyAffectsItsOwnID(t *testing.T) {
	r := cancel.NewRegistry()
	var aCalled, bCalled bool
	r.Register(1, func() { aCalled = true })
	r.Register(2, func() { bCalled = true })

	r.Cancel(1)

	if !aCalled {
		t.Error("request 1 should have been cancelled")
	}
	if bCalled {
		t.Error("request 2 must be unaffected by cancelling request 1")
	}
}
