package fastpm

import "testing"

func TestControlChannel(t *testing.T) {
	cc := NewControlChannel()
	if _, ok := cc.Poll(); ok {
		t.Errorf("Poll on a new ControlChannel found a signal")
	}
	if !cc.Signal() {
		t.Errorf("first Signal() returned false")
	}
	if cc.Signal() {
		t.Errorf("second Signal() returned true while the first is pending")
	}
	sig, ok := cc.Poll()
	if !ok || sig != Shutdown {
		t.Errorf("Poll() = %v, %t, want Shutdown, true", sig, ok)
	}
	if sig.String() != "Shutdown" {
		t.Errorf("Shutdown.String() = %q", sig.String())
	}

	cc.Signal()
	select {
	case sig := <-cc.C():
		if sig != Shutdown {
			t.Errorf("C() delivered %v", sig)
		}
	default:
		t.Errorf("C() did not deliver a pending signal")
	}
}
