package fastpm

// ControlSignal is the only message the consumer ever sends to a producer.
type ControlSignal int

// Shutdown asks the producer to stop sampling and exit.
const Shutdown ControlSignal = iota + 1

func (c ControlSignal) String() string {
	if c == Shutdown {
		return "Shutdown"
	}
	return "ControlSignal(?)"
}

// ControlChannel carries at most one ControlSignal from consumer to producer.
// A signal, once sent, is never replaced.
type ControlChannel struct {
	ch chan ControlSignal
}

// NewControlChannel creates an empty ControlChannel.
func NewControlChannel() *ControlChannel {
	return &ControlChannel{ch: make(chan ControlSignal, 1)}
}

// Signal sends Shutdown without blocking. It returns false when a signal is
// already pending, which callers treat as "shutdown already requested".
func (cc *ControlChannel) Signal() bool {
	select {
	case cc.ch <- Shutdown:
		return true
	default:
		return false
	}
}

// Poll receives a pending signal without blocking.
func (cc *ControlChannel) Poll() (ControlSignal, bool) {
	select {
	case sig := <-cc.ch:
		return sig, true
	default:
		return 0, false
	}
}

// C exposes the receive side for use in a select.
func (cc *ControlChannel) C() <-chan ControlSignal {
	return cc.ch
}
