package fastpm

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DropPolicy says what a full Mailbox does with a new sample.
type DropPolicy int

// Names for the possible values of DropPolicy
const (
	Overwrite     DropPolicy = iota // New sample replaces the unread one (drop-oldest)
	DiscardNewest                   // New sample is thrown away (drop-newest)
)

func (p DropPolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case DiscardNewest:
		return "discard"
	}
	return fmt.Sprintf("DropPolicy(%d)", int(p))
}

// ParseDropPolicy converts a configuration string to a DropPolicy.
func ParseDropPolicy(name string) (DropPolicy, error) {
	switch strings.ToLower(name) {
	case "", "overwrite", "drop-oldest":
		return Overwrite, nil
	case "discard", "drop-newest":
		return DiscardNewest, nil
	}
	return Overwrite, fmt.Errorf("drop policy %q is not recognized", name)
}

// Errors returned by Mailbox.TakeBlocking.
var (
	ErrTimeout       = errors.New("timed out waiting for a sample")
	ErrMailboxClosed = errors.New("mailbox is closed")
)

// MailboxStats counts what has happened to a Mailbox.
type MailboxStats struct {
	Puts       uint64 // samples stored
	Overwrites uint64 // unread samples replaced by a newer one
	Discards   uint64 // new samples rejected because the slot was full
	Takes      uint64 // samples handed to a reader
}

// Mailbox is a single-slot buffer between one producer and one consumer.
// Neither TryPut nor TryTake ever blocks. All slot transitions happen under mu,
// so a concurrent put and take cannot both claim the same sample.
type Mailbox struct {
	policy DropPolicy

	mu     sync.Mutex
	sample Sample
	full   bool
	closed bool
	stats  MailboxStats

	ready chan struct{} // nudges TakeBlocking after a put
	done  chan struct{} // closed by Close
}

// NewMailbox creates an empty Mailbox with the given policy.
func NewMailbox(policy DropPolicy) *Mailbox {
	return &Mailbox{
		policy: policy,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Policy returns the drop policy fixed at construction.
func (mb *Mailbox) Policy() DropPolicy {
	return mb.policy
}

// TryPut offers s to the mailbox and reports whether it was stored.
func (mb *Mailbox) TryPut(s Sample) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return false
	}
	if mb.full {
		if mb.policy == DiscardNewest {
			mb.stats.Discards++
			return false
		}
		mb.stats.Overwrites++
	}
	mb.sample = s
	mb.full = true
	mb.stats.Puts++

	select {
	case mb.ready <- struct{}{}:
	default:
	}
	return true
}

// TryTake removes and returns the pending sample, if there is one.
func (mb *Mailbox) TryTake() (Sample, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed || !mb.full {
		return Sample{}, false
	}
	s := mb.sample
	mb.sample = Sample{}
	mb.full = false
	mb.stats.Takes++
	return s, true
}

// TakeBlocking waits up to timeout for a sample. It returns ErrTimeout if none
// arrives in time and ErrMailboxClosed if the mailbox is or becomes closed.
func (mb *Mailbox) TakeBlocking(timeout time.Duration) (Sample, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if s, ok := mb.TryTake(); ok {
			return s, nil
		}
		if mb.Closed() {
			return Sample{}, ErrMailboxClosed
		}
		select {
		case <-mb.ready:
		case <-mb.done:
			return Sample{}, ErrMailboxClosed
		case <-timer.C:
			return Sample{}, ErrTimeout
		}
	}
}

// Close discards any pending sample. Later puts are ignored and later takes
// find nothing. Close is idempotent.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	mb.full = false
	mb.sample = Sample{}
	close(mb.done)
}

// Closed reports whether Close has been called.
func (mb *Mailbox) Closed() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.closed
}

// Stats returns a snapshot of the mailbox counters.
func (mb *Mailbox) Stats() MailboxStats {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.stats
}
