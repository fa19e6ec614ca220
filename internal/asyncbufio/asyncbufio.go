// Package asyncbufio provides an io.Writer whose Write hands data to a
// background goroutine, so that many goroutines can append to one slow
// destination (a log file) without waiting on it.
package asyncbufio

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Write and Flush after Close.
var ErrClosed = errors.New("asyncbufio: writer is closed")

// Writer provides asynchronous writing to an underlying io.Writer using buffered channels.
type Writer struct {
	writer        *bufio.Writer // Buffered writer: this does the writing
	flushNow      chan struct{} // Signals the write loop to flush itself
	flushComplete chan struct{} // Signals that a requested flush is complete
	datachannel   chan []byte   // Holds data before writing it
	flushInterval time.Duration // Interval for flushing the writer periodically

	mu      sync.RWMutex // Write/Flush hold it shared; Close holds it exclusively
	closed  bool
	dropped atomic.Uint64
}

// NewWriter creates a new Writer that can hold channelDepth pending writes and
// flushes w at least every flushInterval.
func NewWriter(w io.Writer, channelDepth int, flushInterval time.Duration) *Writer {
	aw := &Writer{
		writer:        bufio.NewWriter(w),
		datachannel:   make(chan []byte, channelDepth),
		flushNow:      make(chan struct{}),
		flushComplete: make(chan struct{}),
		flushInterval: flushInterval,
	}

	go aw.writeLoop()
	return aw
}

// Write copies p onto the channel for later writing. Callers such as
// log.Logger reuse p, hence the copy. If the channel is full the data are
// dropped and io.ErrShortWrite is returned.
func (aw *Writer) Write(p []byte) (int, error) {
	aw.mu.RLock()
	defer aw.mu.RUnlock()
	if aw.closed {
		return 0, ErrClosed
	}

	data := make([]byte, len(p))
	copy(data, p)
	select {
	case aw.datachannel <- data:
		return len(p), nil
	default:
		aw.dropped.Add(1)
		return 0, io.ErrShortWrite
	}
}

// Dropped counts writes lost because the channel was full.
func (aw *Writer) Dropped() uint64 {
	return aw.dropped.Load()
}

// Flush writes everything queued so far to the underlying writer.
// Blocks until the flush is complete.
func (aw *Writer) Flush() error {
	aw.mu.RLock()
	defer aw.mu.RUnlock()
	if aw.closed {
		return ErrClosed
	}
	aw.flushNow <- struct{}{}
	<-aw.flushComplete
	return nil
}

// Close flushes remaining data and waits for the write loop to finish.
// Calling Close more than once is harmless.
func (aw *Writer) Close() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	if aw.closed {
		return nil
	}
	aw.closed = true
	close(aw.flushNow) // signals the writeLoop to exit
	<-aw.flushComplete
	return nil
}

// writeLoop continuously moves data from the channel to the writer.
func (aw *Writer) writeLoop() {
	ticker := time.NewTicker(aw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-aw.datachannel:
			aw.writer.Write(data)

		case _, ok := <-aw.flushNow:
			aw.flush()
			aw.flushComplete <- struct{}{}
			if !ok {
				return
			}

		case <-ticker.C:
			aw.flush()
		}
	}
}

// flush empties the channel before calling the underlying writer's Flush.
func (aw *Writer) flush() {
	for {
		select {
		case data := <-aw.datachannel:
			aw.writer.Write(data)
		default:
			aw.writer.Flush()
			return
		}
	}
}
