package fastpm

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// DefaultCloseTimeout bounds how long Close waits for a cooperative exit.
const DefaultCloseTimeout = 200 * time.Millisecond

// MonitorConfig says which device to run, in what context, and with what
// mailbox and shutdown policies.
type MonitorConfig struct {
	Device DeviceConfig

	// Factory, if set, is used instead of looking Device.Name up in the
	// registry. Factories cannot cross a process boundary, so it is only
	// allowed with IsolateGoroutine.
	Factory DeviceFactory

	Policy       DropPolicy
	Isolation    Isolation
	Shutdown     ShutdownStrategy
	CloseTimeout time.Duration
	MinInterval  time.Duration

	// WorkerCommand starts a worker process (IsolateProcess only). The
	// worker flags are appended. Default: this executable with "worker".
	WorkerCommand []string
	WorkerEnv     []string

	Logger  *log.Logger
	Metrics *MonitorMetrics
}

// MonitorStats summarizes what a Monitor's reader has seen.
type MonitorStats struct {
	Reads      uint64
	EmptyReads uint64
	Skipped    uint64 // sequence numbers produced but never delivered
	LastSeq    uint64
	Forced     bool // Close had to terminate the producer
	Mailbox    MailboxStats
}

// Monitor is the consumer side of the acquisition channel. It starts a
// producer in an isolated context, hands the caller the freshest sample on
// each Read, and shuts the producer down in bounded time on Close.
// Read and Close are meant to be called from one goroutine (a UI tick, say);
// Stats and Alive are safe from any goroutine.
type Monitor struct {
	config  MonitorConfig
	mailbox *Mailbox
	handle  processHandle
	logger  *log.Logger

	mu    sync.Mutex
	stats MonitorStats

	closeOnce sync.Once
}

// NewMonitor validates config and starts the producer. It does not wait for
// the first sample.
func NewMonitor(config MonitorConfig) (*Monitor, error) {
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}
	if config.MinInterval < 0 {
		return nil, fmt.Errorf("min interval %v is negative", config.MinInterval)
	}

	m := &Monitor{
		config:  config,
		mailbox: NewMailbox(config.Policy),
		logger:  config.Logger,
	}

	switch config.Isolation {
	case IsolateGoroutine:
		factory := config.Factory
		if factory == nil {
			var err error
			if factory, err = LookupDevice(config.Device.Name); err != nil {
				return nil, err
			}
		}
		pconfig := ProducerConfig{Factory: factory, Device: config.Device, MinInterval: config.MinInterval}
		m.handle = startGoroutine(pconfig, m.mailbox, m.logger)

	case IsolateProcess:
		if config.Factory != nil {
			return nil, errors.New("a device factory cannot be used with process isolation; register the device by name")
		}
		if _, err := LookupDevice(config.Device.Name); err != nil {
			return nil, err
		}
		command := config.WorkerCommand
		if len(command) == 0 {
			exe, err := os.Executable()
			if err != nil {
				return nil, err
			}
			command = []string{exe, "worker"}
		}
		pconfig := ProducerConfig{Device: config.Device, MinInterval: config.MinInterval}
		h, err := startSubprocess(command, config.WorkerEnv, pconfig, m.mailbox, m.logger)
		if err != nil {
			return nil, err
		}
		m.handle = h

	default:
		return nil, fmt.Errorf("isolation %v is not supported", config.Isolation)
	}

	m.logger.Printf("Monitor started: device %q, %v isolation, %v policy, %v shutdown after %v",
		config.Device.Name, config.Isolation, config.Policy, config.Shutdown, config.CloseTimeout)
	return m, nil
}

// Read returns the newest sample not yet read, or false if there is none.
// It never blocks. After Close it always returns false.
func (m *Monitor) Read() (Sample, bool) {
	s, ok := m.mailbox.TryTake()
	if !ok && m.mailbox.Closed() {
		return Sample{}, false
	}

	m.mu.Lock()
	if !ok {
		m.stats.EmptyReads++
		m.mu.Unlock()
		m.config.Metrics.observeEmpty()
		return Sample{}, false
	}
	var skipped uint64
	if s.Seq > m.stats.LastSeq+1 {
		skipped = s.Seq - m.stats.LastSeq - 1
	}
	m.stats.Reads++
	m.stats.Skipped += skipped
	m.stats.LastSeq = s.Seq
	m.mu.Unlock()

	m.config.Metrics.observeRead(s, skipped)
	return s, true
}

// Close asks the producer to stop and waits at most the close timeout for it.
// If the producer is still running after that, the ShutdownStrategy decides
// whether it is terminated or left to finish on its own. Close never fails and
// is idempotent.
func (m *Monitor) Close() {
	m.closeOnce.Do(m.close)
}

func (m *Monitor) close() {
	start := time.Now()
	if !m.handle.signal() {
		m.logger.Printf("Monitor close: %s was already requested", Shutdown)
	}

	timer := time.NewTimer(m.config.CloseTimeout)
	defer timer.Stop()
	select {
	case <-m.handle.exited():
		m.logger.Printf("Monitor close: producer exited after %v", time.Since(start))

	case <-timer.C:
		switch m.config.Shutdown {
		case TerminateAfterTimeout:
			m.logger.Printf("WARNING: producer did not exit within %v; terminating it", m.config.CloseTimeout)
			if err := m.handle.terminate(); err != nil {
				m.logger.Printf("WARNING: producer termination failed: %v", err)
			}
			m.mu.Lock()
			m.stats.Forced = true
			m.mu.Unlock()
			m.config.Metrics.observeForcedClose()
		default:
			m.logger.Printf("WARNING: producer did not exit within %v; leaving it to stop at its next check-in",
				m.config.CloseTimeout)
		}
	}
	m.mailbox.Close()
}

// Alive reports whether the producer's execution context is still running.
func (m *Monitor) Alive() bool {
	return m.handle.alive()
}

// Exited is closed once the producer's execution context has ended.
func (m *Monitor) Exited() <-chan struct{} {
	return m.handle.exited()
}

// Stats returns a snapshot of the reader-side counters.
func (m *Monitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats
	st.Mailbox = m.mailbox.Stats()
	return st
}

// Config returns the configuration the Monitor was built with, defaults filled in.
func (m *Monitor) Config() MonitorConfig {
	return m.config
}
