package fastpm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeSlack is how far past its timeout Close may run.
const closeSlack = 50 * time.Millisecond

var isolations = []Isolation{IsolateGoroutine, IsolateProcess}

func newTestMonitor(t *testing.T, config MonitorConfig) *Monitor {
	t.Helper()
	if config.Isolation == IsolateProcess {
		config = testWorkerConfig(config)
	}
	config.Logger = discardLogger()
	m, err := NewMonitor(config)
	require.NoError(t, err)
	return m
}

func timeClose(m *Monitor) time.Duration {
	start := time.Now()
	m.Close()
	return time.Since(start)
}

func TestMonitorReadsSimulatedPowerMeter(t *testing.T) {
	for _, iso := range isolations {
		t.Run(iso.String(), func(t *testing.T) {
			// Regulated so that 1e-6*n cannot pass 1.0 within the test.
			m := newTestMonitor(t, MonitorConfig{
				Device:      DeviceConfig{Name: "SimulatedPM100"},
				Isolation:   iso,
				MinInterval: time.Millisecond,
			})
			time.Sleep(500 * time.Millisecond)
			s, ok := m.Read()
			require.True(t, ok, "no sample after 500 ms")
			assert.GreaterOrEqual(t, s.Seq, uint64(1))
			assert.GreaterOrEqual(t, s.Value, 123.0)
			assert.LessOrEqual(t, s.Value, 124.0)

			assert.Less(t, timeClose(m), 300*time.Millisecond)
			assert.Equal(t, uint64(1), m.Stats().Reads)
			_, ok = m.Read()
			assert.False(t, ok, "Read after Close returns nothing")
		})
	}
}

func TestMonitorImmediateClose(t *testing.T) {
	for _, iso := range isolations {
		t.Run(iso.String(), func(t *testing.T) {
			m := newTestMonitor(t, MonitorConfig{
				Device:    DeviceConfig{Name: "SimulatedPM100"},
				Isolation: iso,
			})
			assert.Less(t, timeClose(m), DefaultCloseTimeout+closeSlack)
			assert.Eventually(t, func() bool { return !m.Alive() }, 2*time.Second, 5*time.Millisecond,
				"producer context still alive after Close")
			assert.Less(t, timeClose(m), closeSlack, "second Close returns at once")
		})
	}
}

func TestMonitorEmptyIsNotError(t *testing.T) {
	m := newTestMonitor(t, MonitorConfig{Factory: factoryFor(newGatedDevice(t, 0))})
	defer m.Close()
	for n := 0; n < 3; n++ {
		_, ok := m.Read()
		assert.False(t, ok)
	}
	assert.Equal(t, uint64(3), m.Stats().EmptyReads)
}

func TestMonitorReadAfterClose(t *testing.T) {
	m := newTestMonitor(t, MonitorConfig{Factory: factoryFor(newGatedDevice(t, 2))})
	assert.Eventually(t, func() bool { return m.Stats().Mailbox.Puts == 2 }, time.Second, time.Millisecond)
	_, ok := m.Read()
	require.True(t, ok)
	_, ok = m.Read()
	require.False(t, ok)
	m.Close()

	before := m.Stats()
	for n := 0; n < 5; n++ {
		_, ok := m.Read()
		assert.False(t, ok)
	}
	after := m.Stats()
	assert.Equal(t, uint64(1), after.EmptyReads)
	assert.Equal(t, before.EmptyReads, after.EmptyReads)
	assert.Equal(t, before.Reads, after.Reads)
}

// After N unread samples, Read returns sample N.
func TestMonitorFreshness(t *testing.T) {
	const nsamples = 25
	m := newTestMonitor(t, MonitorConfig{Factory: factoryFor(newGatedDevice(t, nsamples))})
	defer m.Close()
	assert.Eventually(t, func() bool { return m.Stats().Mailbox.Puts == nsamples }, time.Second, time.Millisecond)

	s, ok := m.Read()
	require.True(t, ok)
	assert.Equal(t, Sample{Seq: nsamples, Value: nsamples}, s)
	st := m.Stats()
	assert.Equal(t, uint64(nsamples-1), st.Skipped)
	assert.Equal(t, uint64(nsamples-1), st.Mailbox.Overwrites)
	_, ok = m.Read()
	assert.False(t, ok)
}

func TestMonitorDiscardPolicy(t *testing.T) {
	const nsamples = 25
	m := newTestMonitor(t, MonitorConfig{
		Factory: factoryFor(newGatedDevice(t, nsamples)),
		Policy:  DiscardNewest,
	})
	defer m.Close()
	assert.Eventually(t, func() bool {
		st := m.Stats().Mailbox
		return st.Puts+st.Discards == nsamples
	}, time.Second, time.Millisecond)

	s, ok := m.Read()
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.Seq, "the oldest unread sample is kept")
}

// Reads against a free-running producer never repeat or go backwards.
func TestMonitorReadsIncrease(t *testing.T) {
	for _, iso := range isolations {
		t.Run(iso.String(), func(t *testing.T) {
			m := newTestMonitor(t, MonitorConfig{
				Device:      DeviceConfig{Name: "SimulatedPM100"},
				Isolation:   iso,
				MinInterval: 100 * time.Microsecond,
			})
			defer m.Close()

			var last uint64
			var nreads int
			deadline := time.Now().Add(300 * time.Millisecond)
			for time.Now().Before(deadline) {
				s, ok := m.Read()
				if !ok {
					time.Sleep(50 * time.Microsecond)
					continue
				}
				if s.Seq <= last {
					t.Fatalf("Read returned seq %d after seq %d", s.Seq, last)
				}
				last = s.Seq
				nreads++
			}
			assert.Positive(t, nreads)
			assert.Equal(t, uint64(nreads), m.Stats().Reads)
		})
	}
}

// Close must return in bounded time even when the device never returns.
func TestMonitorBoundedClose(t *testing.T) {
	const timeout = 200 * time.Millisecond
	strategies := []ShutdownStrategy{TerminateAfterTimeout, CooperativeOnly}
	for _, iso := range isolations {
		for _, strategy := range strategies {
			t.Run(fmt.Sprintf("%v/%v", iso, strategy), func(t *testing.T) {
				config := MonitorConfig{
					Isolation:    iso,
					Shutdown:     strategy,
					CloseTimeout: timeout,
				}
				if iso == IsolateProcess {
					config.Device.Name = "TestHang"
				} else {
					config.Factory = factoryFor(newGatedDevice(t, 0))
				}
				m := newTestMonitor(t, config)
				if iso == IsolateProcess {
					t.Cleanup(func() { m.handle.terminate() })
				}
				time.Sleep(50 * time.Millisecond)

				elapsed := timeClose(m)
				assert.GreaterOrEqual(t, elapsed, timeout)
				assert.Less(t, elapsed, timeout+closeSlack)
				_, ok := m.Read()
				assert.False(t, ok)

				st := m.Stats()
				if strategy == TerminateAfterTimeout {
					assert.True(t, st.Forced)
					if iso == IsolateProcess {
						assert.Eventually(t, func() bool { return !m.Alive() }, 2*time.Second, 5*time.Millisecond,
							"killed worker is still alive")
					}
				} else {
					assert.False(t, st.Forced)
					assert.True(t, m.Alive(), "cooperative close leaves a stuck producer running")
				}
			})
		}
	}
}

// Once a goroutine producer stuck in a device call is released, it sees the
// Shutdown and exits without delivering anything more.
func TestMonitorCooperativeLateExit(t *testing.T) {
	dev := &gatedDevice{limit: 0, release: make(chan struct{})}
	m := newTestMonitor(t, MonitorConfig{
		Factory:      factoryFor(dev),
		Shutdown:     CooperativeOnly,
		CloseTimeout: 20 * time.Millisecond,
	})
	m.Close()
	assert.True(t, m.Alive())
	close(dev.release)
	assert.Eventually(t, func() bool { return !m.Alive() }, time.Second, time.Millisecond)
	_, ok := m.Read()
	assert.False(t, ok)
}

func TestMonitorProducerExitsOnItsOwn(t *testing.T) {
	for _, iso := range isolations {
		t.Run(iso.String(), func(t *testing.T) {
			m := newTestMonitor(t, MonitorConfig{
				Device:    DeviceConfig{Name: "TestFatal"},
				Isolation: iso,
			})
			select {
			case <-m.Exited():
			case <-time.After(5 * time.Second):
				t.Fatal("producer with a fatal device error did not exit")
			}
			assert.False(t, m.Alive())
			assert.Eventually(t, func() bool {
				s, ok := m.Read()
				return ok && s.Seq == 2
			}, time.Second, time.Millisecond)
			assert.Less(t, timeClose(m), closeSlack, "Close after exit does not wait")
			assert.False(t, m.Stats().Forced)
		})
	}
}

func TestNewMonitorErrors(t *testing.T) {
	_, err := NewMonitor(MonitorConfig{Device: DeviceConfig{Name: "NoSuchMeter"}})
	assert.ErrorIs(t, err, ErrUnknownDevice)

	_, err = NewMonitor(MonitorConfig{
		Isolation: IsolateProcess,
		Factory:   factoryFor(&scriptedDevice{}),
	})
	assert.Error(t, err, "a factory cannot cross a process boundary")

	_, err = NewMonitor(MonitorConfig{Device: DeviceConfig{Name: "SimulatedPM100"}, MinInterval: -time.Second})
	assert.Error(t, err)

	_, err = NewMonitor(MonitorConfig{
		Device:        DeviceConfig{Name: "SimulatedPM100"},
		Isolation:     IsolateProcess,
		WorkerCommand: []string{"/nonexistent/fastpm-worker"},
	})
	assert.Error(t, err)
}

func TestMonitorConfigDefaults(t *testing.T) {
	m := newTestMonitor(t, MonitorConfig{Device: DeviceConfig{Name: "simulatedpm100"}})
	defer m.Close()
	assert.Equal(t, DefaultCloseTimeout, m.Config().CloseTimeout)
	assert.Equal(t, Overwrite, m.Config().Policy)
	assert.Equal(t, TerminateAfterTimeout, m.Config().Shutdown)
}
