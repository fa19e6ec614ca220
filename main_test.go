package fastpm

import (
	"errors"
	"log"
	"os"
	"testing"
	"time"
)

// The test binary doubles as the worker executable for process isolation.
const testWorkerEnv = "FASTPM_TEST_WORKER=1"

func TestMain(m *testing.M) {
	if os.Getenv("FASTPM_TEST_WORKER") == "1" {
		os.Exit(WorkerMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

// testWorkerConfig fills in the worker command so that a process-isolated
// Monitor re-executes this test binary.
func testWorkerConfig(config MonitorConfig) MonitorConfig {
	config.Isolation = IsolateProcess
	config.WorkerCommand = []string{os.Args[0]}
	config.WorkerEnv = []string{testWorkerEnv}
	return config
}

// Devices registered here exist in the worker process too.
func init() {
	RegisterDevice("TestHang", func(cfg DeviceConfig, logger *log.Logger) (Device, error) {
		return hangDevice{}, nil
	})
	RegisterDevice("TestFatal", func(cfg DeviceConfig, logger *log.Logger) (Device, error) {
		return &scriptedDevice{errs: []error{nil, nil, ErrDeviceFatal}}, nil
	})
}

// hangDevice never returns from Sample.
type hangDevice struct{}

func (hangDevice) Sample() (float64, error) {
	time.Sleep(time.Hour)
	return 0, nil
}

// scriptedDevice returns 1, 2, 3... with errs[i] replacing the i-th result
// when non-nil. It panics on the call numbered panicAt (1-based), if set.
type scriptedDevice struct {
	n       int
	errs    []error
	panicAt int
}

func (d *scriptedDevice) Sample() (float64, error) {
	d.n++
	if d.n == d.panicAt {
		panic("scripted panic")
	}
	if i := d.n - 1; i < len(d.errs) && d.errs[i] != nil {
		return 0, d.errs[i]
	}
	return float64(d.n), nil
}

var errTransient = errors.New("transient read failure")

// blockingDevice returns one value, then blocks in Sample until release is closed.
type blockingDevice struct {
	calls   int
	release chan struct{}
}

func (d *blockingDevice) Sample() (float64, error) {
	d.calls++
	if d.calls > 1 {
		<-d.release
	}
	return 7.0, nil
}

func factoryFor(dev Device) DeviceFactory {
	return func(cfg DeviceConfig, logger *log.Logger) (Device, error) {
		return dev, nil
	}
}

// gatedDevice returns 1, 2, 3... for its first limit calls and then blocks
// until release is closed. A limit of 0 blocks from the first call.
type gatedDevice struct {
	n       int
	limit   int
	release chan struct{}
}

func newGatedDevice(t *testing.T, limit int) *gatedDevice {
	d := &gatedDevice{limit: limit, release: make(chan struct{})}
	t.Cleanup(func() { close(d.release) })
	return d
}

func (d *gatedDevice) Sample() (float64, error) {
	if d.n >= d.limit {
		<-d.release
	}
	d.n++
	return float64(d.n), nil
}
