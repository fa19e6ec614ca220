package fastpm

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Device is anything that can be asked for a reading. Sample may block for as
// long as the instrument takes. A returned error is treated as a transient
// failure unless it wraps ErrDeviceFatal.
type Device interface {
	Sample() (float64, error)
}

// ErrDeviceFatal marks a device error that must end the producer loop.
var ErrDeviceFatal = errors.New("fatal device error")

// ErrUnknownDevice is returned when a device name is not in the registry.
var ErrUnknownDevice = errors.New("device is not recognized")

// DeviceConfig holds everything any registered device may need at construction.
// Devices ignore the fields that do not apply to them.
type DeviceConfig struct {
	Name     string
	Delay    time.Duration // SimulatedSlow: time spent in each Sample call
	Endpoint string        // ZMQ: publisher address to connect to
	Topic    string        // ZMQ: subscription topic
	Timeout  time.Duration // ZMQ: receive timeout per Sample call
}

// DeviceFactory builds a Device. It runs inside the producer's execution
// context, never on the consumer side.
type DeviceFactory func(cfg DeviceConfig, logger *log.Logger) (Device, error)

var registry = struct {
	sync.RWMutex
	factories map[string]DeviceFactory
}{factories: make(map[string]DeviceFactory)}

// RegisterDevice makes a factory available by name. Names are case-insensitive;
// registering a name twice replaces the earlier factory.
func RegisterDevice(name string, factory DeviceFactory) {
	registry.Lock()
	defer registry.Unlock()
	registry.factories[strings.ToUpper(name)] = factory
}

// LookupDevice finds the factory registered under name.
func LookupDevice(name string) (DeviceFactory, error) {
	registry.RLock()
	defer registry.RUnlock()
	factory, ok := registry.factories[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("device %q: %w", name, ErrUnknownDevice)
	}
	return factory, nil
}

// DeviceNames lists the registered device names in sorted order.
func DeviceNames() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
