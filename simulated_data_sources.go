package fastpm

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
)

func init() {
	RegisterDevice("SimulatedPM100", NewSimulatedPM100)
	RegisterDevice("SimulatedSpectra", NewSimulatedSpectra)
	RegisterDevice("SimulatedSlow", NewSimulatedSlow)
}

// SimulatedPM100 is an instant power meter. The n-th call to Sample returns
// 123.0 + 1e-6*n.
type SimulatedPM100 struct {
	nread uint64
}

// NewSimulatedPM100 is the DeviceFactory for SimulatedPM100.
func NewSimulatedPM100(cfg DeviceConfig, logger *log.Logger) (Device, error) {
	logger.Printf("SimulatedPM100 setup")
	return new(SimulatedPM100), nil
}

// Sample returns the next simulated power reading.
func (pm *SimulatedPM100) Sample() (float64, error) {
	pm.nread++
	return 123.0 + 0.000001*float64(pm.nread), nil
}

// SimulatedSpectra synthesizes a spectrometer frame on every call and reports
// its peak intensity.
type SimulatedSpectra struct {
	baseline []float64
	frame    []float64
	rng      *rand.Rand
}

// SpectraPixels is the number of pixels in a simulated spectrum.
const SpectraPixels = 1024

// NewSimulatedSpectra is the DeviceFactory for SimulatedSpectra.
func NewSimulatedSpectra(cfg DeviceConfig, logger *log.Logger) (Device, error) {
	ss := &SimulatedSpectra{
		baseline: make([]float64, SpectraPixels),
		frame:    make([]float64, SpectraPixels),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	// A single Gaussian line at pixel 400 on a flat pedestal of 1000 counts.
	const center, width, height, pedestal = 400.0, 12.0, 30000.0, 1000.0
	for i := range ss.baseline {
		d := (float64(i) - center) / width
		ss.baseline[i] = pedestal + height*math.Exp(-0.5*d*d)
	}
	logger.Printf("SimulatedSpectra setup with %d pixels", SpectraPixels)
	return ss, nil
}

// Sample builds a noisy frame and returns its maximum.
func (ss *SimulatedSpectra) Sample() (float64, error) {
	copy(ss.frame, ss.baseline)
	for i := range ss.frame {
		ss.frame[i] += ss.rng.NormFloat64() * 10.0
	}
	return floats.Max(ss.frame), nil
}

// Frame returns the most recent spectrum. It is only meaningful inside the
// producer context that owns the device.
func (ss *SimulatedSpectra) Frame() []float64 {
	return ss.frame
}

// SimulatedSlow is a long-polling device: each Sample takes cfg.Delay, the way
// a real instrument integrating for a fixed exposure would.
type SimulatedSlow struct {
	delay time.Duration
	pm    SimulatedPM100
}

// DefaultSlowDelay is used when DeviceConfig.Delay is not set.
const DefaultSlowDelay = 100 * time.Millisecond

// NewSimulatedSlow is the DeviceFactory for SimulatedSlow.
func NewSimulatedSlow(cfg DeviceConfig, logger *log.Logger) (Device, error) {
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("SimulatedSlow delay %v is negative", cfg.Delay)
	}
	delay := cfg.Delay
	if delay == 0 {
		delay = DefaultSlowDelay
	}
	logger.Printf("SimulatedSlow setup with %v per sample", delay)
	return &SimulatedSlow{delay: delay}, nil
}

// Sample blocks for the configured delay, then reads like a SimulatedPM100.
func (sd *SimulatedSlow) Sample() (float64, error) {
	time.Sleep(sd.delay)
	return sd.pm.Sample()
}
