package fastpm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestSimulatedPM100(t *testing.T) {
	factory, err := LookupDevice("SimulatedPM100")
	require.NoError(t, err)
	dev, err := factory(DeviceConfig{}, discardLogger())
	require.NoError(t, err)
	for n := 1; n <= 5; n++ {
		v, err := dev.Sample()
		require.NoError(t, err)
		assert.InDelta(t, 123.0+1e-6*float64(n), v, 1e-12)
	}
}

func TestSimulatedSpectra(t *testing.T) {
	dev, err := NewSimulatedSpectra(DeviceConfig{}, discardLogger())
	require.NoError(t, err)
	ss := dev.(*SimulatedSpectra)
	peak, err := ss.Sample()
	require.NoError(t, err)
	frame := ss.Frame()
	require.Len(t, frame, SpectraPixels)
	assert.Equal(t, floats.Max(frame), peak)
	if imax := floats.MaxIdx(frame); imax < 390 || imax > 410 {
		t.Errorf("SimulatedSpectra peak at pixel %d, want near 400", imax)
	}
	assert.InDelta(t, 1000, frame[0], 100, "pedestal")
}

func TestSimulatedSlow(t *testing.T) {
	_, err := NewSimulatedSlow(DeviceConfig{Delay: -time.Second}, discardLogger())
	assert.Error(t, err)

	dev, err := NewSimulatedSlow(DeviceConfig{Delay: 20 * time.Millisecond}, discardLogger())
	require.NoError(t, err)
	start := time.Now()
	v, err := dev.Sample()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.InDelta(t, 123.000001, v, 1e-12)
}

func TestDeviceRegistry(t *testing.T) {
	_, err := LookupDevice("simulatedSPECTRA")
	assert.NoError(t, err, "names are case-insensitive")
	_, err = LookupDevice("lancero")
	assert.ErrorIs(t, err, ErrUnknownDevice)

	names := DeviceNames()
	assert.Subset(t, names, []string{"SIMULATEDPM100", "SIMULATEDSLOW", "SIMULATEDSPECTRA", "ZMQ"})
	assert.IsNonDecreasing(t, names)
}
