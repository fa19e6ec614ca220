package fastpm

import (
	"errors"
	"testing"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriValue(t *testing.T) {
	values, err := parseTriValue(FormatTriValue("temperatures_and_power", 1, 2, 37), "temperatures_and_power")
	require.NoError(t, err)
	assert.Equal(t, [3]float64{1, 2, 37}, values)

	values, err = parseTriValue("tp  21.5, 0.003 ,9\n", "tp")
	require.NoError(t, err)
	assert.Equal(t, [3]float64{21.5, 0.003, 9}, values)

	for _, bad := range []string{"", "other 1,2,3", "tp 1,2", "tp 1,x,3", "tp1,2,3"} {
		_, err := parseTriValue(bad, "tp")
		assert.Error(t, err, "message %q", bad)
	}
}

// TestZMQDevice publishes tri-value messages and checks that the device
// reports their power, and that a silent publisher gives a transient error.
func TestZMQDevice(t *testing.T) {
	const endpoint = "inproc://zmq-device-test"
	const topic = "temperatures_and_power"
	pub, err := zmq.NewSocket(zmq.PUB)
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Bind(endpoint))

	cfg := DeviceConfig{Endpoint: endpoint, Topic: topic, Timeout: 20 * time.Millisecond}
	dev, err := NewZMQDevice(cfg, discardLogger())
	require.NoError(t, err)
	zd := dev.(*ZMQDevice)
	defer zd.Close()

	// A SUB socket misses what is sent before its subscription arrives, so
	// keep sending until something gets through.
	var temperature, power float64
	assert.Eventually(t, func() bool {
		pub.Send(FormatTriValue(topic, 21.5, 0.25, 1), 0)
		temperature, power, err = zd.DualRead()
		return err == nil
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 21.5, temperature)
	assert.Equal(t, 0.25, power)

	// Drain anything the loop above queued.
	for {
		if _, err := zd.Sample(); err != nil {
			break
		}
	}
	_, err = zd.Sample()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDeviceFatal), "a receive timeout is transient")
}
