package fastpm

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// Defaults for the ZMQ tri-value device.
const (
	DefaultZMQEndpoint = "tcp://127.0.0.1:6545"
	DefaultZMQTopic    = "temperatures_and_power"
	DefaultZMQTimeout  = time.Second
)

func init() {
	RegisterDevice("ZMQ", NewZMQDevice)
}

// ZMQDevice reads from a publisher that sends messages of the form
// "<topic> <temperature>,<power>,<count>". Its Sample is the power value.
type ZMQDevice struct {
	sub      *zmq.Socket
	topic    string
	endpoint string
}

// NewZMQDevice is the DeviceFactory for ZMQDevice. It connects a SUB socket to
// cfg.Endpoint and subscribes to cfg.Topic.
func NewZMQDevice(cfg DeviceConfig, logger *log.Logger) (Device, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultZMQEndpoint
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultZMQTopic
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultZMQTimeout
	}

	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, err
	}
	if err := sub.SetRcvtimeo(timeout); err != nil {
		sub.Close()
		return nil, err
	}
	if err := sub.SetLinger(0); err != nil {
		sub.Close()
		return nil, err
	}
	if err := sub.Connect(endpoint); err != nil {
		sub.Close()
		return nil, fmt.Errorf("ZMQDevice could not connect to %s: %w", endpoint, err)
	}
	if err := sub.SetSubscribe(topic); err != nil {
		sub.Close()
		return nil, err
	}
	logger.Printf("ZMQDevice setup on %s topic %q", endpoint, topic)
	return &ZMQDevice{sub: sub, topic: topic, endpoint: endpoint}, nil
}

// Sample waits for the next message and returns its power field.
func (zd *ZMQDevice) Sample() (float64, error) {
	_, power, err := zd.DualRead()
	return power, err
}

// DualRead waits for the next message and returns its temperature and power.
func (zd *ZMQDevice) DualRead() (temperature, power float64, err error) {
	msg, err := zd.sub.Recv(0)
	if err != nil {
		return 0, 0, fmt.Errorf("ZMQDevice receive from %s: %w", zd.endpoint, err)
	}
	values, err := parseTriValue(msg, zd.topic)
	if err != nil {
		return 0, 0, err
	}
	return values[0], values[1], nil
}

// Close releases the socket.
func (zd *ZMQDevice) Close() error {
	return zd.sub.Close()
}

// parseTriValue splits "<topic> a,b,c" into its three numbers.
func parseTriValue(msg, topic string) ([3]float64, error) {
	var values [3]float64
	head, payload, found := strings.Cut(msg, " ")
	if !found || head != topic {
		return values, fmt.Errorf("message %q does not start with topic %q", msg, topic)
	}
	fields := strings.Split(strings.TrimSpace(payload), ",")
	if len(fields) != len(values) {
		return values, fmt.Errorf("message %q has %d values, want %d", msg, len(fields), len(values))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return values, fmt.Errorf("message %q value %d: %w", msg, i, err)
		}
		values[i] = v
	}
	return values, nil
}

// FormatTriValue builds the message a tri-value publisher sends.
func FormatTriValue(topic string, temperature, power float64, count int) string {
	return fmt.Sprintf("%s %g,%g,%d", topic, temperature, power, count)
}
