package fastpm

import (
	"time"
)

// ZMQSettings configures the ZMQ device.
type ZMQSettings struct {
	Endpoint string        `mapstructure:"endpoint"`
	Topic    string        `mapstructure:"topic"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PublishSettings configures the ZMQ publisher of drained samples.
type PublishSettings struct {
	Endpoint string `mapstructure:"endpoint"` // empty disables publishing
	Topic    string `mapstructure:"topic"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// RunDBSettings configures the optional ClickHouse run log.
type RunDBSettings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
}

// Settings is the flat, string-typed configuration read from the config file,
// environment and flags. MonitorConfig turns it into a checked MonitorConfig.
type Settings struct {
	Device       string          `mapstructure:"device"`
	Delay        time.Duration   `mapstructure:"delay"`
	Isolation    string          `mapstructure:"isolation"`
	Policy       string          `mapstructure:"policy"`
	Shutdown     string          `mapstructure:"shutdown"`
	CloseTimeout time.Duration   `mapstructure:"close_timeout"`
	MinInterval  time.Duration   `mapstructure:"min_interval"`
	PollInterval time.Duration   `mapstructure:"poll_interval"`
	Duration     time.Duration   `mapstructure:"duration"`
	Record       string          `mapstructure:"record"`
	Stream       string          `mapstructure:"stream"`
	Verbose      bool            `mapstructure:"verbose"`
	ZMQ          ZMQSettings     `mapstructure:"zmq"`
	Publish      PublishSettings `mapstructure:"publish"`
	Metrics      MetricsSettings `mapstructure:"metrics"`
	RunDB        RunDBSettings   `mapstructure:"rundb"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Device:       "SimulatedPM100",
		Isolation:    IsolateGoroutine.String(),
		Policy:       Overwrite.String(),
		Shutdown:     TerminateAfterTimeout.String(),
		CloseTimeout: DefaultCloseTimeout,
		PollInterval: 500 * time.Millisecond,
		ZMQ: ZMQSettings{
			Endpoint: DefaultZMQEndpoint,
			Topic:    DefaultZMQTopic,
			Timeout:  DefaultZMQTimeout,
		},
		Publish: PublishSettings{Topic: DefaultPublishTopic},
		RunDB:   RunDBSettings{Addr: "localhost:9000", Database: "fastpm"},
	}
}

// MonitorConfig checks the enumerated settings and builds a MonitorConfig.
// Logger, Metrics and WorkerCommand are left for the caller to fill in.
func (s Settings) MonitorConfig() (MonitorConfig, error) {
	var config MonitorConfig
	var err error
	if config.Policy, err = ParseDropPolicy(s.Policy); err != nil {
		return config, err
	}
	if config.Isolation, err = ParseIsolation(s.Isolation); err != nil {
		return config, err
	}
	if config.Shutdown, err = ParseShutdownStrategy(s.Shutdown); err != nil {
		return config, err
	}
	if _, err = LookupDevice(s.Device); err != nil {
		return config, err
	}
	config.Device = DeviceConfig{
		Name:     s.Device,
		Delay:    s.Delay,
		Endpoint: s.ZMQ.Endpoint,
		Topic:    s.ZMQ.Topic,
		Timeout:  s.ZMQ.Timeout,
	}
	config.CloseTimeout = s.CloseTimeout
	config.MinInterval = s.MinInterval
	return config, nil
}
