package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usnistgov/fastpm"
)

func TestDefaultsRoundTrip(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	settings, err := loadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, fastpm.DefaultSettings(), settings)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("FASTPM_ZMQ_ENDPOINT", "tcp://10.0.0.2:6545")
	t.Setenv("FASTPM_CLOSE_TIMEOUT", "350ms")
	t.Setenv("FASTPM_ISOLATION", "process")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FASTPM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	settings, err := loadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.2:6545", settings.ZMQ.Endpoint)
	assert.Equal(t, 350*time.Millisecond, settings.CloseTimeout)

	config, err := settings.MonitorConfig()
	require.NoError(t, err)
	assert.Equal(t, fastpm.IsolateProcess, config.Isolation)
}

func TestConfigFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "device: SimulatedSlow\ndelay: 20ms\npolicy: discard\nzmq:\n  topic: other\n"
	require.NoError(t, os.WriteFile(filename, []byte(yaml), 0644))

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filename)
	require.NoError(t, v.ReadInConfig())
	settings, err := loadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, "SimulatedSlow", settings.Device)
	assert.Equal(t, 20*time.Millisecond, settings.Delay)
	assert.Equal(t, "discard", settings.Policy)
	assert.Equal(t, "other", settings.ZMQ.Topic)
	assert.Equal(t, fastpm.DefaultZMQEndpoint, settings.ZMQ.Endpoint)
}

func TestDevicesCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"devices"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.Execute())
	names := strings.Fields(out.String())
	assert.Contains(t, names, "SIMULATEDPM100")
	assert.Contains(t, names, "ZMQ")
}
