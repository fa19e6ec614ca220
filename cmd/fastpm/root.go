package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/usnistgov/fastpm"
	"github.com/usnistgov/fastpm/internal/applog"
)

var rootCmd = &cobra.Command{
	Use:   "fastpm",
	Short: "Non-blocking reader for a power meter or spectrometer",
	Long: `fastpm runs an acquisition device in its own goroutine or worker process.
The device writes samples into a single-slot mailbox and the reader takes the
newest one whenever it likes, without ever waiting on the hardware.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.fastpm/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "print the full configuration")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// dotFastpm is the per-user directory for config and logs.
func dotFastpm() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fastpm"
	}
	return filepath.Join(home, ".fastpm")
}

// setDefaults loads fastpm.DefaultSettings into viper so that every key is
// known even without a config file.
func setDefaults(v *viper.Viper) {
	d := fastpm.DefaultSettings()
	v.SetDefault("device", d.Device)
	v.SetDefault("delay", d.Delay)
	v.SetDefault("isolation", d.Isolation)
	v.SetDefault("policy", d.Policy)
	v.SetDefault("shutdown", d.Shutdown)
	v.SetDefault("close_timeout", d.CloseTimeout)
	v.SetDefault("min_interval", d.MinInterval)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("duration", d.Duration)
	v.SetDefault("record", d.Record)
	v.SetDefault("stream", d.Stream)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("zmq.endpoint", d.ZMQ.Endpoint)
	v.SetDefault("zmq.topic", d.ZMQ.Topic)
	v.SetDefault("zmq.timeout", d.ZMQ.Timeout)
	v.SetDefault("publish.endpoint", d.Publish.Endpoint)
	v.SetDefault("publish.topic", d.Publish.Topic)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("rundb.enabled", d.RunDB.Enabled)
	v.SetDefault("rundb.addr", d.RunDB.Addr)
	v.SetDefault("rundb.database", d.RunDB.Database)
}

// initConfig must not write to stdout: the hidden worker command owns it.
func initConfig() {
	setDefaults(viper.GetViper())

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		const filename = "config"
		_, _ = applog.MakeFileExist(dotFastpm(), filename+".yaml")
		viper.SetConfigName(filename)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(filepath.FromSlash("/etc/fastpm"))
		viper.AddConfigPath(dotFastpm())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FASTPM")
	// FASTPM_ZMQ_ENDPOINT sets zmq.endpoint, and so on.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}

// loadSettings decodes the merged configuration.
func loadSettings(v *viper.Viper) (fastpm.Settings, error) {
	var settings fastpm.Settings
	err := v.Unmarshal(&settings)
	return settings, err
}
