package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/usnistgov/fastpm"
	"github.com/usnistgov/fastpm/internal/applog"
	"github.com/usnistgov/fastpm/internal/rundb"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start a producer and read its freshest sample on every tick",
	Long: `Start the configured device in a goroutine or worker process, read the
newest sample every poll interval, and shut the producer down within the close
timeout on Ctrl-C or when the duration elapses.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

// monitorFlags maps each command-line flag to its configuration key.
var monitorFlags = map[string]string{
	"device":        "device",
	"delay":         "delay",
	"isolation":     "isolation",
	"policy":        "policy",
	"shutdown":      "shutdown",
	"close-timeout": "close_timeout",
	"min-interval":  "min_interval",
	"poll":          "poll_interval",
	"duration":      "duration",
	"record":        "record",
	"stream":        "stream",
	"publish":       "publish.endpoint",
	"metrics-addr":  "metrics.addr",
	"zmq-endpoint":  "zmq.endpoint",
	"rundb":         "rundb.enabled",
}

func init() {
	d := fastpm.DefaultSettings()
	flags := monitorCmd.Flags()
	flags.StringP("device", "d", d.Device, "device name (see the devices command)")
	flags.Duration("delay", d.Delay, "per-sample delay of SimulatedSlow")
	flags.String("isolation", d.Isolation, "producer context: goroutine or process")
	flags.String("policy", d.Policy, "full mailbox policy: overwrite or discard")
	flags.String("shutdown", d.Shutdown, "on close timeout: terminate or cooperative")
	flags.Duration("close-timeout", d.CloseTimeout, "how long Close waits for the producer")
	flags.Duration("min-interval", d.MinInterval, "minimum time between device reads (0 = free running)")
	flags.Duration("poll", d.PollInterval, "time between reads of the mailbox")
	flags.Duration("duration", d.Duration, "stop after this long (0 = until interrupted)")
	flags.String("record", d.Record, "save every sample read to this .npy file at exit")
	flags.String("stream", d.Stream, "append every sample read to this .npy file as it arrives")
	flags.String("publish", d.Publish.Endpoint, "publish samples read on this ZMQ endpoint, e.g. tcp://*:6546")
	flags.String("metrics-addr", d.Metrics.Addr, "serve Prometheus metrics on this address, e.g. :9090")
	flags.String("zmq-endpoint", d.ZMQ.Endpoint, "endpoint the ZMQ device subscribes to")
	flags.Bool("rundb", d.RunDB.Enabled, "record the run in the ClickHouse run database")
	bindFlags(viper.GetViper(), flags, monitorFlags)

	rootCmd.AddCommand(monitorCmd)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	settings, err := loadSettings(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	if settings.PollInterval <= 0 {
		return fmt.Errorf("poll interval %v must be positive", settings.PollInterval)
	}
	config, err := settings.MonitorConfig()
	if err != nil {
		return err
	}

	sink, err := applog.Open(filepath.Join(dotFastpm(), "logs", "fastpm.log"))
	if err != nil {
		return err
	}
	defer sink.Close()
	fmt.Fprintf(out, "%s\nLogging to %s\n", fastpm.Build.Summary, sink.Filename())
	logger := sink.Logger("")
	logger.Printf("\n\n\n%s", fastpm.Build.Summary)
	if settings.Verbose {
		fmt.Fprint(out, spew.Sdump(settings))
	}
	config.Logger = logger

	if settings.Metrics.Addr != "" {
		registry := prometheus.NewRegistry()
		config.Metrics = fastpm.NewMonitorMetrics(registry)
		server := startMetricsServer(settings.Metrics.Addr, registry, logger)
		defer server.Close()
	}

	var publisher *fastpm.Publisher
	if settings.Publish.Endpoint != "" {
		if publisher, err = fastpm.NewPublisher(settings.Publish.Endpoint, settings.Publish.Topic, logger); err != nil {
			return err
		}
		defer publisher.Close()
	}

	var stream *fastpm.StreamRecorder
	if settings.Stream != "" {
		if stream, err = fastpm.NewStreamRecorder(settings.Stream); err != nil {
			return err
		}
		defer func() {
			if err := stream.Close(); err != nil {
				logger.Printf("Could not complete %s: %v", settings.Stream, err)
			}
			fmt.Fprintf(out, "Streamed %d samples to %s\n", stream.Len(), settings.Stream)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if settings.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Duration)
		defer cancel()
	}

	start := time.Now()
	monitor, err := fastpm.NewMonitor(config)
	if err != nil {
		return err
	}
	var stats fastpm.ReadStats
	var recorder fastpm.Recorder
	pollLoop(ctx, monitor, settings.PollInterval, out, func(s fastpm.Sample, t time.Time) {
		stats.Add(s, t)
		if settings.Record != "" {
			recorder.Add(s)
		}
		if stream != nil {
			if err := stream.Add(s); err != nil {
				logger.Printf("Could not stream %v: %v", s, err)
			}
		}
		if publisher != nil {
			publisher.Publish(s)
		}
	})

	closeStart := time.Now()
	monitor.Close()
	end := time.Now()
	fmt.Fprintf(out, "Monitor closed in %v\n", end.Sub(closeStart).Round(time.Millisecond))

	summary := stats.Summary()
	mstats := monitor.Stats()
	printSummary(out, summary, mstats)

	var saveErr error
	if settings.Record != "" {
		if saveErr = recorder.Save(settings.Record); saveErr == nil {
			fmt.Fprintf(out, "Recorded %d samples to %s\n", recorder.Len(), settings.Record)
		}
	}

	if settings.RunDB.Enabled {
		activity := rundb.NewActivity(fastpm.Build.Version, fastpm.Build.Githash)
		activity.Start = fastpm.StartTime
		opt := rundb.Options{Addr: settings.RunDB.Addr, Database: settings.RunDB.Database}
		db := rundb.Start(opt, activity, logger)
		db.RecordRun(&rundb.RunMessage{
			Device:    config.Device.Name,
			Isolation: config.Isolation.String(),
			Policy:    config.Policy.String(),
			Shutdown:  config.Shutdown.String(),
			Reads:     summary.Reads,
			Skipped:   mstats.Skipped,
			LastSeq:   mstats.LastSeq,
			Mean:      summary.Mean,
			StdDev:    summary.StdDev,
			Forced:    mstats.Forced,
			Start:     start,
			End:       end,
		})
		db.Close()
	}
	return saveErr
}

// pollLoop reads the monitor every interval until ctx is done or the producer
// exits on its own, handing each fresh sample to use and printing it.
func pollLoop(ctx context.Context, monitor *fastpm.Monitor, interval time.Duration, out io.Writer,
	use func(fastpm.Sample, time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				fmt.Fprintln(out, "Duration elapsed")
			}
			return
		case <-monitor.Exited():
			fmt.Fprintln(out, "Producer exited on its own")
			return
		case now := <-ticker.C:
			s, ok := monitor.Read()
			if !ok {
				continue
			}
			use(s, now)
			fmt.Fprintf(out, "%s  %v\n", now.Format("15:04:05.000"), s)
		}
	}
}

func printSummary(out io.Writer, sum fastpm.ReadSummary, mstats fastpm.MonitorStats) {
	fmt.Fprintf(out, "Reads: %d (empty polls %d), last sequence %d, skipped %d\n",
		sum.Reads, mstats.EmptyReads, mstats.LastSeq, mstats.Skipped)
	if sum.Reads > 0 {
		fmt.Fprintf(out, "Value mean %.6g, std dev %.3g\n", sum.Mean, sum.StdDev)
		fmt.Fprintf(out, "Produced %.1f/s, read %.1f/s over %v\n",
			sum.ProducedRate, sum.ReadRate, sum.Elapsed.Round(time.Millisecond))
	}
	if mstats.Forced {
		fmt.Fprintln(out, "WARNING: the producer had to be terminated")
	}
}
