package fastpm

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// The worker process speaks a tiny protocol with its parent:
//   stdout: a stream of SampleFrameSize-byte frames (see Sample.MarshalBinary)
//   stdin:  the byte controlShutdownByte, or EOF, means Shutdown
//   stderr: log lines, copied by the parent into its own log sink
const controlShutdownByte = 'S'

// WorkerArgs renders the command-line flags that ParseWorkerArgs understands.
func WorkerArgs(dev DeviceConfig, minInterval time.Duration) []string {
	args := []string{"--device", dev.Name}
	if dev.Delay > 0 {
		args = append(args, "--delay", dev.Delay.String())
	}
	if dev.Endpoint != "" {
		args = append(args, "--endpoint", dev.Endpoint)
	}
	if dev.Topic != "" {
		args = append(args, "--topic", dev.Topic)
	}
	if dev.Timeout > 0 {
		args = append(args, "--timeout", dev.Timeout.String())
	}
	if minInterval > 0 {
		args = append(args, "--min-interval", minInterval.String())
	}
	return args
}

// ParseWorkerArgs is the inverse of WorkerArgs.
func ParseWorkerArgs(args []string, errOut io.Writer) (DeviceConfig, time.Duration, error) {
	var dev DeviceConfig
	var minInterval time.Duration
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&dev.Name, "device", "", "registered device name")
	fs.DurationVar(&dev.Delay, "delay", 0, "per-sample delay for slow devices")
	fs.StringVar(&dev.Endpoint, "endpoint", "", "device endpoint")
	fs.StringVar(&dev.Topic, "topic", "", "device topic")
	fs.DurationVar(&dev.Timeout, "timeout", 0, "device receive timeout")
	fs.DurationVar(&minInterval, "min-interval", 0, "minimum time between samples")
	if err := fs.Parse(args); err != nil {
		return dev, 0, err
	}
	if dev.Name == "" {
		return dev, 0, fmt.Errorf("worker needs a --device name")
	}
	return dev, minInterval, nil
}

// pipeSink lets the producer hand off samples without ever waiting on the
// pipe: the freshest sample waits in a Mailbox until the writer goroutine can
// send it.
type pipeSink struct {
	*Mailbox
	w        io.Writer
	finished chan struct{}
	err      error
}

func newPipeSink(w io.Writer) *pipeSink {
	ps := &pipeSink{Mailbox: NewMailbox(Overwrite), w: w, finished: make(chan struct{})}
	go func() {
		defer close(ps.finished)
		for {
			s, err := ps.TakeBlocking(time.Second)
			if errors.Is(err, ErrTimeout) {
				continue
			} else if err != nil {
				return
			}
			if err := writeSample(w, s); err != nil {
				ps.err = err
				return
			}
		}
	}()
	return ps
}

// abandon stops the writer without flushing or waiting for it. A sample
// still pending is dropped.
func (ps *pipeSink) abandon() {
	ps.Close()
}

// close stops the writer goroutine and waits for it. A sample still pending
// is written last. The producer must have stopped.
func (ps *pipeSink) close() error {
	last, pending := ps.TryTake()
	ps.Close()
	<-ps.finished
	if pending && ps.err == nil {
		ps.err = writeSample(ps.w, last)
	}
	return ps.err
}

// watchControl turns the parent's shutdown byte (or a closed stdin) into a
// Shutdown signal.
func watchControl(r io.Reader, control *ControlChannel, logger *log.Logger) {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 && buf[0] == controlShutdownByte {
			logger.Printf("Worker control pipe delivered %s", Shutdown)
			control.Signal()
			return
		}
		if err != nil {
			logger.Printf("Worker control pipe closed (%v); treating as %s", err, Shutdown)
			control.Signal()
			return
		}
	}
}

// RunWorker runs a Producer whose output goes to stdout as sample frames and
// whose control comes from stdin. It returns when the producer stops.
func RunWorker(ctx context.Context, config ProducerConfig, stdin io.Reader, stdout io.Writer, logger *log.Logger) error {
	control := NewControlChannel()
	go watchControl(stdin, control, logger)

	sink := newPipeSink(stdout)
	p := NewProducer(config, sink, control, logger)
	err := p.Run(ctx)
	if ctx.Err() != nil {
		sink.abandon()
		return err
	}
	if werr := sink.close(); werr != nil {
		logger.Printf("Worker sample pipe error: %v", werr)
	}
	return err
}

// exitOnInterrupt terminates the process as soon as SIGINT or SIGTERM
// arrives, even while the producer is stuck in a device call. Nothing pending
// is flushed. The exit code is 128 plus the signal number. Closing finished
// releases the watcher.
func exitOnInterrupt(logger *log.Logger, finished <-chan struct{}) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			code := 1
			if num, ok := sig.(syscall.Signal); ok {
				code = 128 + int(num)
			}
			logger.Printf("received %v; exiting at once with code %d", sig, code)
			os.Exit(code)
		case <-finished:
		}
	}()
}

// WorkerMain is the body of the "worker" command. It parses args, looks up the
// device, binds SIGINT and SIGTERM to immediate process exit, and returns a
// process exit code.
func WorkerMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := log.New(stderr, fmt.Sprintf("worker[%d] ", os.Getpid()), 0)
	dev, minInterval, err := ParseWorkerArgs(args, stderr)
	if err != nil {
		logger.Printf("bad arguments: %v", err)
		return 2
	}
	factory, err := LookupDevice(dev.Name)
	if err != nil {
		logger.Printf("%v", err)
		return 2
	}

	finished := make(chan struct{})
	defer close(finished)
	exitOnInterrupt(logger, finished)

	config := ProducerConfig{Factory: factory, Device: dev, MinInterval: minInterval}
	if err := RunWorker(context.Background(), config, stdin, stdout, logger); err != nil {
		logger.Printf("exiting with error: %v", err)
		return 1
	}
	return 0
}
