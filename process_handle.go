package fastpm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Isolation selects the execution context the producer runs in.
type Isolation int

// Names for the possible values of Isolation
const (
	IsolateGoroutine Isolation = iota // Producer runs in a goroutine of this process
	IsolateProcess                    // Producer runs in a child "worker" process
)

func (iso Isolation) String() string {
	switch iso {
	case IsolateGoroutine:
		return "goroutine"
	case IsolateProcess:
		return "process"
	}
	return fmt.Sprintf("Isolation(%d)", int(iso))
}

// ParseIsolation converts a configuration string to an Isolation.
func ParseIsolation(name string) (Isolation, error) {
	switch strings.ToLower(name) {
	case "", "goroutine", "thread":
		return IsolateGoroutine, nil
	case "process", "subprocess":
		return IsolateProcess, nil
	}
	return IsolateGoroutine, fmt.Errorf("isolation %q is not recognized", name)
}

// ShutdownStrategy says what Close does when the producer has not exited
// within the close timeout.
type ShutdownStrategy int

// Names for the possible values of ShutdownStrategy
const (
	TerminateAfterTimeout ShutdownStrategy = iota // Kill the worker process or abandon the goroutine
	CooperativeOnly                               // Leave the producer to exit at its next check-in
)

func (ss ShutdownStrategy) String() string {
	switch ss {
	case TerminateAfterTimeout:
		return "terminate"
	case CooperativeOnly:
		return "cooperative"
	}
	return fmt.Sprintf("ShutdownStrategy(%d)", int(ss))
}

// ParseShutdownStrategy converts a configuration string to a ShutdownStrategy.
func ParseShutdownStrategy(name string) (ShutdownStrategy, error) {
	switch strings.ToLower(name) {
	case "", "terminate", "force":
		return TerminateAfterTimeout, nil
	case "cooperative", "poll":
		return CooperativeOnly, nil
	}
	return TerminateAfterTimeout, fmt.Errorf("shutdown strategy %q is not recognized", name)
}

// processHandle is the producer's execution context as the Monitor sees it.
type processHandle interface {
	signal() bool            // send Shutdown; false if already sent
	exited() <-chan struct{} // closed once the context has ended
	terminate() error        // end the context without its cooperation
	alive() bool
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

// goroutineHandle runs a Producer in this process. Go cannot stop a goroutine
// stuck inside a device call, so terminate cancels the producer's context and
// the Monitor closes the mailbox; the goroutine ends when the call returns.
type goroutineHandle struct {
	producer *Producer
	control  *ControlChannel
	cancel   context.CancelFunc
}

func startGoroutine(config ProducerConfig, sink SampleSink, logger *log.Logger) *goroutineHandle {
	ctx, cancel := context.WithCancel(context.Background())
	control := NewControlChannel()
	h := &goroutineHandle{
		producer: NewProducer(config, sink, control, logger),
		control:  control,
		cancel:   cancel,
	}
	go func() {
		defer cancel()
		h.producer.Run(ctx) // failures are already in the log
	}()
	return h
}

func (h *goroutineHandle) signal() bool            { return h.control.Signal() }
func (h *goroutineHandle) exited() <-chan struct{} { return h.producer.Done() }
func (h *goroutineHandle) alive() bool             { return !isClosed(h.producer.Done()) }

func (h *goroutineHandle) terminate() error {
	h.cancel()
	return nil
}

// subprocessHandle runs the producer in a child process started from a worker
// command. Samples arrive as frames on the child's stdout and are relayed into
// the Monitor's mailbox; the child's stderr is copied into the log.
type subprocessHandle struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	control   *ControlChannel
	logger    *log.Logger
	done      chan struct{}
	stdinLock sync.Mutex
}

func startSubprocess(command, env []string, config ProducerConfig, sink SampleSink, logger *log.Logger) (*subprocessHandle, error) {
	if len(command) == 0 {
		return nil, errors.New("worker command is empty")
	}
	args := append(append([]string{}, command[1:]...), WorkerArgs(config.Device, config.MinInterval)...)
	cmd := exec.Command(command[0], args...)
	cmd.Env = append(os.Environ(), env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start worker %q: %w", command[0], err)
	}
	logger.Printf("Started worker process %d for device %q", cmd.Process.Pid, config.Device.Name)

	h := &subprocessHandle{
		cmd:     cmd,
		stdin:   stdin,
		control: NewControlChannel(),
		logger:  logger,
		done:    make(chan struct{}),
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		relaySamples(stdout, sink, logger)
	}()
	go func() {
		defer pipes.Done()
		copyLines(stderr, logger)
	}()
	go func() {
		pipes.Wait()
		err := cmd.Wait()
		if err != nil {
			logger.Printf("Worker process %d exited: %v", cmd.Process.Pid, err)
		} else {
			logger.Printf("Worker process %d exited normally", cmd.Process.Pid)
		}
		close(h.done)
	}()
	return h, nil
}

func (h *subprocessHandle) signal() bool {
	if !h.control.Signal() {
		return false
	}
	h.stdinLock.Lock()
	defer h.stdinLock.Unlock()
	if _, err := h.stdin.Write([]byte{controlShutdownByte}); err != nil {
		h.logger.Printf("Could not write %s to worker: %v", Shutdown, err)
	}
	h.stdin.Close()
	return true
}

func (h *subprocessHandle) exited() <-chan struct{} { return h.done }
func (h *subprocessHandle) alive() bool             { return !isClosed(h.done) }

func (h *subprocessHandle) terminate() error {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// relaySamples moves frames from the worker's stdout into sink until EOF.
func relaySamples(r io.Reader, sink SampleSink, logger *log.Logger) {
	br := bufio.NewReader(r)
	for {
		s, err := readSample(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Printf("Worker sample stream ended: %v", err)
			}
			return
		}
		sink.TryPut(s)
	}
}

// copyLines forwards each line of r to logger.
func copyLines(r io.Reader, logger *log.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Print(scanner.Text())
	}
}
