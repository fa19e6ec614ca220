package fastpm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"
)

// ProducerState is used to indicate where a Producer is in its life cycle.
type ProducerState int32

// Names for the possible values of ProducerState
const (
	Starting ProducerState = iota // Device is being constructed
	Running                       // Sampling as fast as allowed
	Stopping                      // Shutdown received; no further samples
	Stopped                       // Terminal
)

func (s ProducerState) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	}
	return fmt.Sprintf("ProducerState(%d)", int32(s))
}

// SampleSink receives a Producer's output. A *Mailbox is one; the worker
// process uses a sink that writes frames to its stdout.
type SampleSink interface {
	TryPut(Sample) bool
}

// ProducerConfig holds what a Producer needs besides its channels.
type ProducerConfig struct {
	Factory     DeviceFactory
	Device      DeviceConfig
	MinInterval time.Duration // zero means sample at the device's maximum rate
}

// Producer owns one Device and moves its readings into a SampleSink until it
// receives Shutdown, suffers a fatal error, or its context is cancelled.
type Producer struct {
	config  ProducerConfig
	sink    SampleSink
	control *ControlChannel
	logger  *log.Logger

	state    atomic.Int32
	seq      atomic.Uint64
	nerrors  atomic.Uint64
	accepted atomic.Uint64
	done     chan struct{}
}

// NewProducer creates a Producer in the Starting state. Nothing happens until Run.
func NewProducer(config ProducerConfig, sink SampleSink, control *ControlChannel, logger *log.Logger) *Producer {
	p := &Producer{
		config:  config,
		sink:    sink,
		control: control,
		logger:  logger,
		done:    make(chan struct{}),
	}
	p.state.Store(int32(Starting))
	return p
}

// State returns the current life-cycle state.
func (p *Producer) State() ProducerState {
	return ProducerState(p.state.Load())
}

func (p *Producer) setState(s ProducerState) {
	p.state.Store(int32(s))
}

// Done is closed when the producer reaches Stopped.
func (p *Producer) Done() <-chan struct{} {
	return p.done
}

// Samples is the number of successful device samples, which is also the last
// sequence number assigned.
func (p *Producer) Samples() uint64 {
	return p.seq.Load()
}

// Errors is the number of transient sample failures.
func (p *Producer) Errors() uint64 {
	return p.nerrors.Load()
}

// Run constructs the device and samples it until told to stop. It returns nil
// after a Shutdown signal, the construction or fatal device error otherwise,
// or ctx.Err() when the context is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	defer close(p.done)
	defer p.setState(Stopped)

	p.setState(Starting)
	if p.config.Factory == nil {
		p.logger.Printf("Producer has no device factory")
		return fmt.Errorf("producer for %q has no device factory", p.config.Device.Name)
	}
	dev, err := p.config.Factory(p.config.Device, p.logger)
	if err != nil {
		p.logger.Printf("Producer could not construct device %q: %v", p.config.Device.Name, err)
		return err
	}
	if closer, ok := dev.(io.Closer); ok {
		defer closer.Close()
	}

	p.setState(Running)
	p.logger.Printf("Producer running device %q (min interval %v)", p.config.Device.Name, p.config.MinInterval)
	err = p.loop(ctx, dev)
	p.logger.Printf("Producer exit: total reads %d, sample errors %d, accepted %d",
		p.Samples(), p.Errors(), p.accepted.Load())
	return err
}

func (p *Producer) loop(ctx context.Context, dev Device) error {
	var consecutive uint64
	for {
		start := time.Now()
		value, err := p.sampleOnce(dev)

		if ctxErr := ctx.Err(); ctxErr != nil {
			p.logger.Printf("Producer interrupted: %v", ctxErr)
			return ctxErr
		}

		if err != nil {
			if errors.Is(err, ErrDeviceFatal) {
				p.logger.Printf("Producer stopping on fatal device error: %v", err)
				return err
			}
			p.nerrors.Add(1)
			consecutive++
			if consecutive <= 10 || consecutive%1000 == 0 {
				p.logger.Printf("Producer sample error (%d in a row): %v", consecutive, err)
			}
		} else {
			consecutive = 0
			seq := p.seq.Add(1)
			if p.sink.TryPut(Sample{Seq: seq, Value: value}) {
				p.accepted.Add(1)
			}
		}

		if _, ok := p.control.Poll(); ok {
			p.shutdown()
			return nil
		}

		if p.config.MinInterval > 0 {
			wait := p.config.MinInterval - time.Since(start)
			if wait <= 0 {
				continue
			}
			select {
			case <-ctx.Done():
				p.logger.Printf("Producer interrupted: %v", ctx.Err())
				return ctx.Err()
			case <-p.control.C():
				p.shutdown()
				return nil
			case <-time.After(wait):
			}
		}
	}
}

func (p *Producer) shutdown() {
	p.setState(Stopping)
	p.logger.Printf("Producer received %s", Shutdown)
}

// sampleOnce calls the device, turning a panic into an ordinary error.
func (p *Producer) sampleOnce(dev Device) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device panic: %v", r)
		}
	}()
	return dev.Sample()
}
