// zmqpub stands in for the temperature and power server: it publishes
// "temperature,power,count" messages for the ZMQ device to subscribe to.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/spf13/pflag"
	"github.com/usnistgov/fastpm"
)

func main() {
	endpoint := pflag.StringP("endpoint", "e", "tcp://*:6545", "ZMQ endpoint to bind")
	topic := pflag.StringP("topic", "t", fastpm.DefaultZMQTopic, "topic prefixed to every message")
	period := pflag.DurationP("period", "p", 100*time.Millisecond, "time between messages")
	temperature := pflag.Float64("temperature", 1, "temperature value to send")
	power := pflag.Float64("power", 2, "power value to send")
	count := pflag.IntP("count", "n", 0, "stop after this many messages (0 = forever)")
	pflag.Parse()

	logger := log.New(os.Stderr, "zmqpub ", log.LstdFlags)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := publish(ctx, *endpoint, *topic, *period, *temperature, *power, *count, logger); err != nil {
		logger.Fatal(err)
	}
}

func publish(ctx context.Context, endpoint, topic string, period time.Duration,
	temperature, power float64, count int, logger *log.Logger) error {
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return err
	}
	defer pubSocket.Close()
	pubSocket.SetLinger(0)
	if err := pubSocket.Bind(endpoint); err != nil {
		return fmt.Errorf("could not bind %s: %w", endpoint, err)
	}
	logger.Printf("Publishing %q on %s every %v", topic, endpoint, period)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for sent := 0; count <= 0 || sent < count; sent++ {
		select {
		case <-ctx.Done():
			logger.Printf("Stopping after %d messages", sent)
			return nil
		case <-ticker.C:
		}
		msg := fastpm.FormatTriValue(topic, temperature, power, sent)
		if _, err := pubSocket.Send(msg, 0); err != nil {
			return err
		}
	}
	logger.Printf("Sent %d messages", count)
	return nil
}
