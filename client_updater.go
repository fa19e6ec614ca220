package fastpm

// Contains the Publisher object, which publishes JSON-encoded samples on a
// ZMQ PUB socket for any number of downstream displays.

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// DefaultPublishTopic is the first frame of every published message.
const DefaultPublishTopic = "fastpm"

// Publisher forwards samples to a ZMQ PUB socket. Publish never blocks: if
// the socket falls behind, only the newest sample waits to be sent.
type Publisher struct {
	pub      *zmq.Socket
	topic    string
	feed     *Mailbox
	logger   *log.Logger
	finished chan struct{}
	nsent    uint64
}

// NewPublisher binds a PUB socket to endpoint and starts the send loop.
func NewPublisher(endpoint, topic string, logger *log.Logger) (*Publisher, error) {
	if topic == "" {
		topic = DefaultPublishTopic
	}
	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := pub.SetLinger(0); err != nil {
		pub.Close()
		return nil, err
	}
	if err := pub.Bind(endpoint); err != nil {
		pub.Close()
		return nil, err
	}
	p := &Publisher{
		pub:      pub,
		topic:    topic,
		feed:     NewMailbox(Overwrite),
		logger:   logger,
		finished: make(chan struct{}),
	}
	go p.run()
	logger.Printf("Publishing samples on %s topic %q", endpoint, topic)
	return p, nil
}

// Publish queues s for sending, replacing any sample not yet sent.
func (p *Publisher) Publish(s Sample) {
	p.feed.TryPut(s)
}

func (p *Publisher) run() {
	defer close(p.finished)
	for {
		s, err := p.feed.TakeBlocking(time.Second)
		if errors.Is(err, ErrTimeout) {
			continue
		} else if err != nil {
			return
		}
		message, err := json.Marshal(s)
		if err != nil {
			p.logger.Printf("Publisher could not encode %v: %v", s, err)
			continue
		}
		if _, err := p.pub.SendMessage(p.topic, message); err != nil {
			p.logger.Printf("Publisher send error: %v", err)
			continue
		}
		p.nsent++
	}
}

// Close stops the send loop and closes the socket.
func (p *Publisher) Close() error {
	p.feed.Close()
	<-p.finished
	p.logger.Printf("Publisher sent %d samples", p.nsent)
	return p.pub.Close()
}
