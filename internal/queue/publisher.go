package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBacklog is how many events may wait for the broker before
	// Publish starts dropping them.
	DefaultBacklog = 1024

	dialTimeout    = 3 * time.Second
	publishTimeout = 5 * time.Second
)

var (
	ErrBacklogFull     = errors.New("event backlog full")
	ErrPublisherClosed = errors.New("event publisher closed")
)

// Publisher sends reservation events to RabbitMQ from a background
// goroutine.  Publish only enqueues, so a slow or unreachable broker never
// holds up the request that produced the event.  The connection is opened
// lazily and re-dialled after any failure.
type Publisher struct {
	url    string
	events chan ReservationEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	send func(ctx context.Context, ev ReservationEvent) error

	// owned by run
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher starts a Publisher for the broker at url.  Nothing is
// dialled until the first event arrives.
func NewPublisher(url string) *Publisher {
	return newPublisher(url, DefaultBacklog, nil)
}

func newPublisher(url string, backlog int, send func(context.Context, ReservationEvent) error) *Publisher {
	p := &Publisher{
		url:    url,
		events: make(chan ReservationEvent, backlog),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		send:   send,
	}
	if p.send == nil {
		p.send = p.publish
	}
	go p.run()
	return p
}

// Publish queues ev for delivery.  It never blocks: when the backlog is
// full the event is dropped and ErrBacklogFull returned.
func (p *Publisher) Publish(_ context.Context, ev ReservationEvent) error {
	select {
	case <-p.stop:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrBacklogFull
	}
}

// Close stops accepting events, tries to deliver what is queued and
// releases the broker connection.  Once a delivery fails during shutdown
// the remaining events are dropped.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.stop) })
	<-p.done
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	defer p.reset()
	for {
		select {
		case ev := <-p.events:
			p.deliver(ev)
		case <-p.stop:
			p.drain()
			return
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case ev := <-p.events:
			if !p.deliver(ev) {
				if n := len(p.events); n > 0 {
					log.Warn().Int("dropped", n).Msg("reservation events dropped at shutdown")
				}
				return
			}
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ev ReservationEvent) bool {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.send(ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("event", string(ev.Type)).
			Str("reservation_id", ev.ReservationID).
			Msg("reservation event not published")
		return false
	}
	return true
}

// publish sends ev persistent to the reservation.events queue through the
// default exchange.
func (p *Publisher) publish(ctx context.Context, ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",                     // default exchange
		ReservationEventsQueue, // routing key = queue name
		false,                  // mandatory
		false,                  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(ev.Type),
			MessageId:    ev.ReservationID + ":" + string(ev.Type) + ":" + ev.Status,
			Body:         body,
		})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// channel returns an open channel, dialling when needed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	log.Debug().Str("queue", ReservationEventsQueue).Msg("event publisher connected")
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// declare makes sure the durable queue exists.  It is idempotent.
func declare(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		ReservationEventsQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return q, fmt.Errorf("queue declare: %w", err)
	}
	return q, nil
}
