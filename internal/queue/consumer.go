package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// errDeliveriesClosed ends a consume loop so the caller reconnects.
var errDeliveriesClosed = errors.New("deliveries channel closed")

// RunAuditConsumer consumes reservation.events and writes one structured
// line per event to sink.  It reconnects with exponential backoff until ctx
// is cancelled, which is the only way it returns.
func RunAuditConsumer(ctx context.Context, url string, sink io.Writer) error {
	audit := zerolog.New(sink).With().Timestamp().Logger()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	op := func() error {
		conn, err := amqp.Dial(url)
		if err != nil {
			return fmt.Errorf("dial broker: %w", err)
		}
		defer func() { _ = conn.Close() }()
		bo.Reset()

		err = consumeLoop(ctx, conn, audit)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("audit consumer disconnected")
	}
	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, audit zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("audit consumer: set QoS failed")
	}
	if _, err := declare(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(ReservationEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info().Str("queue", ReservationEventsQueue).Msg("audit consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			if err := handleMessage(d.Body, audit); err != nil {
				log.Error().Err(err).Str("message_id", d.MessageId).Msg("audit consumer: bad message")
				_ = d.Nack(false, false) // poison message, do not requeue
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(body []byte, audit zerolog.Logger) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ReservationID == "" {
		return errors.New("event without type or reservation id")
	}
	e := audit.Info().
		Str("event", string(ev.Type)).
		Str("reservation_id", ev.ReservationID).
		Str("facility_id", ev.FacilityID).
		Str("date", ev.Date).
		Str("window", ev.Start+"-"+ev.End).
		Int("quantity", ev.Quantity).
		Str("requester_id", ev.RequesterID).
		Str("status", ev.Status).
		Str("actor_id", ev.ActorID).
		Str("occurred_at", ev.OccurredAt)
	if ev.PreviousStatus != "" {
		e = e.Str("previous_status", ev.PreviousStatus)
	}
	if ev.AdminNote != "" {
		e = e.Str("admin_note", ev.AdminNote)
	}
	e.Msg("reservation event")
	return nil
}
