package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one settlement message.
type Handler func(ctx context.Context, msg SeatSettled) error

const (
	handleTimeout = 10 * time.Second
	maxBackoff    = 30 * time.Second
)

// StartSettlementConsumer consumes seat.settled until ctx is canceled,
// redialing with exponential backoff (1s doubling up to 30s) whenever the
// broker goes away. Messages the handler rejects are nacked without requeue
// so a poison message cannot spin the loop.
func StartSettlementConsumer(ctx context.Context, url string, handle Handler, log *zap.Logger) error {
	log = log.Named("consumer")
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, handle, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, handle Handler, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(SeatSettledQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(SeatSettledQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info("consuming", zap.String("queue", SeatSettledQueue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleDelivery(ctx, d.Body, handle); err != nil {
				requeue := shouldRequeue(err, d.Redelivered)
				log.Error("handle message failed",
					zap.String("message_id", d.MessageId),
					zap.Bool("requeue", requeue),
					zap.Error(err))
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// errMalformed marks deliveries that can never be handled.
var errMalformed = errors.New("malformed settlement")

// shouldRequeue gives a failed handler one more delivery. Malformed bodies and
// second failures are dropped; the summary then catches up on the event's
// next transition.
func shouldRequeue(err error, redelivered bool) bool {
	return !redelivered && !errors.Is(err, errMalformed)
}

func handleDelivery(ctx context.Context, body []byte, handle Handler) error {
	var msg SeatSettled
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.EventID == 0 {
		return fmt.Errorf("%w: message without event_id", errMalformed)
	}
	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	return handle(hctx, msg)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
