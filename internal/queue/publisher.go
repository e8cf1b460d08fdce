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

const (
	dialTimeout = 3 * time.Second
	redialDelay = 2 * time.Second
	amqpLocale  = "en_US"
)

// ErrBrokerUnavailable is returned without dialing while the publisher waits
// out the delay after a failed connection attempt.
var ErrBrokerUnavailable = errors.New("rabbitmq unavailable")

// Publisher sends SeatSettled messages to the seat.settled queue. It keeps one
// connection and channel open and redials lazily after a failure. Callers
// queue on a one-slot semaphore so a waiting Publish gives up with its ctx.
type Publisher struct {
	url string
	log *zap.Logger

	sem     chan struct{}
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
	now     func() time.Time
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log.Named("publisher"), sem: make(chan struct{}, 1), now: time.Now}
}

func (p *Publisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) unlock() { <-p.sem }

// Publish marshals msg and publishes it as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, msg SeatSettled) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.MessageID, err)
	}

	if err := p.lock(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", msg.MessageID, err)
	}
	defer p.unlock()

	ch, err := p.channelLocked(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.MessageID, err)
	}
	err = ch.PublishWithContext(ctx,
		"",               // default exchange
		SeatSettledQueue, // routing key = queue name
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.MessageID,
			Type:         "SeatSettled",
			Timestamp:    msg.OccurredAt,
			Body:         body,
		})
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", msg.MessageID, err)
	}
	return nil
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer p.unlock()
	var err error
	if p.conn != nil {
		err = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	return err
}

// channelLocked returns the open channel or dials a new one. The dial is
// bounded by dialTimeout and by ctx's deadline, whichever is sooner.
func (p *Publisher) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	now := p.now()
	if now.Before(p.retryAt) {
		return nil, ErrBrokerUnavailable
	}
	timeout := dialTimeout
	if dl, ok := ctx.Deadline(); ok && dl.Sub(now) < timeout {
		timeout = dl.Sub(now)
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Locale: amqpLocale, Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		p.retryAt = p.now().Add(redialDelay)
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(redialDelay)
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(SeatSettledQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(redialDelay)
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("rabbitmq publisher connected", zap.String("queue", SeatSettledQueue))
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
