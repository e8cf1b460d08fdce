package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LocalDispatcher delivers settlement messages in-process through a buffered
// channel. It stands in for RabbitMQ when the broker is disabled and feeds the
// same Handler the consumer would.
type LocalDispatcher struct {
	msgs       chan SeatSettled
	handle     Handler
	log        *zap.Logger
	retryDelay time.Duration
}

func NewLocalDispatcher(buffer int, handle Handler, log *zap.Logger) *LocalDispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalDispatcher{
		msgs:       make(chan SeatSettled, buffer),
		handle:     handle,
		log:        log.Named("dispatcher"),
		retryDelay: 500 * time.Millisecond,
	}
}

// Publish enqueues msg, waiting for buffer space until ctx is done.
func (d *LocalDispatcher) Publish(ctx context.Context, msg SeatSettled) error {
	select {
	case d.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles queued messages one at a time until ctx is canceled. A failed
// message is retried once after retryDelay, matching the broker's single
// requeue.
func (d *LocalDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.msgs:
			err := d.deliver(ctx, msg)
			if err != nil && sleep(ctx, d.retryDelay) {
				err = d.deliver(ctx, msg)
			}
			if err != nil {
				d.log.Error("handle settlement failed",
					zap.String("message_id", msg.MessageID),
					zap.Uint64("event_id", msg.EventID),
					zap.Error(err))
			}
		}
	}
}

func (d *LocalDispatcher) deliver(ctx context.Context, msg SeatSettled) error {
	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	return d.handle(hctx, msg)
}
