package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
)

// SeatStore is the persistence contract the coordinator relies on.
// CompareAndSwap must succeed for exactly one caller per observed version.
type SeatStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Seat, error)
	CompareAndSwap(ctx context.Context, prev, next model.Seat) (bool, error)
}

// EventReader loads the event that owns a seat.
type EventReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// SettlementPublisher delivers SeatSettled messages to whoever maintains the
// event summaries.
type SettlementPublisher interface {
	Publish(ctx context.Context, msg queue.SeatSettled) error
}

const publishTimeout = 5 * time.Second

// Coordinator is the only component that changes seat status. Each operation
// reads a snapshot, applies the transition to a copy and swaps it in on the
// snapshot's version.
type Coordinator struct {
	seats  SeatStore
	events EventReader
	clock  clock.Clock
	pub    SettlementPublisher
	log    *zap.Logger
	tracer trace.Tracer

	inflight sync.WaitGroup
}

// NewCoordinator wires a coordinator. pub may be nil, in which case
// transitions are not announced.
func NewCoordinator(seats SeatStore, events EventReader, clk clock.Clock, pub SettlementPublisher, log *zap.Logger) *Coordinator {
	if seats == nil || events == nil || clk == nil {
		panic("nil dependency passed to NewCoordinator")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		seats:  seats,
		events: events,
		clock:  clk,
		pub:    pub,
		log:    log.Named("coordinator"),
		tracer: otel.Tracer("reservation"),
	}
}

// TryHold places a hold of length ttl on an AVAILABLE seat of a PUBLISHED
// event. Of any number of concurrent callers for the same seat at most one
// succeeds; the rest get model.ErrSeatNotAvailable.
func (c *Coordinator) TryHold(ctx context.Context, seatID uint64, ttl time.Duration) (model.Seat, error) {
	ctx, span := c.start(ctx, "coordinator.TryHold", seatID)
	defer span.End()

	cur, err := c.seats.GetByID(ctx, seatID)
	if err != nil {
		return model.Seat{}, record(span, err)
	}
	if err := c.checkEvent(ctx, cur.EventID, "hold seat "+cur.Number); err != nil {
		return *cur, record(span, err)
	}

	now := c.clock.Now()
	next := *cur
	if err := next.Hold(now, ttl); err != nil {
		return *cur, record(span, err)
	}
	next.UpdatedAt = now

	ok, err := c.seats.CompareAndSwap(ctx, *cur, next)
	if err != nil {
		return model.Seat{}, record(span, fmt.Errorf("hold seat %d: %w", seatID, err))
	}
	if !ok {
		return *cur, record(span, &model.Error{
			Kind:    model.KindConflict,
			Code:    model.CodeSeatNotAvailable,
			Message: "seat " + cur.Number + " is not available (taken concurrently)",
		})
	}
	next.Version++
	c.settle(next, queue.TransitionHold, now)
	return next, nil
}

// Release returns a held seat to AVAILABLE. Releasing a seat that is not held,
// or losing the swap to another writer, is a no-op that reports the seat as it
// currently is. Seats of a CLOSED or CANCELED event are frozen.
func (c *Coordinator) Release(ctx context.Context, seatID uint64) (model.Seat, error) {
	ctx, span := c.start(ctx, "coordinator.Release", seatID)
	defer span.End()

	cur, err := c.seats.GetByID(ctx, seatID)
	if err != nil {
		return model.Seat{}, record(span, err)
	}
	ev, err := c.events.GetByID(ctx, cur.EventID)
	if err != nil {
		return *cur, record(span, err)
	}
	if err := ev.CheckSeatsMutable("release seat " + cur.Number); err != nil {
		return *cur, record(span, err)
	}
	if cur.Status != model.SeatHold {
		span.SetAttributes(attribute.Bool("seat.noop", true))
		return *cur, nil
	}

	now := c.clock.Now()
	next := *cur
	if err := next.Release(); err != nil {
		return *cur, record(span, err)
	}
	next.UpdatedAt = now

	ok, err := c.seats.CompareAndSwap(ctx, *cur, next)
	if err != nil {
		return model.Seat{}, record(span, fmt.Errorf("release seat %d: %w", seatID, err))
	}
	if !ok {
		span.SetAttributes(attribute.Bool("seat.noop", true))
		latest, err := c.seats.GetByID(ctx, seatID)
		if err != nil {
			return model.Seat{}, record(span, err)
		}
		return *latest, nil
	}
	next.Version++
	c.settle(next, queue.TransitionRelease, now)
	return next, nil
}

// ReleaseExpired reclaims a lapsed hold described by snapshot. It reports
// false without error when the hold is not expired yet or when the stored
// seat has moved on since the snapshot was taken (sold, released or re-held).
// Holds on a CLOSED or CANCELED event are left in place, also without error.
func (c *Coordinator) ReleaseExpired(ctx context.Context, snapshot model.Seat) (bool, error) {
	ctx, span := c.start(ctx, "coordinator.ReleaseExpired", snapshot.ID)
	defer span.End()

	now := c.clock.Now()
	if !snapshot.IsExpired(now) {
		return false, nil
	}
	ev, err := c.events.GetByID(ctx, snapshot.EventID)
	if err != nil {
		return false, record(span, err)
	}
	if ev.Status.IsTerminal() {
		span.SetAttributes(attribute.Bool("seat.frozen", true))
		return false, nil
	}
	next := snapshot
	if err := next.Release(); err != nil {
		return false, record(span, err)
	}
	next.UpdatedAt = now

	ok, err := c.seats.CompareAndSwap(ctx, snapshot, next)
	if err != nil {
		return false, record(span, fmt.Errorf("expire seat %d: %w", snapshot.ID, err))
	}
	span.SetAttributes(attribute.Bool("seat.released", ok))
	if ok {
		next.Version++
		c.settle(next, queue.TransitionExpire, now)
	}
	return ok, nil
}

// Sell converts a live hold into a sale. A seat that is not HOLD, or whose
// hold has lapsed, fails with model.ErrInvalidSeatStatus and the caller has
// to start over.
func (c *Coordinator) Sell(ctx context.Context, seatID uint64) (model.Seat, error) {
	ctx, span := c.start(ctx, "coordinator.Sell", seatID)
	defer span.End()

	cur, err := c.seats.GetByID(ctx, seatID)
	if err != nil {
		return model.Seat{}, record(span, err)
	}
	if err := c.checkEvent(ctx, cur.EventID, "sell seat "+cur.Number); err != nil {
		return *cur, record(span, err)
	}

	now := c.clock.Now()
	next := *cur
	if err := next.SellLive(now); err != nil {
		return *cur, record(span, err)
	}
	next.UpdatedAt = now

	ok, err := c.seats.CompareAndSwap(ctx, *cur, next)
	if err != nil {
		return model.Seat{}, record(span, fmt.Errorf("sell seat %d: %w", seatID, err))
	}
	if !ok {
		return *cur, record(span, &model.Error{
			Kind:    model.KindConflict,
			Code:    model.CodeInvalidSeatStatus,
			Message: "cannot sell seat " + cur.Number + ": hold changed concurrently",
		})
	}
	next.Version++
	c.settle(next, queue.TransitionSell, now)
	return next, nil
}

// Wait blocks until every settlement message scheduled so far was handed to
// the publisher, or until ctx is done. Publishes still running after ctx
// ends are abandoned and their summaries catch up on the next transition.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) checkEvent(ctx context.Context, eventID uint64, action string) error {
	ev, err := c.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	return ev.CheckReservable(action)
}

// settle announces a transition in the background. Failures are logged only;
// the seat row is already authoritative.
func (c *Coordinator) settle(s model.Seat, t queue.Transition, at time.Time) {
	if c.pub == nil {
		return
	}
	msg := queue.NewSeatSettled(s.EventID, s.ID, s.Number, t, s.Price, at)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := c.pub.Publish(ctx, msg); err != nil {
			c.log.Warn("publish settlement failed",
				zap.String("message_id", msg.MessageID),
				zap.Uint64("event_id", msg.EventID),
				zap.Uint64("seat_id", msg.SeatID),
				zap.String("transition", string(t)),
				zap.Error(err))
		}
	}()
}

func (c *Coordinator) start(ctx context.Context, name string, seatID uint64) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("seat.id", int64(seatID))))
}

func record(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
