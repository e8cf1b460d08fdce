// Package service holds the application layer: event lifecycle, the seat
// reservation coordinator, capability lookup and login.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// EventStore persists events.
type EventStore interface {
	CreateWithSeats(ctx context.Context, e *model.Event, seats []model.Seat) error
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	Update(ctx context.Context, e *model.Event, expected model.EventStatus) (bool, error)
	UpdateSummary(ctx context.Context, id uint64, reserved int, paid int64, at time.Time) error
	Search(ctx context.Context, q repository.EventQuery) ([]model.Event, int64, error)
}

// SeatReader is the read side of the seat store.
type SeatReader interface {
	ListByEvent(ctx context.Context, eventID uint64, status model.SeatStatus) ([]model.Seat, error)
	Totals(ctx context.Context, eventID uint64) (model.SeatTotals, error)
}

// CreateEventInput is an EventInput plus the price stamped on every seat.
// A zero Price falls back to the configured default.
type CreateEventInput struct {
	model.EventInput
	Price int64
}

// UpdateEventInput replaces the editable fields of a DRAFT event.
type UpdateEventInput struct {
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
}

// EventService runs the event lifecycle on top of the model aggregate.
type EventService struct {
	events       EventStore
	seats        SeatReader
	clock        clock.Clock
	defaultPrice int64
	log          *zap.Logger
}

func NewEventService(events EventStore, seats SeatReader, clk clock.Clock, defaultPrice int64, log *zap.Logger) *EventService {
	if events == nil || seats == nil || clk == nil {
		panic("nil dependency passed to NewEventService")
	}
	if defaultPrice <= 0 {
		defaultPrice = model.DefaultSeatPrice
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventService{events: events, seats: seats, clock: clk, defaultPrice: defaultPrice, log: log.Named("events")}
}

// Create validates the input and stores the DRAFT event together with its
// complete seat grid.
func (s *EventService) Create(ctx context.Context, in CreateEventInput) (*model.Event, error) {
	if in.Price < 0 {
		return nil, model.Validation(model.CodeInvalidParameter, "price must not be negative")
	}
	e, err := model.NewEvent(in.EventInput, s.clock.Now())
	if err != nil {
		return nil, err
	}
	price := in.Price
	if price == 0 {
		price = s.defaultPrice
	}
	seats := model.GenerateGrid(0, e.TotalRows, e.TotalCols, price)
	if err := s.events.CreateWithSeats(ctx, e, seats); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.log.Info("event created", zap.Uint64("event_id", e.ID), zap.Int("seats", len(seats)))
	return e, nil
}

// Get returns one event.
func (s *EventService) Get(ctx context.Context, id uint64) (*model.Event, error) {
	return s.events.GetByID(ctx, id)
}

// List returns one page of events and the total match count.
func (s *EventService) List(ctx context.Context, q repository.EventQuery) ([]model.Event, int64, error) {
	return s.events.Search(ctx, q)
}

// ListSeats returns the seats of an existing event, optionally filtered by status.
func (s *EventService) ListSeats(ctx context.Context, eventID uint64, status model.SeatStatus) ([]model.Seat, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.seats.ListByEvent(ctx, eventID, status)
}

// Update edits title, description and schedule of a DRAFT event.
func (s *EventService) Update(ctx context.Context, id uint64, in UpdateEventInput) (*model.Event, error) {
	return s.mutate(ctx, id, "update", func(e *model.Event) error {
		return e.UpdateBasicInfo(in.Title, in.Description, in.StartsAt, in.EndsAt)
	})
}

// Publish opens a DRAFT event for reservations.
func (s *EventService) Publish(ctx context.Context, id uint64) (*model.Event, error) {
	return s.mutate(ctx, id, "publish", func(e *model.Event) error {
		return e.Publish(s.clock.Now())
	})
}

// Close ends reservations on a PUBLISHED event.
func (s *EventService) Close(ctx context.Context, id uint64) (*model.Event, error) {
	return s.mutate(ctx, id, "close", (*model.Event).Close)
}

// Cancel aborts a DRAFT or PUBLISHED event.
func (s *EventService) Cancel(ctx context.Context, id uint64) (*model.Event, error) {
	return s.mutate(ctx, id, "cancel", (*model.Event).Cancel)
}

// mutate loads the event, applies fn and stores the result only if nobody
// changed the status in between. A lost race is reported as a status conflict.
func (s *EventService) mutate(ctx context.Context, id uint64, action string, fn func(*model.Event) error) (*model.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := e.Status
	if err := fn(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = s.clock.Now()

	ok, err := s.events.Update(ctx, e, expected)
	if err != nil {
		return nil, fmt.Errorf("%s event %d: %w", action, id, err)
	}
	if !ok {
		return nil, &model.Error{
			Kind:    model.KindConflict,
			Code:    model.CodeInvalidEventStatus,
			Message: fmt.Sprintf("cannot %s event: status changed concurrently (was %s)", action, expected),
		}
	}
	s.log.Info("event "+action, zap.Uint64("event_id", id), zap.String("status", string(e.Status)))
	return e, nil
}

// ReconcileSummary recomputes the reserved/paid projection of an event from
// its seats. It is idempotent, so duplicate or reordered settlement messages
// converge on the same values.
func (s *EventService) ReconcileSummary(ctx context.Context, eventID uint64) error {
	totals, err := s.seats.Totals(ctx, eventID)
	if err != nil {
		return fmt.Errorf("seat totals for event %d: %w", eventID, err)
	}
	var e model.Event
	e.UpdateReservationSummary(totals.Reserved, totals.Paid)
	if err := s.events.UpdateSummary(ctx, eventID, e.ReservedSeats, e.PaidAmount, s.clock.Now()); err != nil {
		return fmt.Errorf("update summary for event %d: %w", eventID, err)
	}
	return nil
}

// HandleSettlement adapts ReconcileSummary to the settlement consumer.
func (s *EventService) HandleSettlement(ctx context.Context, msg queue.SeatSettled) error {
	return s.ReconcileSummary(ctx, msg.EventID)
}
