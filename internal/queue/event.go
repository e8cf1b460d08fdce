// Package queue defines message payloads exchanged over the message broker
// and the publisher/consumer pair that moves them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Transition names the seat state change a settlement message reports.
type Transition string

const (
	TransitionHold    Transition = "HOLD"
	TransitionRelease Transition = "RELEASE"
	TransitionExpire  Transition = "EXPIRE"
	TransitionSell    Transition = "SELL"
)

// SeatSettledQueue is the durable queue carrying SeatSettled messages.
const SeatSettledQueue = "seat.settled"

// SeatSettled is published after every successful seat transition. Consumers
// use it to refresh the owning event's reservation summary, so it carries the
// identifiers needed to do that without re-reading the seat.
type SeatSettled struct {
	MessageID  string     `json:"message_id"`
	EventID    uint64     `json:"event_id"`
	SeatID     uint64     `json:"seat_id"`
	SeatNumber string     `json:"seat_number"`
	Transition Transition `json:"transition"`
	Price      int64      `json:"price"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewSeatSettled stamps a fresh message id.
func NewSeatSettled(eventID, seatID uint64, number string, t Transition, price int64, at time.Time) SeatSettled {
	return SeatSettled{
		MessageID:  uuid.NewString(),
		EventID:    eventID,
		SeatID:     seatID,
		SeatNumber: number,
		Transition: t,
		Price:      price,
		OccurredAt: at.UTC(),
	}
}
