package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventClosed    EventStatus = "CLOSED"
	EventCanceled  EventStatus = "CANCELED"
)

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case EventDraft, EventPublished, EventClosed, EventCanceled:
		return true
	}
	return false
}

const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 1000
	MinGridSize          = 1
	MaxGridSize          = 50
)

// Event is the aggregate root owning a seat grid. Layout fields (TotalRows,
// TotalCols, TotalSeats) are only set by NewEvent; ReservedSeats and
// PaidAmount only change through UpdateReservationSummary.
type Event struct {
	ID            uint64
	Title         string
	Description   string
	Status        EventStatus
	StartsAt      time.Time
	EndsAt        time.Time
	TotalRows     int
	TotalCols     int
	TotalSeats    int
	ReservedSeats int
	PaidAmount    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EventInput carries the caller-supplied fields for a new event.
type EventInput struct {
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	TotalRows   int
	TotalCols   int
	TotalSeats  int
}

// NewEvent validates in and returns a DRAFT event.
func NewEvent(in EventInput, now time.Time) (*Event, error) {
	title, err := validateInfo(in.Title, in.Description, in.StartsAt, in.EndsAt)
	if err != nil {
		return nil, err
	}
	if err := validateLayout(in.TotalRows, in.TotalCols, in.TotalSeats); err != nil {
		return nil, err
	}
	return &Event{
		Title:       title,
		Description: in.Description,
		Status:      EventDraft,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt.UTC(),
		TotalRows:   in.TotalRows,
		TotalCols:   in.TotalCols,
		TotalSeats:  in.TotalSeats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func validateInfo(title, description string, start, end time.Time) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", Validation(CodeInvalidEventTitle, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", Validation(CodeInvalidEventTitle, "title must be at most %d characters", MaxTitleLength)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", Validation(CodeInvalidParameter, "description must be at most %d characters", MaxDescriptionLength)
	}
	if start.IsZero() {
		return "", Validation(CodeInvalidEventTime, "start time is required")
	}
	if end.IsZero() {
		return "", Validation(CodeInvalidEventTime, "end time is required")
	}
	if !end.After(start) {
		return "", Validation(CodeInvalidEventTime, "end time must be after start time")
	}
	return title, nil
}

func validateLayout(rows, cols, total int) error {
	if rows < MinGridSize || rows > MaxGridSize {
		return Validation(CodeInvalidEventLayout, "rows must be between %d and %d", MinGridSize, MaxGridSize)
	}
	if cols < MinGridSize || cols > MaxGridSize {
		return Validation(CodeInvalidEventLayout, "cols must be between %d and %d", MinGridSize, MaxGridSize)
	}
	if total != rows*cols {
		return Validation(CodeInvalidEventLayout, "total seats must equal rows x cols (expected %d, got %d)", rows*cols, total)
	}
	return nil
}

// canTransition is the event transition table.
func canTransition(from, to EventStatus) bool {
	switch to {
	case EventPublished:
		return from == EventDraft
	case EventClosed:
		return from == EventPublished
	case EventCanceled:
		return from == EventDraft || from == EventPublished
	}
	return false
}

func expectedFrom(to EventStatus) string {
	switch to {
	case EventPublished:
		return string(EventDraft)
	case EventClosed:
		return string(EventPublished)
	case EventCanceled:
		return string(EventDraft) + " or " + string(EventPublished)
	}
	return ""
}

func (e *Event) moveTo(to EventStatus, action string) error {
	if !canTransition(e.Status, to) {
		return conflict(CodeInvalidEventStatus, action+" event", string(e.Status), expectedFrom(to))
	}
	e.Status = to
	return nil
}

// Publish moves a DRAFT event to PUBLISHED. An event whose start time has
// already passed cannot be published.
func (e *Event) Publish(now time.Time) error {
	if !canTransition(e.Status, EventPublished) {
		return conflict(CodeInvalidEventStatus, "publish event", string(e.Status), expectedFrom(EventPublished))
	}
	if e.StartsAt.Before(now) {
		return &Error{Kind: KindConflict, Code: CodeEventNotPublishable, Message: "cannot publish event: start time is in the past"}
	}
	e.Status = EventPublished
	return nil
}

// Close moves a PUBLISHED event to CLOSED.
func (e *Event) Close() error { return e.moveTo(EventClosed, "close") }

// Cancel moves a DRAFT or PUBLISHED event to CANCELED.
func (e *Event) Cancel() error { return e.moveTo(EventCanceled, "cancel") }

// UpdateBasicInfo replaces title, description and schedule. Only DRAFT events
// are editable and nothing is changed unless every field is valid.
func (e *Event) UpdateBasicInfo(title, description string, start, end time.Time) error {
	if e.Status != EventDraft {
		return conflict(CodeInvalidEventStatus, "update event", string(e.Status), string(EventDraft))
	}
	t, err := validateInfo(title, description, start, end)
	if err != nil {
		return err
	}
	e.Title = t
	e.Description = description
	e.StartsAt = start.UTC()
	e.EndsAt = end.UTC()
	return nil
}

// UpdateReservationSummary stores the settled projection, clamping negatives to zero.
func (e *Event) UpdateReservationSummary(reserved int, paid int64) {
	e.ReservedSeats = max(reserved, 0)
	e.PaidAmount = max(paid, 0)
}

// AvailableSeats is the number of seats not held or sold according to the summary.
func (e *Event) AvailableSeats() int {
	return max(e.TotalSeats-e.ReservedSeats, 0)
}

// IsTerminal reports whether the event is CLOSED or CANCELED. Seats of a
// terminal event keep their last status.
func (s EventStatus) IsTerminal() bool { return s == EventClosed || s == EventCanceled }

// CheckSeatsMutable fails with an event conflict once the event is terminal.
func (e *Event) CheckSeatsMutable(action string) error {
	if !e.Status.IsTerminal() {
		return nil
	}
	return conflict(CodeInvalidEventStatus, action, string(e.Status), string(EventPublished))
}

// AcceptsReservations reports whether seats may be held or sold.
func (e *Event) AcceptsReservations() bool { return e.Status == EventPublished }

// CheckReservable fails with an event conflict unless seats may be held or sold.
func (e *Event) CheckReservable(action string) error {
	if e.AcceptsReservations() {
		return nil
	}
	return conflict(CodeInvalidEventStatus, action, string(e.Status), string(EventPublished))
}
