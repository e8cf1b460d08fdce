package model

import (
	"strconv"
	"time"
)

// SeatStatus is the reservation state of a single seat.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHold      SeatStatus = "HOLD"
	SeatSold      SeatStatus = "SOLD"
)

// ParseSeatStatus accepts the status names case-sensitively as stored.
func ParseSeatStatus(s string) (SeatStatus, bool) {
	switch st := SeatStatus(s); st {
	case SeatAvailable, SeatHold, SeatSold:
		return st, true
	}
	return "", false
}

// Seat belongs to exactly one event. Status and HoldExpiresAt change only
// through Hold, Release and Sell; HoldExpiresAt is non-nil iff Status is HOLD.
type Seat struct {
	ID            uint64
	EventID       uint64
	Row           int
	Col           int
	Number        string
	Price         int64
	Status        SeatStatus
	HoldExpiresAt *time.Time
	Version       uint32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSeat returns an AVAILABLE seat with its number fixed from row and col.
func NewSeat(eventID uint64, row, col int, price int64) Seat {
	return Seat{
		EventID: eventID,
		Row:     row,
		Col:     col,
		Number:  SeatNumber(row, col),
		Price:   price,
		Status:  SeatAvailable,
	}
}

// Hold reserves the seat until now+ttl.
func (s *Seat) Hold(now time.Time, ttl time.Duration) error {
	if s.Status != SeatAvailable {
		return &Error{
			Kind:    KindConflict,
			Code:    CodeSeatNotAvailable,
			Message: "seat " + s.Number + " is not available (current status " + string(s.Status) + ")",
		}
	}
	exp := now.Add(ttl).UTC()
	s.Status = SeatHold
	s.HoldExpiresAt = &exp
	return nil
}

// Release returns a held seat to AVAILABLE.
func (s *Seat) Release() error {
	if s.Status != SeatHold {
		return conflict(CodeInvalidSeatStatus, "release seat "+s.Number, string(s.Status), string(SeatHold))
	}
	s.Status = SeatAvailable
	s.HoldExpiresAt = nil
	return nil
}

// Sell converts a hold into a sale.
func (s *Seat) Sell() error {
	if s.Status != SeatHold {
		return conflict(CodeInvalidSeatStatus, "sell seat "+s.Number, string(s.Status), string(SeatHold))
	}
	s.Status = SeatSold
	s.HoldExpiresAt = nil
	return nil
}

// SellLive sells the seat only while its hold has not lapsed at now. A stale
// hold that the sweeper has not reached yet is treated as lost.
func (s *Seat) SellLive(now time.Time) error {
	if s.IsExpired(now) {
		return conflict(CodeInvalidSeatStatus, "sell seat "+s.Number, "HOLD (expired)", string(SeatHold))
	}
	return s.Sell()
}

// IsExpired reports whether a hold has lapsed. It never mutates the seat.
func (s Seat) IsExpired(now time.Time) bool {
	return s.Status == SeatHold && s.HoldExpiresAt != nil && s.HoldExpiresAt.Before(now)
}

// SeatNumber renders a 1-based row and column as e.g. "A1", "Z3", "AA12".
func SeatNumber(row, col int) string {
	return RowLabel(row) + strconv.Itoa(col)
}

// RowLabel converts a 1-based row index into a spreadsheet-style label.
func RowLabel(row int) string {
	if row < 1 {
		return ""
	}
	i := row - 1
	res := []rune{}
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// SeatTotals is the settled reservation projection of one event.
type SeatTotals struct {
	Reserved int
	Paid     int64
}
