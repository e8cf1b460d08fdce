package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// SeatCoordinator performs seat transitions.
type SeatCoordinator interface {
	TryHold(ctx context.Context, seatID uint64, ttl time.Duration) (model.Seat, error)
	Release(ctx context.Context, seatID uint64) (model.Seat, error)
	Sell(ctx context.Context, seatID uint64) (model.Seat, error)
}

// SeatLookup loads a seat so the route's event id can be checked.
type SeatLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Seat, error)
}

// SeatHandler serves hold, release and sell under /v1/events/:id/seats/:seatId.
type SeatHandler struct {
	coord   SeatCoordinator
	seats   SeatLookup
	holdTTL time.Duration
	log     *zap.Logger
}

func NewSeatHandler(coord SeatCoordinator, seats SeatLookup, holdTTL time.Duration, log *zap.Logger) *SeatHandler {
	if coord == nil || seats == nil {
		panic("nil dependency passed to NewSeatHandler")
	}
	if holdTTL <= 0 {
		holdTTL = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SeatHandler{coord: coord, seats: seats, holdTTL: holdTTL, log: log.Named("seats")}
}

// Hold: POST .../hold
func (h *SeatHandler) Hold(c echo.Context) error {
	return h.transition(c, "hold", func(ctx context.Context, id uint64) (model.Seat, error) {
		return h.coord.TryHold(ctx, id, h.holdTTL)
	})
}

// Release: POST .../release.  Releasing a seat that is not held answers 200
// with the seat as it is.
func (h *SeatHandler) Release(c echo.Context) error {
	return h.transition(c, "release", h.coord.Release)
}

// Sell: POST .../sell
func (h *SeatHandler) Sell(c echo.Context) error {
	return h.transition(c, "sell", h.coord.Sell)
}

func (h *SeatHandler) transition(c echo.Context, action string, fn func(context.Context, uint64) (model.Seat, error)) error {
	eventID, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.log, err)
	}
	seatID, err := parseID(c, "seatId")
	if err != nil {
		return writeError(c, h.log, err)
	}
	ctx := c.Request().Context()

	// a seat addressed through the wrong event is reported as missing
	cur, err := h.seats.GetByID(ctx, seatID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if cur.EventID != eventID {
		return writeError(c, h.log, model.ErrSeatNotFound)
	}

	seat, err := fn(ctx, seatID)
	if err != nil {
		if de, isDomain := model.AsError(err); isDomain && de.Kind == model.KindConflict {
			h.log.Info("seat transition rejected",
				zap.String("action", action),
				zap.Uint64("seat_id", seatID),
				zap.String("user_id", middleware.UserID(c)),
				zap.String("reason", de.Code.Name()),
				zap.Bool("seat_conflict", de.Code.IsSeatConflict()),
			)
		}
		return writeError(c, h.log, err)
	}
	return ok(c, http.StatusOK, codeSeatDetail, toSeatDetail(seat))
}
