package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 100000
)

// EventBrowser is the read side of the event service.
type EventBrowser interface {
	Get(ctx context.Context, id uint64) (*model.Event, error)
	List(ctx context.Context, q repository.EventQuery) ([]model.Event, int64, error)
	ListSeats(ctx context.Context, eventID uint64, status model.SeatStatus) ([]model.Seat, error)
}

// PublicEventHandler serves the unauthenticated event routes.
type PublicEventHandler struct {
	events EventBrowser
	log    *zap.Logger
}

func NewPublicEventHandler(events EventBrowser, log *zap.Logger) *PublicEventHandler {
	if events == nil {
		panic("nil EventBrowser passed to NewPublicEventHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PublicEventHandler{events: events, log: log.Named("public")}
}

// List: GET /v1/events?keyword=&page=&size=
// page is zero-based and at most maxPage; size defaults to 20 and is capped at 100.
func (h *PublicEventHandler) List(c echo.Context) error {
	page, err := queryInt(c, "page", 0)
	if err != nil {
		return writeError(c, h.log, err)
	}
	size, err := queryInt(c, "size", defaultPageSize)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if page < 0 {
		return writeError(c, h.log, invalidParam("page must not be negative"))
	}
	if page > maxPage {
		return writeError(c, h.log, invalidParam("page must not exceed %d", maxPage))
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	events, total, err := h.events.List(c.Request().Context(), repository.EventQuery{
		Keyword: strings.TrimSpace(c.QueryParam("keyword")),
		Page:    page,
		Size:    size,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}

	items := make([]eventListItem, 0, len(events))
	for i := range events {
		e := &events[i]
		items = append(items, eventListItem{
			EventID:        e.ID,
			Title:          e.Title,
			Status:         e.Status,
			StartsAt:       e.StartsAt,
			EndsAt:         e.EndsAt,
			TotalSeats:     e.TotalSeats,
			ReservedSeats:  e.ReservedSeats,
			AvailableSeats: e.AvailableSeats(),
		})
	}
	return c.JSON(http.StatusOK, listEnvelope{
		Code: codeEventsList,
		Page: pageInfo{
			Number:        page,
			Size:          size,
			TotalElements: total,
			TotalPages:    int((total + int64(size) - 1) / int64(size)),
		},
		Items: items,
	})
}

// Detail: GET /v1/events/:id
func (h *PublicEventHandler) Detail(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.log, err)
	}
	ev, err := h.events.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return ok(c, http.StatusOK, codeEventDetail, toEventDetail(ev))
}

// Seats: GET /v1/events/:id/seats?status=AVAILABLE|HOLD|SOLD
func (h *PublicEventHandler) Seats(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.log, err)
	}
	var status model.SeatStatus
	if raw := strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))); raw != "" {
		st, valid := model.ParseSeatStatus(raw)
		if !valid {
			return writeError(c, h.log, invalidParam("invalid seat status %q", raw))
		}
		status = st
	}
	seats, err := h.events.ListSeats(c.Request().Context(), id, status)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]seatDetail, 0, len(seats))
	for _, s := range seats {
		out = append(out, toSeatDetail(s))
	}
	return ok(c, http.StatusOK, codeSeatList, out)
}
