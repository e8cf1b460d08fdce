package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

// EventAdmin is the write side of the event service.
type EventAdmin interface {
	Create(ctx context.Context, in service.CreateEventInput) (*model.Event, error)
	Update(ctx context.Context, id uint64, in service.UpdateEventInput) (*model.Event, error)
	Publish(ctx context.Context, id uint64) (*model.Event, error)
	Close(ctx context.Context, id uint64) (*model.Event, error)
	Cancel(ctx context.Context, id uint64) (*model.Event, error)
}

// CachePurger drops cached public responses after a write.
type CachePurger interface {
	Purge(ctx context.Context) error
}

// AdminEventHandler serves /v1/admin/events.
type AdminEventHandler struct {
	events EventAdmin
	cache  CachePurger
	log    *zap.Logger
}

// NewAdminEventHandler panics on a nil service.  cache may be nil.
func NewAdminEventHandler(events EventAdmin, cache CachePurger, log *zap.Logger) *AdminEventHandler {
	if events == nil {
		panic("nil EventAdmin passed to NewAdminEventHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminEventHandler{events: events, cache: cache, log: log.Named("admin")}
}

type createEventReq struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
	TotalSeats  int       `json:"totalSeats"`
	TotalRows   int       `json:"totalRows"`
	TotalCols   int       `json:"totalCols"`
	Price       int64     `json:"seatPrice"`
}

type updateEventReq struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
}

// Create: POST /v1/admin/events -> 201 EventDetail.
func (h *AdminEventHandler) Create(c echo.Context) error {
	var req createEventReq
	if err := c.Bind(&req); err != nil {
		return writeError(c, h.log, invalidParam("invalid body"))
	}
	ev, err := h.events.Create(c.Request().Context(), service.CreateEventInput{
		EventInput: model.EventInput{
			Title:       req.Title,
			Description: req.Description,
			StartsAt:    req.StartsAt,
			EndsAt:      req.EndsAt,
			TotalRows:   req.TotalRows,
			TotalCols:   req.TotalCols,
			TotalSeats:  req.TotalSeats,
		},
		Price: req.Price,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.purge(c)
	return ok(c, http.StatusCreated, codeEventDetail, toEventDetail(ev))
}

// Update: PUT /v1/admin/events/:id -> 200 EventDetail.  Only DRAFT events.
func (h *AdminEventHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.log, err)
	}
	var req updateEventReq
	if err := c.Bind(&req); err != nil {
		return writeError(c, h.log, invalidParam("invalid body"))
	}
	ev, err := h.events.Update(c.Request().Context(), id, service.UpdateEventInput{
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.purge(c)
	return ok(c, http.StatusOK, codeEventDetail, toEventDetail(ev))
}

func (h *AdminEventHandler) Publish(c echo.Context) error { return h.changeStatus(c, h.events.Publish) }
func (h *AdminEventHandler) Close(c echo.Context) error   { return h.changeStatus(c, h.events.Close) }
func (h *AdminEventHandler) Cancel(c echo.Context) error  { return h.changeStatus(c, h.events.Cancel) }

func (h *AdminEventHandler) changeStatus(c echo.Context, fn func(context.Context, uint64) (*model.Event, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.log, err)
	}
	ev, err := fn(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.purge(c)
	return ok(c, http.StatusOK, codeEventStatus, eventStatus{ID: ev.ID, Status: ev.Status, UpdatedAt: ev.UpdatedAt})
}

// purge is best effort; cached entries expire on their own.
func (h *AdminEventHandler) purge(c echo.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Purge(c.Request().Context()); err != nil {
		h.log.Warn("cache purge failed", zap.Error(err))
	}
}
