// Package handler exposes the HTTP API.  Handlers decode the request, call a
// service and render one of the response envelopes defined here.  Domain
// errors are translated in a single place (writeError) so every route answers
// failures with the same {"code","error","message"} shape.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// Response codes carried by success envelopes.
const (
	codeEventDetail = "EVENT_DETAIL"
	codeEventStatus = "EVENT_STATUS"
	codeEventsList  = "EVENTS_LIST"
	codeSeatList    = "SEAT_LIST"
	codeSeatDetail  = "SEAT_DETAIL"
	codeSession     = "SESSION"
)

type envelope struct {
	Code string `json:"code"`
	Data any    `json:"data"`
}

type pageInfo struct {
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

type listEnvelope struct {
	Code  string   `json:"code"`
	Page  pageInfo `json:"page"`
	Items any      `json:"items"`
}

// eventDetail is the full view of an event including the settled summary.
type eventDetail struct {
	EventID        uint64            `json:"eventId"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Status         model.EventStatus `json:"status"`
	StartsAt       time.Time         `json:"startsAt"`
	EndsAt         time.Time         `json:"endsAt"`
	TotalRows      int               `json:"totalRows"`
	TotalCols      int               `json:"totalCols"`
	TotalSeats     int               `json:"totalSeats"`
	ReservedSeats  int               `json:"reservedSeats"`
	AvailableSeats int               `json:"availableSeats"`
	PaidAmount     int64             `json:"paidAmount"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func toEventDetail(e *model.Event) eventDetail {
	return eventDetail{
		EventID:        e.ID,
		Title:          e.Title,
		Description:    e.Description,
		Status:         e.Status,
		StartsAt:       e.StartsAt,
		EndsAt:         e.EndsAt,
		TotalRows:      e.TotalRows,
		TotalCols:      e.TotalCols,
		TotalSeats:     e.TotalSeats,
		ReservedSeats:  e.ReservedSeats,
		AvailableSeats: e.AvailableSeats(),
		PaidAmount:     e.PaidAmount,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// eventStatus answers lifecycle commands.
type eventStatus struct {
	ID        uint64            `json:"id"`
	Status    model.EventStatus `json:"status"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// eventListItem is the trimmed row used by the public list.
type eventListItem struct {
	EventID        uint64            `json:"eventId"`
	Title          string            `json:"title"`
	Status         model.EventStatus `json:"status"`
	StartsAt       time.Time         `json:"startsAt"`
	EndsAt         time.Time         `json:"endsAt"`
	TotalSeats     int               `json:"totalSeats"`
	ReservedSeats  int               `json:"reservedSeats"`
	AvailableSeats int               `json:"availableSeats"`
}

type seatDetail struct {
	SeatID        uint64           `json:"seatId"`
	Row           int              `json:"row"`
	Col           int              `json:"col"`
	SeatNumber    string           `json:"seatNumber"`
	Price         int64            `json:"price"`
	Status        model.SeatStatus `json:"status"`
	HoldExpiresAt *time.Time       `json:"holdExpiresAt,omitempty"`
}

func toSeatDetail(s model.Seat) seatDetail {
	return seatDetail{
		SeatID:        s.ID,
		Row:           s.Row,
		Col:           s.Col,
		SeatNumber:    s.Number,
		Price:         s.Price,
		Status:        s.Status,
		HoldExpiresAt: s.HoldExpiresAt,
	}
}

func ok(c echo.Context, status int, code string, data any) error {
	return c.JSON(status, envelope{Code: code, Data: data})
}

func errorBody(code model.Code, msg string) echo.Map {
	return echo.Map{"code": int(code), "error": code.Name(), "message": msg}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k model.Kind) int {
	switch k {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err.  Anything that is not a domain error is logged and
// hidden behind INTERNAL_ERROR.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	if de, isDomain := model.AsError(err); isDomain {
		return c.JSON(statusFor(de.Kind), errorBody(de.Code, de.Message))
	}
	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("route", c.Path()),
		zap.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, errorBody(model.CodeInternal, "internal error"))
}

func invalidParam(format string, args ...any) error {
	return model.Validation(model.CodeInvalidParameter, format, args...)
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, invalidParam("invalid %s %q", name, raw)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam("invalid %s %q", name, raw)
	}
	return n, nil
}
