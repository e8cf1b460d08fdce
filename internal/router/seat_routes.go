package router

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// RegisterSeats registers the seat transitions under
// /v1/events/:id/seats/:seatId.  The limiter runs after JWTAuth so that
// per-user keys see the subject.
func RegisterSeats(e *echo.Echo, h *handler.SeatHandler, jwtSecret string, caps middleware.CapabilityResolver, limiter echo.MiddlewareFunc, log *zap.Logger) {
	g := e.Group(
		"/v1/events/:id/seats/:seatId",
		middleware.JWTAuth(jwtSecret),
		limiter,
		middleware.Capabilities(caps, log),
	)

	reserve := middleware.RequireCapability(model.CapSeatReserve)
	g.POST("/hold", h.Hold, reserve)
	g.POST("/sell", h.Sell, reserve)
	g.POST("/release", h.Release, middleware.RequireCapability(model.CapSeatCancel))
}
