package router

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// RegisterAdmin registers event management under /v1/admin/events.  Every
// route needs a valid JWT and the capability named next to it.
func RegisterAdmin(e *echo.Echo, h *handler.AdminEventHandler, jwtSecret string, caps middleware.CapabilityResolver, log *zap.Logger) {
	g := e.Group(
		"/v1/admin/events",
		middleware.JWTAuth(jwtSecret),
		middleware.Capabilities(caps, log),
	)

	g.POST("", h.Create, middleware.RequireCapability(model.CapEventCreate))
	g.PUT("/:id", h.Update, middleware.RequireCapability(model.CapEventUpdate))

	status := middleware.RequireCapability(model.CapEventChangeStatus)
	g.POST("/:id/publish", h.Publish, status)
	g.POST("/:id/close", h.Close, status)
	g.POST("/:id/cancel", h.Cancel, status)
}
