// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
)

// RegisterRoutes registers the unauthenticated probes.  /readyz also pings
// the database.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers login, refresh and logout under /v1/auth.  None of
// them require an access token; refresh and logout take the refresh token in
// the body.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
}

// RegisterPublic registers the guest browse endpoints.  The event list and
// event detail go through the response cache; seat listings are always live.
func RegisterPublic(e *echo.Echo, p *handler.PublicEventHandler, cache *middleware.ResponseCache) {
	cached := cache.Middleware()
	e.GET("/v1/events", p.List, cached)
	e.GET("/v1/events/:id", p.Detail, cached)
	e.GET("/v1/events/:id/seats", p.Seats)
}
