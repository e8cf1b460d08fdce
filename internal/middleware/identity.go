package middleware

// identity.go holds the context keys written by JWTAuth and Capabilities and
// the helpers handlers use to read them back.

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

const (
	ctxUserID       = "user_id"
	ctxRoles        = "roles"
	ctxCapabilities = "capabilities"
)

// UserID returns the authenticated subject, or "anon" when there is none.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// Roles returns the role names carried by the access token.
func Roles(c echo.Context) []string {
	roles, _ := c.Get(ctxRoles).([]string)
	return roles
}

// HasCapability reports whether Capabilities granted cap for this request.
func HasCapability(c echo.Context, cap string) bool {
	caps, ok := c.Get(ctxCapabilities).(map[string]struct{})
	if !ok {
		return false
	}
	_, ok = caps[cap]
	return ok
}

// errorJSON writes the common error envelope.
func errorJSON(c echo.Context, status int, code model.Code, msg string) error {
	return c.JSON(status, echo.Map{"code": int(code), "error": code.Name(), "message": msg})
}

func unauthorized(c echo.Context, msg string) error {
	return errorJSON(c, http.StatusUnauthorized, model.CodeUnauthorized, msg)
}
