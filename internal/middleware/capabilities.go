package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// CapabilityResolver expands role names into granted capability strings.
type CapabilityResolver interface {
	Resolve(ctx context.Context, roles []string) (map[string]struct{}, error)
}

// Capabilities resolves the roles put in context by JWTAuth into capability
// strings once per request. It must run after JWTAuth.
func Capabilities(resolver CapabilityResolver, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caps, err := resolver.Resolve(c.Request().Context(), Roles(c))
			if err != nil {
				log.Error("resolve capabilities failed", zap.String("user_id", UserID(c)), zap.Error(err))
				return errorJSON(c, http.StatusInternalServerError, model.CodeInternal, "internal error")
			}
			c.Set(ctxCapabilities, caps)
			return next(c)
		}
	}
}

// RequireCapability rejects the request with 403 unless cap was granted. The
// response does not reveal which capability was missing.
func RequireCapability(cap string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasCapability(c, cap) {
				return errorJSON(c, http.StatusForbidden, model.ErrForbidden.Code, model.ErrForbidden.Message)
			}
			return next(c)
		}
	}
}
