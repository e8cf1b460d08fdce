package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"strings" // prefix checking and trimming of the Authorization header

	"github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject and roles claims into the request context.
// Handlers read them back with UserID and Roles.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// only HS256 tokens signed with our secret are accepted
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return unauthorized(c, "invalid token")
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(c, "invalid claims")
			}
			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				return unauthorized(c, "invalid claims")
			}

			c.Set(ctxUserID, sub)
			c.Set(ctxRoles, rolesClaim(claims))
			return next(c)
		}
	}
}

// rolesClaim reads "roles" as a list, accepting a legacy single "role" string.
func rolesClaim(claims jwt.MapClaims) []string {
	roles := []string{}
	switch v := claims["roles"].(type) {
	case []interface{}:
		for _, r := range v {
			if s, ok := r.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
	case string:
		if v != "" {
			roles = append(roles, v)
		}
	}
	if s, ok := claims["role"].(string); ok && s != "" && len(roles) == 0 {
		roles = append(roles, s)
	}
	return roles
}
