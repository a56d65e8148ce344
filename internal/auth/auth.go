// Package auth guards the API routes with a shared bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Middleware requires "Authorization: Bearer <token>" on every request. An
// empty token disables the check so local deployments need no setup.
func Middleware(token string, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if token == "" {
			return next
		}
		return func(c echo.Context) error {
			presented := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if presented == "" {
				presented = c.QueryParam("token")
			}

			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.Warn().
					Str("uri", c.Request().RequestURI).
					Str("remote_ip", c.RealIP()).
					Msg("Rejected request with missing or invalid API token")
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Unauthorized. Provide a valid API token.",
				})
			}

			return next(c)
		}
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
