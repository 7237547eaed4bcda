package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// bearerAuth rejects requests whose Authorization header does not carry token. Paths in
// open are served without it.
func bearerAuth(token string, open ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, path := range open {
				if c.Path() == path {
					return next(c)
				}
			}

			header := c.Request().Header.Get("Authorization")
			provided, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON{Error: "missing bearer token"})
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, errorJSON{Error: "invalid token"})
			}
			return next(c)
		}
	}
}
