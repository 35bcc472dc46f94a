package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireAdminToken gates the admin surface behind a shared token carried in
// the X-Admin-Token header. The operator dashboard is the only caller; user
// authentication lives in a separate service and never reaches this one.
func RequireAdminToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				// No token configured means the admin surface is disabled.
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":   "admin_disabled",
					"message": "Admin surface is not configured.",
				})
			}

			provided := c.Request().Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "unauthorized",
					"message": "Invalid admin token.",
				})
			}

			return next(c)
		}
	}
}
