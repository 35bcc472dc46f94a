package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(60, 3) // 1 req/s, burst of 3

	handler := rl.RateLimitMiddleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/experiments/assignment", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		_ = handler(c)
		return rec.Code
	}

	t.Run("Burst allowed, then limited", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, do("10.0.0.1"))
		}
		assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	})

	t.Run("Limits are per IP", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do("10.0.0.2"))
	})
}
