package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const SubjectKey contextKey = "admin_subject"

// AdminMiddleware admits requests carrying a valid admin bearer token.
func (s *Service) AdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing Authorization header"})
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid Authorization header format"})
		}

		sub, err := s.Verify(strings.TrimSpace(parts[1]))
		if errors.Is(err, ErrNotAdmin) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Admin role required"})
		}
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
		}

		c.Set(string(SubjectKey), sub)
		return next(c)
	}
}

// SubjectFromContext returns the admin subject set by AdminMiddleware.
func SubjectFromContext(c echo.Context) string {
	sub, _ := c.Get(string(SubjectKey)).(string)
	return sub
}
