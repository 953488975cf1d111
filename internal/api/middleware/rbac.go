package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

// RBAC admits only principals whose role is listed. Auth must run first.
// A rejected role surfaces as domain.ErrForbidden for the API error handler.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p.Role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}
			if !allowed[p.Role] {
				return fmt.Errorf("role %q on %s %s: %w", p.Role, c.Request().Method, c.Path(), domain.ErrForbidden)
			}
			return next(c)
		}
	}
}
