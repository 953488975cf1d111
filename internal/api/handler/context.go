package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/job-tracking/internal/api/middleware"
	"github.com/99minutos/job-tracking/internal/core/domain"
)

// ctxPrincipal extracts the principal injected by the Auth middleware and
// fails fast before any service call:
//   - role must be non-empty (presence proves the middleware ran).
//   - an agent token must name its job; without it the agent can act on nothing.
func ctxPrincipal(c echo.Context) (domain.Principal, error) {
	p := middleware.PrincipalFrom(c)
	if p.Role == "" {
		return domain.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	if p.Role == domain.RoleAgent && p.JobID == "" {
		return domain.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "token missing job identity")
	}
	return p, nil
}
