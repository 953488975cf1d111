package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

// Context keys set by Auth.
const (
	ContextRole    = "role"
	ContextSubject = "sub"
	ContextJobID   = "job_id"
)

// trackingClaims are the claims the identity service signs into tokens.
type trackingClaims struct {
	Role  string `json:"role"`
	JobID string `json:"job_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth verifies the HS256 bearer token and injects the principal into context.
// Expiry is enforced when the token carries exp.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	key := []byte(jwtSecret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims := &trackingClaims{}
			tkn, err := parser.ParseWithClaims(parts[1], claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !tkn.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing role")
			}

			c.Set(ContextRole, claims.Role)
			c.Set(ContextSubject, claims.Subject)
			c.Set(ContextJobID, claims.JobID)

			return next(c)
		}
	}
}

// PrincipalFrom reads what Auth stored in the context.
func PrincipalFrom(c echo.Context) domain.Principal {
	role, _ := c.Get(ContextRole).(string)
	sub, _ := c.Get(ContextSubject).(string)
	jobID, _ := c.Get(ContextJobID).(string)
	return domain.Principal{Subject: sub, Role: role, JobID: jobID}
}
