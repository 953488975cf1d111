package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/infrastructure/queue"
)

func TestHTTPErrorHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not tracked", fmt.Errorf("snapshot: %w", domain.ErrSessionNotFound), http.StatusNotFound},
		{"already tracked", domain.ErrSessionExists, http.StatusConflict},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"no position", domain.ErrNoPosition, http.StatusNotFound},
		{"invalid coordinate", domain.ErrInvalidCoordinate, http.StatusUnprocessableEntity},
		{"future observation", fmt.Errorf("process report: %w", domain.ErrFutureObservation), http.StatusUnprocessableEntity},
		{"transport", fmt.Errorf("%w: dial tcp", domain.ErrTransport), http.StatusBadGateway},
		{"ingest stopped", fmt.Errorf("enqueue: %w", queue.ErrStopped), http.StatusServiceUnavailable},
		{"tracking shutting down", fmt.Errorf("attach job-1: %w", domain.ErrShuttingDown), http.StatusServiceUnavailable},
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	handler := NewHTTPErrorHandler(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			handler(tt.err, c)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Fatalf("expected error envelope, got %q", rec.Body.String())
			}
		})
	}
}

func TestHTTPErrorHandler_HidesInternalDetails(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("mongo: connection refused at 10.0.0.3"), c)

	var body errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "internal server error" {
		t.Fatalf("internal detail leaked: %q", body.Error)
	}
}
