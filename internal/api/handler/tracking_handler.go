package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

// TrackingHandler exposes the per-job tracking sessions.
type TrackingHandler struct {
	service ports.TrackingService
}

func NewTrackingHandler(service ports.TrackingService) *TrackingHandler {
	return &TrackingHandler{service: service}
}

// jobID reads :id and checks the caller may act on it.
func jobID(c echo.Context) (string, error) {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}
	if !principal.CanView(id) {
		return "", domain.ErrForbidden
	}
	return id, nil
}

// Attach handles POST /v1/jobs/:id/tracking.
//
// @Summary      Start tracking a job
// @Description  Starts the push and poll position channels. Without a route the last stored one is restored.
// @Tags         tracking
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string         true   "Job id"
// @Param        body  body      attachRequest  false  "Initial route"
// @Success      201   {object}  trackingResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/jobs/{id}/tracking [post]
func (h *TrackingHandler) Attach(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return err
	}

	var req attachRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	in := ports.AttachInput{EntityID: id}
	if req.Route != nil {
		if err := c.Validate(req.Route); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		route := toRouteInput(*req.Route)
		in.Route = &route
	}

	if err := h.service.Attach(c.Request().Context(), in); err != nil {
		return err
	}
	return h.respond(c, http.StatusCreated, id)
}

// Detach handles DELETE /v1/jobs/:id/tracking.
//
// @Summary      Stop tracking a job
// @Tags         tracking
// @Security     BearerAuth
// @Param        id  path  string  true  "Job id"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/jobs/{id}/tracking [delete]
func (h *TrackingHandler) Detach(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return err
	}
	if err := h.service.Detach(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ApplyRoute handles PUT /v1/jobs/:id/route. The route planner posts each freshly computed route here.
//
// @Summary      Install a new route
// @Tags         tracking
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string        true  "Job id"
// @Param        body  body      routeRequest  true  "Route"
// @Success      200   {object}  trackingResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/jobs/{id}/route [put]
func (h *TrackingHandler) ApplyRoute(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return err
	}

	var req routeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.service.ApplyRoute(c.Request().Context(), id, toRouteInput(req)); err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, id)
}

// Refresh handles POST /v1/jobs/:id/refresh, sent when the viewing client returns to foreground.
//
// @Summary      Fetch the latest position now
// @Tags         tracking
// @Produce      json
// @Security     BearerAuth
// @Param        id  path      string  true  "Job id"
// @Success      200  {object}  trackingResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      502  {object}  errorResponse
// @Router       /v1/jobs/{id}/refresh [post]
func (h *TrackingHandler) Refresh(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return err
	}
	if err := h.service.Refresh(c.Request().Context(), id); err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, id)
}

// Progress handles GET /v1/jobs/:id/progress.
//
// @Summary      Current position, progress and deviation state
// @Tags         tracking
// @Produce      json
// @Security     BearerAuth
// @Param        id  path      string  true  "Job id"
// @Success      200  {object}  trackingResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/jobs/{id}/progress [get]
func (h *TrackingHandler) Progress(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, id)
}

func (h *TrackingHandler) respond(c echo.Context, code int, id string) error {
	snap, err := h.service.Snapshot(id)
	if err != nil {
		return err
	}
	return c.JSON(code, toTrackingResponse(snap))
}
