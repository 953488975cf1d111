package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

const maxBatchSize = 500

// PositionDispatcher is the interface the handler uses to enqueue reports.
type PositionDispatcher interface {
	Enqueue(ctx context.Context, report ports.PositionReportInput) error
	EnqueueBatch(ctx context.Context, reports []ports.PositionReportInput) error
}

// PositionHandler handles position report ingestion from the agent app.
type PositionHandler struct {
	dispatcher PositionDispatcher
}

// NewPositionHandler creates a PositionHandler backed by the given dispatcher.
func NewPositionHandler(dispatcher PositionDispatcher) *PositionHandler {
	return &PositionHandler{dispatcher: dispatcher}
}

// Receive handles POST /v1/positions — enqueues a single report, returns 202.
//
// @Summary      Report the agent position
// @Tags         positions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      positionRequest  true  "Position report"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/positions [post]
func (h *PositionHandler) Receive(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	var req positionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if !principal.CanReportFor(req.EntityID) {
		return domain.ErrForbidden
	}

	if err := h.dispatcher.Enqueue(c.Request().Context(), toPositionInput(req)); err != nil {
		return fmt.Errorf("enqueue position: %w", err)
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "position accepted"})
}

// ReceiveBatch handles POST /v1/positions/batch — enqueues reports buffered
// while the agent was offline, returns 202.
//
// @Summary      Report a batch of agent positions
// @Tags         positions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      []positionRequest  true  "Array of position reports"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/positions/batch [post]
func (h *PositionHandler) ReceiveBatch(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	var reqs []positionRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(reqs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch cannot be empty")
	}
	if len(reqs) > maxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("batch cannot exceed %d reports", maxBatchSize))
	}

	inputs := make([]ports.PositionReportInput, 0, len(reqs))
	for i, req := range reqs {
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity,
				fmt.Sprintf("position[%d]: %s", i, err.Error()))
		}
		if !principal.CanReportFor(req.EntityID) {
			return domain.ErrForbidden
		}
		inputs = append(inputs, toPositionInput(req))
	}

	if err := h.dispatcher.EnqueueBatch(c.Request().Context(), inputs); err != nil {
		return fmt.Errorf("enqueue batch: %w", err)
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{
		Message: "positions accepted",
		Count:   len(inputs),
	})
}
