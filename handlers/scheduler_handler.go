package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/internal/scheduler"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/response"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/validator"
)

type reconciler interface {
	StartWithParams(ctx context.Context, intervalSeconds, alertThreshold int) error
	Stop() error
	IsRunning() bool
	GetStatus() scheduler.SchedulerStatus
}

type SchedulerHandler struct {
	scheduler reconciler
	ctx       context.Context
	config    *environments.Config
}

type StartSchedulerRequest struct {
	Interval       *int `json:"interval,omitempty" validate:"omitempty,min=1,max=86400"`
	AlertThreshold *int `json:"alertThreshold,omitempty" validate:"omitempty,min=1"`
}

func NewSchedulerHandler(
	sched reconciler,
	ctx context.Context,
	cfg *environments.Config,
) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		ctx:       ctx,
		config:    cfg,
	}
}

// StartScheduler godoc
// @Summary Start the reconciler
// @Description Starts re-publishing queued broadcasts and recovering stale ones, with optional parameters
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-key header string true "API key for scheduler"
// @Param request body StartSchedulerRequest false "Reconciler parameters (optional)"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/start [post]
func (h *SchedulerHandler) StartScheduler(c echo.Context) error {
	if h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already running", h.scheduler.GetStatus())
	}

	var req StartSchedulerRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	intervalSeconds := int(h.config.Maintenance.ReconcileInterval.Seconds())
	if req.Interval != nil {
		intervalSeconds = *req.Interval
	}

	alertThreshold := h.config.Alert.FailureThreshold
	if req.AlertThreshold != nil {
		alertThreshold = *req.AlertThreshold
	}

	if err := h.scheduler.StartWithParams(h.ctx, intervalSeconds, alertThreshold); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler started successfully", h.scheduler.GetStatus())
}

// StopScheduler godoc
// @Summary Stop the reconciler
// @Description Stops the periodic reconcile loop. Running dispatches are not affected.
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/stop [post]
func (h *SchedulerHandler) StopScheduler(c echo.Context) error {
	if !h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already stopped", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler stopped successfully", h.scheduler.GetStatus())
}

// GetSchedulerStatus godoc
// @Summary Get reconciler status
// @Description Returns run counters, the last error and alert state of the reconciler
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/status [get]
func (h *SchedulerHandler) GetSchedulerStatus(c echo.Context) error {
	return response.Ok(c, h.scheduler.GetStatus())
}
