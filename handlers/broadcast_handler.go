package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/internal/progress"
	"github.com/onurcolak/broadcast-dispatch-service/internal/service"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/export"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/response"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/validator"
)

type broadcastService interface {
	CreateBroadcast(ctx context.Context, in service.CreateBroadcastInput) (*service.CreateBroadcastResult, error)
	GetJob(ctx context.Context, id string) (*domain.BroadcastJob, error)
	ListJobs(ctx context.Context, status *domain.JobStatus, page, pageSize int) ([]domain.BroadcastJob, int64, error)
	Preview(ctx context.Context, criteria domain.SegmentCriteria) (int, error)
	ApplyAction(ctx context.Context, id string, action domain.Action) (*service.ActionResult, error)
	FailedRecipients(ctx context.Context, id string) (*service.FailedReport, error)
	Recipients(ctx context.Context, id string, status *domain.RecipientStatus) ([]domain.BroadcastRecipient, error)
	Logs(ctx context.Context, jobID *string, limit int) ([]domain.LogEntry, error)
	Bulk(ctx context.Context, action service.BulkAction, days int) (int64, error)
}

type progressStream interface {
	Subscribe(ctx context.Context, jobID string) (<-chan progress.Event, error)
}

type BroadcastHandler struct {
	service  broadcastService
	progress progressStream
}

func NewBroadcastHandler(svc broadcastService, stream progressStream) *BroadcastHandler {
	return &BroadcastHandler{service: svc, progress: stream}
}

type SegmentParams struct {
	Days *int    `json:"days,omitempty" validate:"omitempty,min=1,max=3650"`
	Sign *string `json:"sign,omitempty" validate:"omitempty,zodiac"`
}

type AttachmentsRequest struct {
	ImageURL *string         `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Buttons  []domain.Button `json:"buttons,omitempty" validate:"omitempty,max=10,dive"`
}

type CreateBroadcastRequest struct {
	Title         string              `json:"title" validate:"required,max=200"`
	Text          string              `json:"text" validate:"required"`
	Segment       string              `json:"segment" validate:"required,oneof=all premium inactive zodiac"`
	SegmentParams *SegmentParams      `json:"segmentParams,omitempty"`
	Attachments   *AttachmentsRequest `json:"attachments,omitempty"`
}

type PreviewRequest struct {
	Segment       string         `json:"segment" validate:"required,oneof=all premium inactive zodiac"`
	SegmentParams *SegmentParams `json:"segmentParams,omitempty"`
}

type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=cancel pause resume delete"`
}

type BulkRequest struct {
	Action string `json:"action" validate:"required,oneof=cancel_old cleanup_completed pause_all_running"`
	Days   int    `json:"days,omitempty" validate:"omitempty,min=1"`
}

type FailedRecipientView struct {
	RecipientID string     `json:"recipientId"`
	ContactID   string     `json:"contactId"`
	DisplayName string     `json:"displayName"`
	Error       string     `json:"error"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
}

func segmentFrom(kind string, params *SegmentParams) (domain.SegmentCriteria, error) {
	var days *int
	var sign *string
	if params != nil {
		days, sign = params.Days, params.Sign
	}
	return domain.ParseSegment(kind, days, sign)
}

// CreateBroadcast godoc
// @Summary Create a broadcast
// @Description Snapshots the segment audience and queues the broadcast for dispatch
// @Tags broadcasts
// @Accept json
// @Produce json
// @Param x-admin-key header string true "API key for broadcasts"
// @Param request body CreateBroadcastRequest true "Broadcast to create"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/broadcasts [post]
func (h *BroadcastHandler) CreateBroadcast(c echo.Context) error {
	var req CreateBroadcastRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	criteria, err := segmentFrom(req.Segment, req.SegmentParams)
	if err != nil {
		return response.BadRequest(c, err)
	}

	in := service.CreateBroadcastInput{Title: req.Title, Text: req.Text, Segment: criteria}
	if req.Attachments != nil {
		in.Attachments = domain.Attachments{ImageURL: req.Attachments.ImageURL, Buttons: req.Attachments.Buttons}
	}

	result, err := h.service.CreateBroadcast(c.Request().Context(), in)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Broadcast created successfully", result)
}

// ListBroadcasts godoc
// @Summary List broadcasts
// @Description Paginated list of broadcasts, newest first, with an optional status filter
// @Tags broadcasts
// @Accept json
// @Produce json
// @Param x-admin-key header string true "API key for broadcasts"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (queued, running, paused, done, failed, cancelled)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/broadcasts [get]
func (h *BroadcastHandler) ListBroadcasts(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var status *domain.JobStatus
	if s := c.QueryParam("status"); s != "" {
		parsed := domain.JobStatus(s)
		if !parsed.IsValid() {
			return response.BadRequestWithMessage(c, fmt.Sprintf("unknown status %q", s))
		}
		status = &parsed
	}

	jobs, totalCount, err := h.service.ListJobs(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Paginated(c, jobs, page, pageSize, totalCount)
}

// GetBroadcast godoc
// @Summary Get a broadcast
// @Tags broadcasts
// @Produce json
// @Param x-admin-key header string true "API key for broadcasts"
// @Param id path string true "Broadcast ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/broadcasts/{id} [get]
func (h *BroadcastHandler) GetBroadcast(c echo.Context) error {
	job, err := h.service.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Ok(c, job)
}

// PreviewSegment godoc
// @Summary Preview a segment
// @Description Counts the recipients a segment currently resolves to
// @Tags broadcasts
// @Accept json
// @Produce json
// @Param x-admin-key header string true "API key for broadcasts"
// @Param request body PreviewRequest true "Segment"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Router /api/v1/broadcasts/preview [post]
func (h *BroadcastHandler) PreviewSegment(c echo.Context) error {
	var req PreviewRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	criteria, err := segmentFrom(req.Segment, req.SegmentParams)
	if err != nil {
		return response.BadRequest(c, err)
	}

	total, err := h.service.Preview(c.Request().Context(), criteria)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, map[string]any{"segment": criteria.String(), "total": total})
}

// StreamProgress godoc
// @Summary Stream broadcast progress
// @Description Server-sent events: "progress" snapshots, "ping" keep-alives and a final "end"
// @Tags broadcasts
// @Produce text/event-stream
// @Param x-admin-key header string false "API key for broadcasts"
// @Param auth_key query string false "API key for EventSource clients"
// @Param id path string true "Broadcast ID"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/broadcasts/{id}/progress [get]
func (h *BroadcastHandler) StreamProgress(c echo.Context) error {
	ctx := c.Request().Context()

	events, err := h.progress.Subscribe(ctx, c.Param("id"))
	if err != nil {
		return response.FromError(c, err)
	}

	response.StartStream(c)

	for ev := range events {
		data, err := ev.Data()
		if err != nil {
			logger.Errorf("Failed to encode progress event: %v", err)
			continue
		}
		if err := response.Event(c, string(ev.Type), data); err != nil {
			// Client went away; the subscription ends with the request context.
			return nil
		}
	}

	return nil
}

// ApplyAction godoc
// @Summary Control a broadcast
// @Description cancel, pause, resume or delete. Returns 202 when a running dispatcher has to honour the request and 204 after a delete.
// @Tags broadcasts
// @Accept json
// @Produce json
// @Param x-admin-key header string true "API key for broadcasts"
// @Param id path string true "Broadcast ID"
// @Param request body ActionRequest true "Action"
// @Success 200 {object} response.SuccessResponse
// @Success 202 {object} response.SuccessResponse
// @Success 204 "Deleted"
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Router /api/v1/broadcasts/{id} [put]
func (h *BroadcastHandler) ApplyAction(c echo.Context) error {
	var req ActionRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	result, err := h.service.ApplyAction(c.Request().Context(), c.Param("id"), domain.Action(req.Action))
	if err != nil {
		return response.FromError(c, err)
	}

	if result.Deleted {
		return response.NoContent(c)
	}
	if result.Pending() {
		return response.Accepted(c, "Broadcast "+req.Action+" requested", result)
	}
	return response.OkWithMessage(c, "Broadcast "+req.Action+" applied", result)
}

// GetFailedRecipients godoc
// @Summary Failed recipients of a broadcast
// @Description JSON by default; format=xlsx downloads a workbook
// @Tags broadcasts
// @Produce json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param x-admin-key header string true "API key for broadcasts"
// @Param id path string true "Broadcast ID"
// @Param format query string false "json (default) or xlsx"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/broadcasts/{id}/errors [get]
func (h *BroadcastHandler) GetFailedRecipients(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	report, err := h.service.FailedRecipients(ctx, id)
	if err != nil {
		return response.FromError(c, err)
	}

	switch c.QueryParam("format") {
	case "", "json":
	case "xlsx":
		job, err := h.service.GetJob(ctx, id)
		if err != nil {
			return response.FromError(c, err)
		}
		data, err := export.FailedRecipientsXLSX(job, report.Failed, report.Counts)
		if err != nil {
			return response.InternalServerError(c, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", export.FailedFilename(id)))
		return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		return response.BadRequestWithMessage(c, "format must be json or xlsx")
	}

	failed := make([]FailedRecipientView, 0, len(report.Failed))
	for _, r := range report.Failed {
		view := FailedRecipientView{
			RecipientID: r.ID,
			ContactID:   r.ContactID,
			DisplayName: r.DisplayName,
			SentAt:      r.SentAt,
		}
		if r.Error != nil {
			view.Error = *r.Error
		}
		failed = append(failed, view)
	}

	return response.Ok(c, map[string]any{"failed": failed, "counts": report.Counts})
}

// GetRecipients godoc
// @Summary Recipients of a broadcast
// @Tags broadcasts
// @Produce json
// @Param x-admin-key header string true "API key for broadcasts"
// @Param id path string true "Broadcast ID"
// @Param status query string false "Filter by status (pending, sent, failed)"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/broadcasts/{id}/recipients [get]
func (h *BroadcastHandler) GetRecipients(c echo.Context) error {
	var status *domain.RecipientStatus
	if s := c.QueryParam("status"); s != "" {
		parsed := domain.RecipientStatus(s)
		if !parsed.IsValid() {
			return response.BadRequestWithMessage(c, fmt.Sprintf("unknown recipient status %q", s))
		}
		status = &parsed
	}

	recipients, err := h.service.Recipients(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Ok(c, recipients)
}

// BulkAction godoc
// @Summary Bulk maintenance
// @Description cancel_old, cleanup_completed (both need days >= 1) or pause_all_running
// @Tags broadcasts
// @Accept json
// @Produce json
// @Param x-admin-key header string true "API key for broadcasts"
// @Param request body BulkRequest true "Bulk action"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Router /api/v1/broadcasts/bulk [post]
func (h *BroadcastHandler) BulkAction(c echo.Context) error {
	var req BulkRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	n, err := h.service.Bulk(c.Request().Context(), service.BulkAction(req.Action), req.Days)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, map[string]any{"affectedRows": n})
}

// GetLogs godoc
// @Summary Broadcast audit log
// @Tags broadcasts
// @Produce json
// @Param x-admin-key header string true "API key for broadcasts"
// @Param jobId query string false "Only entries for this broadcast"
// @Param limit query int false "Maximum entries (default 100, max 1000)"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/broadcasts/logs [get]
func (h *BroadcastHandler) GetLogs(c echo.Context) error {
	var jobID *string
	if id := c.QueryParam("jobId"); id != "" {
		jobID = &id
	}

	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return response.BadRequestWithMessage(c, "limit must be a positive integer")
		}
		limit = n
	}

	entries, err := h.service.Logs(c.Request().Context(), jobID, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Ok(c, entries)
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
