package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type PaginatedResponse struct {
	Success    bool  `json:"success"`
	Data       any   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int   `json:"totalPages"`
}

func Ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
	})
}

func OkWithMessage(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Created(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Accepted is used when an action was recorded but completes asynchronously.
func Accepted(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusAccepted, SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func NoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func BadRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   err.Error(),
	})
}

func BadRequestWithMessage(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   message,
	})
}

func Unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{
		Success: false,
		Error:   "Invalid or missing API key",
	})
}

func NotFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{
		Success: false,
		Error:   message,
	})
}

func Conflict(c echo.Context, err error) error {
	return c.JSON(http.StatusConflict, ErrorResponse{
		Success: false,
		Error:   err.Error(),
	})
}

func InternalServerError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success: false,
		Error:   err.Error(),
	})
}

func UnprocessableEntity(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// FromError maps broadcast errors onto status codes. Anything unrecognised
// is a 500.
func FromError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(c, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return Conflict(c, err)
	case errors.Is(err, domain.ErrEmptyAudience), errors.Is(err, domain.ErrInvalidSegment):
		return BadRequest(c, err)
	case errors.Is(err, domain.ErrInvalidInput):
		return UnprocessableEntity(c, err)
	default:
		return InternalServerError(c, err)
	}
}

// StartStream commits the headers of a server-sent event stream.
func StartStream(c echo.Context) {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	// nginx buffers proxied responses unless told otherwise
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()
}

// Event writes one SSE frame and flushes it. An error means the client is gone.
func Event(c echo.Context, name string, data []byte) error {
	res := c.Response()
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func Paginated(c echo.Context, data any, page, pageSize int, totalCount int64) error {
	if pageSize < 1 {
		pageSize = 1
	}
	totalPages := int(totalCount) / pageSize
	if int(totalCount)%pageSize > 0 {
		totalPages++
	}

	return c.JSON(http.StatusOK, PaginatedResponse{
		Success:    true,
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	})
}
