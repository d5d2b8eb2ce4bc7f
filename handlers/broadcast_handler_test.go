package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/internal/progress"
	"github.com/onurcolak/broadcast-dispatch-service/internal/service"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/response"
	validatorpkg "github.com/onurcolak/broadcast-dispatch-service/pkg/validator"
)

type fakeBroadcasts struct {
	created   *service.CreateBroadcastInput
	job       *domain.BroadcastJob
	action    *service.ActionResult
	actionErr error
	report    *service.FailedReport
	bulkArgs  []any
}

func (f *fakeBroadcasts) CreateBroadcast(_ context.Context, in service.CreateBroadcastInput) (*service.CreateBroadcastResult, error) {
	f.created = &in
	return &service.CreateBroadcastResult{JobID: "job-1", Total: 3}, nil
}

func (f *fakeBroadcasts) GetJob(_ context.Context, id string) (*domain.BroadcastJob, error) {
	if f.job == nil || f.job.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.job, nil
}

func (f *fakeBroadcasts) ListJobs(context.Context, *domain.JobStatus, int, int) ([]domain.BroadcastJob, int64, error) {
	return nil, 0, nil
}

func (f *fakeBroadcasts) Preview(context.Context, domain.SegmentCriteria) (int, error) {
	return 7, nil
}

func (f *fakeBroadcasts) ApplyAction(context.Context, string, domain.Action) (*service.ActionResult, error) {
	return f.action, f.actionErr
}

func (f *fakeBroadcasts) FailedRecipients(context.Context, string) (*service.FailedReport, error) {
	return f.report, nil
}

func (f *fakeBroadcasts) Recipients(context.Context, string, *domain.RecipientStatus) ([]domain.BroadcastRecipient, error) {
	return nil, nil
}

func (f *fakeBroadcasts) Logs(context.Context, *string, int) ([]domain.LogEntry, error) {
	return nil, nil
}

func (f *fakeBroadcasts) Bulk(_ context.Context, action service.BulkAction, days int) (int64, error) {
	f.bulkArgs = []any{action, days}
	return 4, nil
}

type fakeStream struct {
	events []progress.Event
	err    error
}

func (f *fakeStream) Subscribe(context.Context, string) (<-chan progress.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan progress.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func TestCreateBroadcast_BadJSON(t *testing.T) {
	handler := NewBroadcastHandler(nil, nil)
	c, rec := newContext(http.MethodPost, "/api/v1/broadcasts", `{"title": "x", "text":`)

	if err := handler.CreateBroadcast(c); err != nil {
		t.Fatalf("CreateBroadcast returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	var resp response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected a failed response with an error, got %+v", resp)
	}
}

func TestCreateBroadcast_ValidationFailure(t *testing.T) {
	// Service is nil on purpose; validation must fail before it is reached.
	handler := NewBroadcastHandler(nil, nil)
	c, rec := newContext(http.MethodPost, "/api/v1/broadcasts",
		`{"text": "hi", "segment": "zodiac", "segmentParams": {"sign": "ophiuchus"}}`)

	if err := handler.CreateBroadcast(c); err != nil {
		t.Fatalf("CreateBroadcast returned error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	var resp validatorpkg.ValidationErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if _, ok := resp.Details["title"]; !ok {
		t.Fatalf("expected a title error, got %v", resp.Details)
	}
	if _, ok := resp.Details["sign"]; !ok {
		t.Fatalf("expected a sign error, got %v", resp.Details)
	}
}

func TestCreateBroadcast_MissingSegmentParams(t *testing.T) {
	handler := NewBroadcastHandler(nil, nil)
	c, rec := newContext(http.MethodPost, "/api/v1/broadcasts",
		`{"title": "t", "text": "hi", "segment": "inactive"}`)

	if err := handler.CreateBroadcast(c); err != nil {
		t.Fatalf("CreateBroadcast returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestCreateBroadcast_Created(t *testing.T) {
	svc := &fakeBroadcasts{}
	handler := NewBroadcastHandler(svc, nil)
	c, rec := newContext(http.MethodPost, "/api/v1/broadcasts", `{
		"title": "Full moon",
		"text": "Tonight!",
		"segment": "zodiac",
		"segmentParams": {"sign": "Leo"},
		"attachments": {"imageUrl": "https://example.com/moon.png", "buttons": [{"label": "Read", "url": "https://example.com"}]}
	}`)

	if err := handler.CreateBroadcast(c); err != nil {
		t.Fatalf("CreateBroadcast returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if svc.created == nil {
		t.Fatalf("expected service to be called")
	}
	if svc.created.Segment != domain.ZodiacSign("leo") {
		t.Fatalf("unexpected segment %+v", svc.created.Segment)
	}
	if len(svc.created.Attachments.Buttons) != 1 || svc.created.Attachments.ImageURL == nil {
		t.Fatalf("attachments not passed through: %+v", svc.created.Attachments)
	}
	if !strings.Contains(rec.Body.String(), `"jobId":"job-1"`) {
		t.Fatalf("expected jobId in body, got %s", rec.Body.String())
	}
}

func TestListBroadcasts_UnknownStatus(t *testing.T) {
	handler := NewBroadcastHandler(&fakeBroadcasts{}, nil)
	c, rec := newContext(http.MethodGet, "/api/v1/broadcasts?status=sending", "")

	if err := handler.ListBroadcasts(c); err != nil {
		t.Fatalf("ListBroadcasts returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestGetBroadcast_NotFound(t *testing.T) {
	handler := NewBroadcastHandler(&fakeBroadcasts{}, nil)
	c, rec := newContext(http.MethodGet, "/api/v1/broadcasts/nope", "")

	if err := handler.GetBroadcast(withID(c, "nope")); err != nil {
		t.Fatalf("GetBroadcast returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestApplyAction_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		result *service.ActionResult
		err    error
		want   int
	}{
		{"applied", &service.ActionResult{ID: "j", Status: domain.JobCancelled}, nil, http.StatusOK},
		{"pending", &service.ActionResult{ID: "j", Status: domain.JobRunning, RequestedAction: domain.ActionPause}, nil, http.StatusAccepted},
		{"deleted", &service.ActionResult{ID: "j", Status: domain.JobDone, Deleted: true}, nil, http.StatusNoContent},
		{"conflict", nil, domain.ErrConflict, http.StatusConflict},
		{"not found", nil, domain.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewBroadcastHandler(&fakeBroadcasts{action: tt.result, actionErr: tt.err}, nil)
			c, rec := newContext(http.MethodPut, "/api/v1/broadcasts/j", `{"action": "pause"}`)

			if err := handler.ApplyAction(withID(c, "j")); err != nil {
				t.Fatalf("ApplyAction returned error: %v", err)
			}
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestApplyAction_UnknownAction(t *testing.T) {
	handler := NewBroadcastHandler(nil, nil)
	c, rec := newContext(http.MethodPut, "/api/v1/broadcasts/j", `{"action": "restart"}`)

	if err := handler.ApplyAction(withID(c, "j")); err != nil {
		t.Fatalf("ApplyAction returned error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

func TestGetFailedRecipients_JSON(t *testing.T) {
	reason := "blocked"
	svc := &fakeBroadcasts{report: &service.FailedReport{
		Failed: []domain.BroadcastRecipient{{ID: "r1", ContactID: "42", DisplayName: "Ada", Error: &reason}},
		Counts: domain.RecipientStats{Sent: 1, Failed: 1},
	}}
	handler := NewBroadcastHandler(svc, nil)
	c, rec := newContext(http.MethodGet, "/api/v1/broadcasts/j/errors", "")

	if err := handler.GetFailedRecipients(withID(c, "j")); err != nil {
		t.Fatalf("GetFailedRecipients returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"recipientId":"r1"`) || !strings.Contains(body, `"error":"blocked"`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestGetFailedRecipients_XLSX(t *testing.T) {
	svc := &fakeBroadcasts{
		job:    &domain.BroadcastJob{ID: "j", Title: "t", Status: domain.JobDone},
		report: &service.FailedReport{},
	}
	handler := NewBroadcastHandler(svc, nil)
	c, rec := newContext(http.MethodGet, "/api/v1/broadcasts/j/errors?format=xlsx", "")

	if err := handler.GetFailedRecipients(withID(c, "j")); err != nil {
		t.Fatalf("GetFailedRecipients returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(got, "broadcast_j_failed.xlsx") {
		t.Fatalf("unexpected Content-Disposition %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected a workbook body")
	}
}

func TestBulkAction(t *testing.T) {
	svc := &fakeBroadcasts{}
	handler := NewBroadcastHandler(svc, nil)
	c, rec := newContext(http.MethodPost, "/api/v1/broadcasts/bulk", `{"action": "cancel_old", "days": 7}`)

	if err := handler.BulkAction(c); err != nil {
		t.Fatalf("BulkAction returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if svc.bulkArgs[0] != service.BulkCancelOld || svc.bulkArgs[1] != 7 {
		t.Fatalf("unexpected bulk args %v", svc.bulkArgs)
	}
	if !strings.Contains(rec.Body.String(), `"affectedRows":4`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestGetLogs_BadLimit(t *testing.T) {
	handler := NewBroadcastHandler(&fakeBroadcasts{}, nil)
	c, rec := newContext(http.MethodGet, "/api/v1/broadcasts/logs?limit=-3", "")

	if err := handler.GetLogs(c); err != nil {
		t.Fatalf("GetLogs returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestStreamProgress_WritesEvents(t *testing.T) {
	snap := &domain.JobSnapshot{ID: "j", Total: 2, Sent: 2, Status: domain.JobDone}
	stream := &fakeStream{events: []progress.Event{
		{Type: progress.EventProgress, Snapshot: snap},
		{Type: progress.EventPing},
		{Type: progress.EventEnd, Snapshot: snap},
	}}
	handler := NewBroadcastHandler(nil, stream)
	c, rec := newContext(http.MethodGet, "/api/v1/broadcasts/j/progress", "")

	if err := handler.StreamProgress(withID(c, "j")); err != nil {
		t.Fatalf("StreamProgress returned error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"event: progress\ndata: {\"id\":\"j\"",
		"event: ping\ndata: {}\n\n",
		"event: end\ndata: ",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in stream, got %q", want, body)
		}
	}
}

func TestStreamProgress_UnknownJob(t *testing.T) {
	handler := NewBroadcastHandler(nil, &fakeStream{err: domain.ErrNotFound})
	c, rec := newContext(http.MethodGet, "/api/v1/broadcasts/x/progress", "")

	if err := handler.StreamProgress(withID(c, "x")); err != nil {
		t.Fatalf("StreamProgress returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
