package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

//
// Test fakes – only for this file.
//

type fakeStore struct {
	jobs        map[string]*domain.BroadcastJob
	created     []domain.RecipientSnapshot
	requested   []domain.Action
	deleted     []string
	finished    []domain.JobStatus
	recipients  []domain.BroadcastRecipient
	stats       domain.RecipientStats
	createErr   error
	conflictsOn map[string]int // method -> conflicts to return before behaving
}

func newFakeStore(jobs ...*domain.BroadcastJob) *fakeStore {
	s := &fakeStore{jobs: map[string]*domain.BroadcastJob{}, conflictsOn: map[string]int{}}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeStore) conflict(method string) bool {
	if s.conflictsOn[method] > 0 {
		s.conflictsOn[method]--
		return true
	}
	return false
}

func (s *fakeStore) CreateJob(_ context.Context, job *domain.BroadcastJob, recipients []domain.RecipientSnapshot) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	job.ID = fmt.Sprintf("job-%d", len(s.jobs)+1)
	job.Status = domain.JobQueued
	job.Total = len(recipients)
	s.jobs[job.ID] = job
	s.created = recipients
	return job.ID, nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (*domain.BroadcastJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) ListJobs(context.Context, *domain.JobStatus, int, int) ([]domain.BroadcastJob, int64, error) {
	return nil, 0, nil
}

func (s *fakeStore) Transition(_ context.Context, id string, from, to domain.JobStatus) error {
	if s.conflict("Transition") {
		// Simulates a worker claiming the job in between.
		s.jobs[id].Status = domain.JobRunning
		return domain.ErrConflict
	}
	job := s.jobs[id]
	if job.Status != from {
		return domain.ErrConflict
	}
	job.Status = to
	return nil
}

func (s *fakeStore) Claim(_ context.Context, id string, from domain.JobStatus) (string, error) {
	job := s.jobs[id]
	if job.Status != from {
		return "", domain.ErrConflict
	}
	token := "token-1"
	job.Status = domain.JobRunning
	job.ClaimToken = &token
	return token, nil
}

func (s *fakeStore) Finish(_ context.Context, id, _ string, to domain.JobStatus) error {
	s.finished = append(s.finished, to)
	s.jobs[id].Status = to
	return nil
}

func (s *fakeStore) RequestAction(_ context.Context, id string, action domain.Action) error {
	if s.jobs[id].Status != domain.JobRunning {
		return domain.ErrConflict
	}
	if action == domain.ActionPause && s.jobs[id].RequestedAction == domain.ActionCancel {
		return domain.ErrConflict
	}
	s.requested = append(s.requested, action)
	s.jobs[id].RequestedAction = action
	return nil
}

func (s *fakeStore) ListRecipients(context.Context, string, *domain.RecipientStatus) ([]domain.BroadcastRecipient, error) {
	return s.recipients, nil
}

func (s *fakeStore) RecipientStats(context.Context, string) (domain.RecipientStats, error) {
	return s.stats, nil
}

func (s *fakeStore) DeleteJob(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.jobs, id)
	return nil
}

type fakeLogs struct {
	limit int
}

func (l *fakeLogs) List(_ context.Context, _ *string, limit int) ([]domain.LogEntry, error) {
	l.limit = limit
	return nil, nil
}

type fakeSegments struct {
	recipients []domain.RecipientSnapshot
	err        error
}

func (f *fakeSegments) Resolve(context.Context, domain.SegmentCriteria) ([]domain.RecipientSnapshot, error) {
	return f.recipients, f.err
}

func (f *fakeSegments) Count(context.Context, domain.SegmentCriteria) (int, error) {
	return len(f.recipients), f.err
}

type fakeQueue struct {
	published []domain.DispatchRequest
	err       error
}

func (q *fakeQueue) Publish(_ context.Context, req domain.DispatchRequest) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, req)
	return nil
}

type fakeBulk struct {
	calls []string
	days  int
}

func (b *fakeBulk) CancelOlderThan(_ context.Context, days int) (int64, error) {
	b.calls, b.days = append(b.calls, "cancel"), days
	return 3, nil
}

func (b *fakeBulk) CleanupCompletedOlderThan(_ context.Context, days int) (int64, error) {
	b.calls, b.days = append(b.calls, "cleanup"), days
	return 5, nil
}

func (b *fakeBulk) PauseAllRunning(context.Context) (int64, error) {
	b.calls = append(b.calls, "pause")
	return 1, nil
}

type fakeAudit struct {
	messages []string
}

func (a *fakeAudit) Info(_ context.Context, m string, _ map[string]any) { a.messages = append(a.messages, m) }
func (a *fakeAudit) Warning(_ context.Context, m string, _ map[string]any) { a.messages = append(a.messages, m) }

type deps struct {
	store    *fakeStore
	logs     *fakeLogs
	segments *fakeSegments
	queue    *fakeQueue
	bulk     *fakeBulk
	audit    *fakeAudit
}

func newTestService(store *fakeStore) (*BroadcastService, *deps) {
	d := &deps{
		store: store,
		logs:  &fakeLogs{},
		segments: &fakeSegments{recipients: []domain.RecipientSnapshot{
			{UserID: 1, ContactID: "100"}, {UserID: 2, ContactID: "200"},
		}},
		queue: &fakeQueue{},
		bulk:  &fakeBulk{},
		audit: &fakeAudit{},
	}
	svc := NewBroadcastService(d.store, d.logs, d.segments, d.queue, d.bulk, d.audit,
		environments.DispatchConfig{MaxTextLength: 20})
	return svc, d
}

func job(id string, status domain.JobStatus) *domain.BroadcastJob {
	return &domain.BroadcastJob{ID: id, Title: "t", Status: status, Total: 2}
}

//
// Tests
//

func TestCreateBroadcast_PersistsAndPublishes(t *testing.T) {
	svc, d := newTestService(newFakeStore())

	res, err := svc.CreateBroadcast(context.Background(), CreateBroadcastInput{
		Title: " Weekly ", Text: "hello", Segment: domain.AllUsers(),
	})
	if err != nil {
		t.Fatalf("CreateBroadcast returned error: %v", err)
	}

	if res.Total != 2 || res.JobID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(d.store.created) != 2 {
		t.Fatalf("expected 2 recipients persisted, got %d", len(d.store.created))
	}
	if d.store.jobs[res.JobID].Title != "Weekly" {
		t.Fatalf("expected trimmed title, got %q", d.store.jobs[res.JobID].Title)
	}
	if len(d.queue.published) != 1 || d.queue.published[0].JobID != res.JobID || d.queue.published[0].ClaimToken != "" {
		t.Fatalf("unexpected publish: %+v", d.queue.published)
	}
	if len(d.audit.messages) != 1 {
		t.Fatalf("expected one audit entry, got %v", d.audit.messages)
	}
}

func TestCreateBroadcast_EmptyAudienceCreatesNothing(t *testing.T) {
	svc, d := newTestService(newFakeStore())
	d.segments.err = domain.ErrEmptyAudience

	_, err := svc.CreateBroadcast(context.Background(), CreateBroadcastInput{Title: "t", Text: "x", Segment: domain.PremiumUsers()})
	if !errors.Is(err, domain.ErrEmptyAudience) {
		t.Fatalf("expected ErrEmptyAudience, got %v", err)
	}
	if len(d.store.jobs) != 0 || len(d.queue.published) != 0 {
		t.Fatalf("nothing must be persisted or published")
	}
}

func TestCreateBroadcast_TextTooLong(t *testing.T) {
	svc, _ := newTestService(newFakeStore())

	_, err := svc.CreateBroadcast(context.Background(), CreateBroadcastInput{
		Title: "t", Text: strings.Repeat("✨", 21), Segment: domain.AllUsers(),
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// Length is counted in characters, not bytes.
	if _, err := svc.CreateBroadcast(context.Background(), CreateBroadcastInput{
		Title: "t", Text: strings.Repeat("✨", 20), Segment: domain.AllUsers(),
	}); err != nil {
		t.Fatalf("20 characters must be accepted: %v", err)
	}
}

func TestCreateBroadcast_PublishFailureIsNotFatal(t *testing.T) {
	svc, d := newTestService(newFakeStore())
	d.queue.err = errors.New("broker down")

	res, err := svc.CreateBroadcast(context.Background(), CreateBroadcastInput{Title: "t", Text: "x", Segment: domain.AllUsers()})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if d.store.jobs[res.JobID].Status != domain.JobQueued {
		t.Fatalf("job must stay queued for the reconciler")
	}
}

func TestApplyAction_Cancel(t *testing.T) {
	tests := []struct {
		name        string
		status      domain.JobStatus
		wantStatus  domain.JobStatus
		wantPending bool
		wantErr     error
	}{
		{"queued", domain.JobQueued, domain.JobCancelled, false, nil},
		{"paused", domain.JobPaused, domain.JobCancelled, false, nil},
		{"running", domain.JobRunning, domain.JobRunning, true, nil},
		{"done", domain.JobDone, "", false, domain.ErrConflict},
		{"cancelled", domain.JobCancelled, "", false, domain.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(newFakeStore(job("j", tt.status)))

			res, err := svc.ApplyAction(context.Background(), "j", domain.ActionCancel)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyAction returned error: %v", err)
			}
			if res.Status != tt.wantStatus || res.Pending() != tt.wantPending {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestApplyAction_CancelRacingWithClaim(t *testing.T) {
	store := newFakeStore(job("j", domain.JobQueued))
	store.conflictsOn["Transition"] = 1
	svc, _ := newTestService(store)

	res, err := svc.ApplyAction(context.Background(), "j", domain.ActionCancel)
	if err != nil {
		t.Fatalf("ApplyAction returned error: %v", err)
	}
	if res.RequestedAction != domain.ActionCancel {
		t.Fatalf("expected the retry to request cancel on the now running job, got %+v", res)
	}
	if len(store.requested) != 1 {
		t.Fatalf("expected one cancel request, got %v", store.requested)
	}
}

func TestApplyAction_Pause(t *testing.T) {
	svc, d := newTestService(newFakeStore(job("run", domain.JobRunning), job("q", domain.JobQueued)))

	res, err := svc.ApplyAction(context.Background(), "run", domain.ActionPause)
	if err != nil || res.RequestedAction != domain.ActionPause {
		t.Fatalf("expected pause request, got %+v, %v", res, err)
	}

	if _, err := svc.ApplyAction(context.Background(), "q", domain.ActionPause); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("pausing a queued job must conflict, got %v", err)
	}
	if len(d.audit.messages) != 1 {
		t.Fatalf("only the successful action is audited, got %v", d.audit.messages)
	}
}

func TestApplyAction_PauseAfterCancelConflicts(t *testing.T) {
	store := newFakeStore(job("j", domain.JobRunning))
	svc, _ := newTestService(store)

	res, err := svc.ApplyAction(context.Background(), "j", domain.ActionCancel)
	if err != nil || !res.Pending() {
		t.Fatalf("expected pending cancel, got %+v, %v", res, err)
	}

	if _, err := svc.ApplyAction(context.Background(), "j", domain.ActionPause); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("pause after cancel must conflict, got %v", err)
	}
	if store.jobs["j"].RequestedAction != domain.ActionCancel {
		t.Fatalf("cancel must stay pending, got %q", store.jobs["j"].RequestedAction)
	}
	if len(store.requested) != 1 {
		t.Fatalf("pause must not reach the store, got %v", store.requested)
	}
}

func TestApplyAction_ResumeHandsOverClaim(t *testing.T) {
	svc, d := newTestService(newFakeStore(job("j", domain.JobPaused)))

	res, err := svc.ApplyAction(context.Background(), "j", domain.ActionResume)
	if err != nil {
		t.Fatalf("ApplyAction returned error: %v", err)
	}
	if res.Status != domain.JobRunning {
		t.Fatalf("expected running, got %s", res.Status)
	}
	if len(d.queue.published) != 1 || d.queue.published[0].ClaimToken != "token-1" {
		t.Fatalf("expected claim token in dispatch request, got %+v", d.queue.published)
	}
}

func TestApplyAction_ResumePublishFailureReleasesClaim(t *testing.T) {
	svc, d := newTestService(newFakeStore(job("j", domain.JobPaused)))
	d.queue.err = errors.New("broker down")

	if _, err := svc.ApplyAction(context.Background(), "j", domain.ActionResume); err == nil {
		t.Fatalf("expected publish error")
	}
	if d.store.jobs["j"].Status != domain.JobPaused {
		t.Fatalf("job must be paused again, got %s", d.store.jobs["j"].Status)
	}
}

func TestApplyAction_ResumeRequiresPaused(t *testing.T) {
	svc, _ := newTestService(newFakeStore(job("j", domain.JobQueued)))

	if _, err := svc.ApplyAction(context.Background(), "j", domain.ActionResume); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestApplyAction_Delete(t *testing.T) {
	svc, d := newTestService(newFakeStore(job("done", domain.JobDone), job("run", domain.JobRunning)))

	res, err := svc.ApplyAction(context.Background(), "done", domain.ActionDelete)
	if err != nil || !res.Deleted {
		t.Fatalf("expected deletion, got %+v, %v", res, err)
	}

	if _, err := svc.ApplyAction(context.Background(), "run", domain.ActionDelete); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("deleting a running job must conflict, got %v", err)
	}
	if len(d.store.deleted) != 1 {
		t.Fatalf("expected one delete, got %v", d.store.deleted)
	}
}

func TestApplyAction_UnknownJobAndAction(t *testing.T) {
	svc, _ := newTestService(newFakeStore(job("j", domain.JobQueued)))

	if _, err := svc.ApplyAction(context.Background(), "missing", domain.ActionCancel); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ApplyAction(context.Background(), "j", domain.Action("explode")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFailedRecipients(t *testing.T) {
	store := newFakeStore(job("j", domain.JobDone))
	reason := "chat not found"
	store.recipients = []domain.BroadcastRecipient{{ID: "r1", ContactID: "42", Status: domain.RecipientFailed, Error: &reason}}
	store.stats = domain.RecipientStats{Sent: 1, Failed: 1}
	svc, _ := newTestService(store)

	report, err := svc.FailedRecipients(context.Background(), "j")
	if err != nil {
		t.Fatalf("FailedRecipients returned error: %v", err)
	}
	if len(report.Failed) != 1 || report.Counts.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if _, err := svc.FailedRecipients(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPreview_EmptyAudienceIsZero(t *testing.T) {
	svc, d := newTestService(newFakeStore())
	d.segments.err = domain.ErrEmptyAudience

	n, err := svc.Preview(context.Background(), domain.PremiumUsers())
	if err != nil || n != 0 {
		t.Fatalf("expected 0, nil; got %d, %v", n, err)
	}
}

func TestLogs_ClampsLimit(t *testing.T) {
	svc, d := newTestService(newFakeStore())

	_, _ = svc.Logs(context.Background(), nil, 0)
	if d.logs.limit != defaultLogLimit {
		t.Fatalf("expected default limit, got %d", d.logs.limit)
	}
	_, _ = svc.Logs(context.Background(), nil, 50000)
	if d.logs.limit != maxLogLimit {
		t.Fatalf("expected max limit, got %d", d.logs.limit)
	}
}

func TestBulk(t *testing.T) {
	svc, d := newTestService(newFakeStore())

	n, err := svc.Bulk(context.Background(), BulkCleanupCompleted, 30)
	if err != nil || n != 5 || d.bulk.days != 30 {
		t.Fatalf("unexpected cleanup: %d, %v, days=%d", n, err, d.bulk.days)
	}
	if _, err := svc.Bulk(context.Background(), BulkPauseAllRunning, 0); err != nil {
		t.Fatalf("pause_all_running returned error: %v", err)
	}
	if _, err := svc.Bulk(context.Background(), BulkAction("nuke"), 1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if strings.Join(d.bulk.calls, ",") != "cleanup,pause" {
		t.Fatalf("unexpected calls %v", d.bulk.calls)
	}
}
