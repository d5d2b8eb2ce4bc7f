package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

// Small internal interfaces so the service can be tested without a database or queue.
type jobStore interface {
	CreateJob(ctx context.Context, job *domain.BroadcastJob, recipients []domain.RecipientSnapshot) (string, error)
	GetJob(ctx context.Context, id string) (*domain.BroadcastJob, error)
	ListJobs(ctx context.Context, status *domain.JobStatus, page, pageSize int) ([]domain.BroadcastJob, int64, error)
	Transition(ctx context.Context, id string, from, to domain.JobStatus) error
	Claim(ctx context.Context, id string, from domain.JobStatus) (string, error)
	Finish(ctx context.Context, id, token string, to domain.JobStatus) error
	RequestAction(ctx context.Context, id string, action domain.Action) error
	ListRecipients(ctx context.Context, jobID string, status *domain.RecipientStatus) ([]domain.BroadcastRecipient, error)
	RecipientStats(ctx context.Context, jobID string) (domain.RecipientStats, error)
	DeleteJob(ctx context.Context, id string) error
}

type logStore interface {
	List(ctx context.Context, jobID *string, limit int) ([]domain.LogEntry, error)
}

type segmenter interface {
	Resolve(ctx context.Context, criteria domain.SegmentCriteria) ([]domain.RecipientSnapshot, error)
	Count(ctx context.Context, criteria domain.SegmentCriteria) (int, error)
}

type publisher interface {
	Publish(ctx context.Context, req domain.DispatchRequest) error
}

type maintainer interface {
	CancelOlderThan(ctx context.Context, days int) (int64, error)
	CleanupCompletedOlderThan(ctx context.Context, days int) (int64, error)
	PauseAllRunning(ctx context.Context) (int64, error)
}

type auditor interface {
	Info(ctx context.Context, message string, metadata map[string]any)
	Warning(ctx context.Context, message string, metadata map[string]any)
}

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000

	// CAS races on a single action are retried this many times.
	actionAttempts = 3
)

type BulkAction string

const (
	BulkCancelOld        BulkAction = "cancel_old"
	BulkCleanupCompleted BulkAction = "cleanup_completed"
	BulkPauseAllRunning  BulkAction = "pause_all_running"
)

type CreateBroadcastInput struct {
	Title       string
	Text        string
	Segment     domain.SegmentCriteria
	Attachments domain.Attachments
}

type CreateBroadcastResult struct {
	JobID string `json:"jobId"`
	Total int    `json:"total"`
}

type ActionResult struct {
	ID              string           `json:"id"`
	Status          domain.JobStatus `json:"status"`
	RequestedAction domain.Action    `json:"requestedAction,omitempty"`
	Deleted         bool             `json:"deleted,omitempty"`
}

// Pending reports whether the action waits on the running dispatcher.
func (r ActionResult) Pending() bool {
	return r.RequestedAction != domain.ActionNone
}

type FailedReport struct {
	Failed []domain.BroadcastRecipient `json:"failed"`
	Counts domain.RecipientStats       `json:"counts"`
}

type BroadcastService struct {
	jobs     jobStore
	logs     logStore
	segments segmenter
	queue    publisher
	bulk     maintainer
	audit    auditor
	config   environments.DispatchConfig
}

func NewBroadcastService(
	jobs jobStore,
	logs logStore,
	segments segmenter,
	queue publisher,
	bulk maintainer,
	audit auditor,
	config environments.DispatchConfig,
) *BroadcastService {
	return &BroadcastService{
		jobs:     jobs,
		logs:     logs,
		segments: segments,
		queue:    queue,
		bulk:     bulk,
		audit:    audit,
		config:   config,
	}
}

// CreateBroadcast snapshots the audience, persists the job and hands it to
// the dispatch queue. A failed publish is not fatal: the reconciler
// re-publishes queued jobs.
func (s *BroadcastService) CreateBroadcast(ctx context.Context, in CreateBroadcastInput) (*CreateBroadcastResult, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("title and text are required: %w", domain.ErrInvalidInput)
	}
	if s.config.MaxTextLength > 0 && utf8.RuneCountInString(in.Text) > s.config.MaxTextLength {
		return nil, fmt.Errorf("text exceeds maximum length of %d characters: %w", s.config.MaxTextLength, domain.ErrInvalidInput)
	}

	recipients, err := s.segments.Resolve(ctx, in.Segment)
	if err != nil {
		return nil, err
	}

	job := &domain.BroadcastJob{
		Title:       in.Title,
		MessageBody: in.Text,
		Segment:     in.Segment,
		Attachments: in.Attachments,
	}
	id, err := s.jobs.CreateJob(ctx, job, recipients)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast: %w", err)
	}

	if err := s.queue.Publish(ctx, domain.DispatchRequest{JobID: id}); err != nil {
		logger.Warnf("Failed to publish broadcast %s, reconciler will retry: %v", id, err)
	}

	s.audit.Info(ctx, "broadcast created", map[string]any{
		"jobId": id, "title": in.Title, "segment": in.Segment.String(), "total": len(recipients),
	})

	return &CreateBroadcastResult{JobID: id, Total: len(recipients)}, nil
}

func (s *BroadcastService) GetJob(ctx context.Context, id string) (*domain.BroadcastJob, error) {
	return s.jobs.GetJob(ctx, id)
}

func (s *BroadcastService) ListJobs(
	ctx context.Context,
	status *domain.JobStatus,
	page,
	pageSize int,
) ([]domain.BroadcastJob, int64, error) {
	return s.jobs.ListJobs(ctx, status, page, pageSize)
}

// Preview counts the audience a segment would currently resolve to.
func (s *BroadcastService) Preview(ctx context.Context, criteria domain.SegmentCriteria) (int, error) {
	n, err := s.segments.Count(ctx, criteria)
	if errors.Is(err, domain.ErrEmptyAudience) {
		return 0, nil
	}
	return n, err
}

// ApplyAction performs an admin action. Cancel and pause on a running job
// only record the request; the dispatcher honours it before its next send.
func (s *BroadcastService) ApplyAction(ctx context.Context, id string, action domain.Action) (*ActionResult, error) {
	var lastErr error
	for attempt := 0; attempt < actionAttempts; attempt++ {
		job, err := s.jobs.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}

		result, retry, err := s.applyOnce(ctx, job, action)
		if !retry {
			if err != nil {
				return nil, err
			}
			s.audit.Info(ctx, "broadcast action applied", map[string]any{
				"jobId": id, "action": string(action), "from": string(job.Status),
				"status": string(result.Status), "pending": result.Pending(),
			})
			return result, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// applyOnce reports retry when a CAS lost to a concurrent status change.
func (s *BroadcastService) applyOnce(
	ctx context.Context,
	job *domain.BroadcastJob,
	action domain.Action,
) (*ActionResult, bool, error) {
	illegal := fmt.Errorf("cannot %s a %s broadcast: %w", action, job.Status, domain.ErrConflict)

	switch action {
	case domain.ActionCancel:
		switch job.Status {
		case domain.JobQueued, domain.JobPaused:
			return s.transition(ctx, job, domain.JobCancelled)
		case domain.JobRunning:
			return s.request(ctx, job, domain.ActionCancel)
		default:
			return nil, false, illegal
		}

	case domain.ActionPause:
		if job.Status != domain.JobRunning {
			return nil, false, illegal
		}
		if job.RequestedAction == domain.ActionCancel {
			return nil, false, fmt.Errorf("broadcast %s already has a cancel pending: %w", job.ID, domain.ErrConflict)
		}
		return s.request(ctx, job, domain.ActionPause)

	case domain.ActionResume:
		if job.Status != domain.JobPaused {
			return nil, false, illegal
		}
		return s.resume(ctx, job)

	case domain.ActionDelete:
		if job.Status == domain.JobRunning {
			return nil, false, illegal
		}
		if err := s.jobs.DeleteJob(ctx, job.ID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, true, err
			}
			return nil, false, err
		}
		return &ActionResult{ID: job.ID, Status: job.Status, Deleted: true}, false, nil

	default:
		return nil, false, fmt.Errorf("unknown action %q: %w", action, domain.ErrInvalidInput)
	}
}

func (s *BroadcastService) transition(ctx context.Context, job *domain.BroadcastJob, to domain.JobStatus) (*ActionResult, bool, error) {
	if err := s.jobs.Transition(ctx, job.ID, job.Status, to); err != nil {
		return nil, errors.Is(err, domain.ErrConflict), err
	}
	return &ActionResult{ID: job.ID, Status: to}, false, nil
}

func (s *BroadcastService) request(ctx context.Context, job *domain.BroadcastJob, action domain.Action) (*ActionResult, bool, error) {
	if err := s.jobs.RequestAction(ctx, job.ID, action); err != nil {
		return nil, errors.Is(err, domain.ErrConflict), err
	}
	return &ActionResult{ID: job.ID, Status: domain.JobRunning, RequestedAction: action}, false, nil
}

// resume claims the paused job on behalf of a worker and hands the claim
// over through the queue.
func (s *BroadcastService) resume(ctx context.Context, job *domain.BroadcastJob) (*ActionResult, bool, error) {
	token, err := s.jobs.Claim(ctx, job.ID, domain.JobPaused)
	if err != nil {
		return nil, errors.Is(err, domain.ErrConflict), err
	}

	if err := s.queue.Publish(ctx, domain.DispatchRequest{JobID: job.ID, ClaimToken: token}); err != nil {
		if ferr := s.jobs.Finish(context.WithoutCancel(ctx), job.ID, token, domain.JobPaused); ferr != nil {
			logger.Errorf("Failed to release claim on job %s after publish error: %v", job.ID, ferr)
		}
		return nil, false, fmt.Errorf("failed to publish resumed broadcast: %w", err)
	}

	return &ActionResult{ID: job.ID, Status: domain.JobRunning}, false, nil
}

func (s *BroadcastService) FailedRecipients(ctx context.Context, id string) (*FailedReport, error) {
	if _, err := s.jobs.GetJob(ctx, id); err != nil {
		return nil, err
	}

	failed := domain.RecipientFailed
	rows, err := s.jobs.ListRecipients(ctx, id, &failed)
	if err != nil {
		return nil, err
	}

	counts, err := s.jobs.RecipientStats(ctx, id)
	if err != nil {
		return nil, err
	}

	return &FailedReport{Failed: rows, Counts: counts}, nil
}

func (s *BroadcastService) Recipients(ctx context.Context, id string, status *domain.RecipientStatus) ([]domain.BroadcastRecipient, error) {
	if _, err := s.jobs.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.jobs.ListRecipients(ctx, id, status)
}

func (s *BroadcastService) Logs(ctx context.Context, jobID *string, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return s.logs.List(ctx, jobID, limit)
}

// Bulk runs one maintenance action. days is ignored by pause_all_running.
func (s *BroadcastService) Bulk(ctx context.Context, action BulkAction, days int) (int64, error) {
	switch action {
	case BulkCancelOld:
		return s.bulk.CancelOlderThan(ctx, days)
	case BulkCleanupCompleted:
		return s.bulk.CleanupCompletedOlderThan(ctx, days)
	case BulkPauseAllRunning:
		return s.bulk.PauseAllRunning(ctx)
	default:
		return 0, fmt.Errorf("unknown bulk action %q: %w", action, domain.ErrInvalidInput)
	}
}
