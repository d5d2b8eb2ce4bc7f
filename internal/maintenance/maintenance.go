// Package maintenance holds the admin bulk operations over broadcast jobs.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

type jobStore interface {
	CancelOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	PauseAllRunning(ctx context.Context) (int64, error)
	StaleRunning(ctx context.Context, before time.Time) ([]domain.BroadcastJob, error)
	Finish(ctx context.Context, id, token string, to domain.JobStatus) error
}

type auditor interface {
	Info(ctx context.Context, message string, metadata map[string]any)
	Warning(ctx context.Context, message string, metadata map[string]any)
}

type Service struct {
	store jobStore
	audit auditor
	now   func() time.Time
}

func NewService(store jobStore, audit auditor) *Service {
	return &Service{store: store, audit: audit, now: time.Now}
}

func (s *Service) cutoff(days int) (time.Time, error) {
	if days < 1 {
		return time.Time{}, fmt.Errorf("days must be at least 1, got %d: %w", days, domain.ErrInvalidInput)
	}
	return s.now().UTC().AddDate(0, 0, -days), nil
}

// CancelOlderThan cancels queued, running and paused jobs created more than
// days ago. Running dispatchers notice on their next check and stop.
func (s *Service) CancelOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff, err := s.cutoff(days)
	if err != nil {
		return 0, err
	}

	n, err := s.store.CancelOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.audit.Info(ctx, "bulk cancel of old broadcasts", map[string]any{
		"action": "cancel_old", "days": days, "cutoff": cutoff, "affectedRows": n,
	})
	return n, nil
}

// CleanupCompletedOlderThan deletes finished jobs and their recipients.
func (s *Service) CleanupCompletedOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff, err := s.cutoff(days)
	if err != nil {
		return 0, err
	}

	n, err := s.store.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.audit.Info(ctx, "cleanup of completed broadcasts", map[string]any{
		"action": "cleanup_completed", "days": days, "cutoff": cutoff, "affectedRows": n,
	})
	return n, nil
}

func (s *Service) PauseAllRunning(ctx context.Context) (int64, error) {
	n, err := s.store.PauseAllRunning(ctx)
	if err != nil {
		return 0, err
	}

	s.audit.Info(ctx, "bulk pause of running broadcasts", map[string]any{
		"action": "pause_all_running", "affectedRows": n,
	})
	return n, nil
}

// RecoverStale releases running jobs whose dispatcher stopped heartbeating.
// They become cancelled when a cancel was pending and paused otherwise;
// they are not resumed automatically.
func (s *Service) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("stale threshold must be positive: %w", domain.ErrInvalidInput)
	}

	jobs, err := s.store.StaleRunning(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	var paused, cancelled int64
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.ClaimToken == nil {
			continue
		}

		to := domain.JobPaused
		if job.RequestedAction == domain.ActionCancel {
			to = domain.JobCancelled
		}

		if err := s.store.Finish(ctx, job.ID, *job.ClaimToken, to); err != nil {
			logger.Warnf("Could not recover stale job %s: %v", job.ID, err)
			continue
		}

		ids = append(ids, job.ID)
		if to == domain.JobCancelled {
			cancelled++
		} else {
			paused++
		}
	}

	n := paused + cancelled
	if n > 0 {
		s.audit.Warning(ctx, "recovered stale broadcasts", map[string]any{
			"action": "recover_stale", "olderThan": olderThan.String(),
			"paused": paused, "cancelled": cancelled, "jobIds": ids,
		})
	}
	return n, nil
}
