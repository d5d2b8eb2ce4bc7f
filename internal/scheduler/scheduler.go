package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/internal/queue"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

const (
	// Upper bound of queued jobs re-published per tick.
	republishBatch = 100
	// A queued job is re-published once it has waited this many intervals.
	republishAfterTicks = 2
)

type queuedLister interface {
	QueuedJobIDs(ctx context.Context, before time.Time, limit int) ([]string, error)
	TouchQueued(ctx context.Context, id string) error
}

type publisher interface {
	Publish(ctx context.Context, req domain.DispatchRequest) error
}

type staleRecoverer interface {
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type alerter interface {
	Alert(ctx context.Context, kind, message string, fields map[string]any) error
}

// Scheduler is the reconciler. Every tick it re-publishes queued jobs, in
// case their dispatch message was lost, and releases stale running jobs.
type Scheduler struct {
	jobs   queuedLister
	queue  publisher
	stale  staleRecoverer
	alerts alerter

	interval        time.Duration
	staleAfter      time.Duration
	alertThreshold  int // Consecutive failed ticks before alerting
	lastAlertSentAt time.Time

	// Internal state
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	// Statistics
	lastRunAt   time.Time
	runsCount   int64
	republished int64
	recovered   int64
	lastError   string

	consecutiveFailures int
}

func NewScheduler(
	jobs queuedLister,
	queue publisher,
	stale staleRecoverer,
	alerts alerter,
	interval, staleAfter time.Duration,
	alertThreshold int,
) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		jobs:           jobs,
		queue:          queue,
		stale:          stale,
		alerts:         alerts,
		interval:       interval,
		staleAfter:     staleAfter,
		alertThreshold: alertThreshold,
	}
}

// StartWithParams restarts the reconciler with a new interval. Zero keeps the
// current one.
func (s *Scheduler) StartWithParams(ctx context.Context, intervalSeconds, alertThreshold int) error {
	s.mu.Lock()
	if intervalSeconds > 0 {
		s.interval = time.Duration(intervalSeconds) * time.Second
	}
	if alertThreshold > 0 {
		s.alertThreshold = alertThreshold
	}
	s.consecutiveFailures = 0
	s.mu.Unlock()

	return s.Start(ctx)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	interval := s.interval
	s.mu.Unlock()

	logger.Infof("Starting reconciler with interval: %v", interval)

	go s.run(ctx, interval)

	return nil
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration) {
	defer close(s.doneChan)

	s.reconcile(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reconcile(ctx)

		case <-s.stopChan:
			logger.Warnf("Scheduler received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Scheduler context cancelled")
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.runsCount++
	runNumber := s.runsCount
	staleAfter := s.staleAfter
	cutoff := s.lastRunAt.Add(-republishAfterTicks * s.interval)
	s.mu.Unlock()

	republished, err := s.republishQueued(ctx, cutoff)
	var recovered int64
	if err == nil && staleAfter > 0 {
		recovered, err = s.stale.RecoverStale(ctx, staleAfter)
		if err != nil {
			err = fmt.Errorf("failed to recover stale jobs: %w", err)
		}
	}

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.republished += int64(republished)
	s.recovered += recovered

	if err != nil {
		s.consecutiveFailures++
		s.lastError = err.Error()
		failures, threshold := s.consecutiveFailures, s.alertThreshold
		s.mu.Unlock()

		logger.Errorf("[Run #%d] Reconcile failed (consecutive failures: %d): %v", runNumber, failures, err)
		if threshold > 0 && failures >= threshold && failures%threshold == 0 {
			s.sendAlert(ctx, runNumber, failures, err)
		}
		return
	}

	if s.consecutiveFailures > 0 {
		logger.Debugf("[Run #%d] Resetting consecutive failure count (was: %d)", runNumber, s.consecutiveFailures)
	}
	s.consecutiveFailures = 0
	s.lastError = ""
	s.mu.Unlock()

	if republished > 0 || recovered > 0 {
		logger.Infof("[Run #%d] Re-published %d queued jobs, recovered %d stale jobs", runNumber, republished, recovered)
	}
}

// republishQueued only picks jobs idle since before, so a message still
// waiting in the queue is not duplicated every tick.
func (s *Scheduler) republishQueued(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.jobs.QueuedJobIDs(ctx, before, republishBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list queued jobs: %w", err)
	}

	for i, id := range ids {
		if err := s.queue.Publish(ctx, domain.DispatchRequest{JobID: id}); err != nil {
			if errors.Is(err, queue.ErrFull) {
				logger.Warnf("Queue full, re-published %d of %d queued jobs", i, len(ids))
				return i, nil
			}
			return i, fmt.Errorf("failed to re-publish job %s: %w", id, err)
		}
		if err := s.jobs.TouchQueued(ctx, id); err != nil {
			return i + 1, err
		}
	}

	return len(ids), nil
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	stopChan := s.stopChan
	doneChan := s.doneChan
	s.mu.Unlock()

	close(stopChan)
	<-doneChan

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:             s.running,
		LastRunAt:           s.lastRunAt,
		RunsCount:           s.runsCount,
		Republished:         s.republished,
		Recovered:           s.recovered,
		Interval:            s.interval,
		ConsecutiveFailures: s.consecutiveFailures,
		LastError:           s.lastError,
		LastAlertSentAt:     s.lastAlertSentAt,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}

func (s *Scheduler) sendAlert(ctx context.Context, runNumber int64, failures int, cause error) {
	if s.alerts == nil {
		return
	}

	err := s.alerts.Alert(ctx, "reconcile_failing",
		fmt.Sprintf("Reconciler failed for %d consecutive runs", failures),
		map[string]any{"runNumber": runNumber, "consecutiveFailures": failures, "error": cause.Error()})
	if err != nil {
		return
	}

	s.mu.Lock()
	s.lastAlertSentAt = time.Now()
	s.mu.Unlock()
}

type SchedulerStatus struct {
	Running             bool          `json:"running"`
	LastRunAt           time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt           time.Time     `json:"nextRunAt,omitempty"`
	RunsCount           int64         `json:"runsCount"`
	Republished         int64         `json:"republished"`
	Recovered           int64         `json:"recovered"`
	Interval            time.Duration `json:"interval"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	LastError           string        `json:"lastError,omitempty"`
	LastAlertSentAt     time.Time     `json:"lastAlertSentAt,omitempty"`
}
