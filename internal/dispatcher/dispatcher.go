// Package dispatcher runs broadcast jobs: it claims a job, walks its pending
// recipients in snapshot order and records one outcome per recipient.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

const shutdownGrace = 5 * time.Second

type jobStore interface {
	GetJob(ctx context.Context, id string) (*domain.BroadcastJob, error)
	Claim(ctx context.Context, id string, from domain.JobStatus) (string, error)
	Finish(ctx context.Context, id, token string, to domain.JobStatus) error
	Heartbeat(ctx context.Context, id, token string) error
	PendingRecipients(ctx context.Context, jobID string, afterSeq, limit int) ([]domain.BroadcastRecipient, error)
	RecordOutcome(ctx context.Context, jobID, recipientID string, status domain.RecipientStatus, reason *string) error
}

// Transport sends one payload to one contact. A *domain.RateLimitError
// means "retry later"; any other error is a delivery failure.
type Transport interface {
	Send(ctx context.Context, contactID string, payload domain.Payload) error
}

type auditor interface {
	Info(ctx context.Context, message string, metadata map[string]any)
	Warning(ctx context.Context, message string, metadata map[string]any)
	Error(ctx context.Context, message string, metadata map[string]any)
}

type alerter interface {
	Alert(ctx context.Context, kind, message string, fields map[string]any) error
}

type Dispatcher struct {
	store     jobStore
	transport Transport
	audit     auditor
	alerts    alerter
	limiter   *rate.Limiter
	cfg       environments.DispatchConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a dispatcher. The limiter is shared by every job it runs,
// since it models the transport's global send rate. alerts may be nil.
func New(store jobStore, transport Transport, audit auditor, alerts alerter, cfg environments.DispatchConfig) *Dispatcher {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.RateLimitBackoff {
		cfg.MaxBackoff = cfg.RateLimitBackoff
	}

	return &Dispatcher{
		store:     store,
		transport: transport,
		audit:     audit,
		alerts:    alerts,
		limiter:   rate.NewLimiter(limit, 1),
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// errStop ends a run without error: the job was finished, paused,
// cancelled or taken over by someone else.
var errStop = errors.New("dispatch stopped")

type run struct {
	jobID   string
	token   string
	payload domain.Payload
}

// Run processes one dispatch request. Losing the claim race is not an error.
// A persistence failure aborts the run and is returned; the job keeps its
// last durable state and is picked up by stale-job recovery.
func (d *Dispatcher) Run(ctx context.Context, req domain.DispatchRequest) error {
	token := req.ClaimToken
	if token == "" {
		t, err := d.store.Claim(ctx, req.JobID, domain.JobQueued)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
				logger.Debugf("Job %s not claimable, skipping: %v", req.JobID, err)
				return nil
			}
			return fmt.Errorf("failed to claim job %s: %w", req.JobID, err)
		}
		token = t
	}

	job, err := d.store.GetJob(ctx, req.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", req.JobID, err)
	}
	if !job.HeldBy(token) {
		logger.Debugf("Job %s is no longer held by this claim, skipping", req.JobID)
		return nil
	}

	activeDispatchers.Inc()
	defer activeDispatchers.Dec()

	r := &run{jobID: job.ID, token: token, payload: job.Payload()}

	d.audit.Info(ctx, "broadcast dispatch started", map[string]any{
		"jobId": job.ID, "total": job.Total, "sent": job.SentCount, "failed": job.FailedCount,
	})

	err = d.loop(ctx, r)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStop):
		return nil
	case ctx.Err() != nil:
		d.pauseOnShutdown(ctx, r)
		return nil
	default:
		d.audit.Error(ctx, "broadcast dispatch aborted", map[string]any{"jobId": r.jobID, "error": err.Error()})
		return err
	}
}

func (d *Dispatcher) loop(ctx context.Context, r *run) error {
	afterSeq := 0
	for {
		batch, err := d.store.PendingRecipients(ctx, r.jobID, afterSeq, d.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to load pending recipients: %w", err)
		}
		if len(batch) == 0 {
			return d.complete(ctx, r)
		}

		for _, rc := range batch {
			if err := d.deliver(ctx, r, rc); err != nil {
				return err
			}
			afterSeq = rc.Seq
		}
	}
}

// deliver sends to one recipient and records its outcome. Rate limiting
// retries the same recipient after backing off.
func (d *Dispatcher) deliver(ctx context.Context, r *run, rc domain.BroadcastRecipient) error {
	attempt := 0
	for {
		if err := d.checkSignals(ctx, r); err != nil {
			return err
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		start := time.Now()
		err := d.transport.Send(sendCtx, rc.ContactID, r.payload)
		sendErr := sendCtx.Err()
		cancel()
		sendDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			recipientOutcomes.WithLabelValues("sent").Inc()
			return d.record(ctx, r, rc, domain.RecipientSent, nil)
		}

		// Shutdown mid-send: leave the recipient pending for the resumed run.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var rl *domain.RateLimitError
		if errors.As(err, &rl) {
			attempt++
			recipientOutcomes.WithLabelValues("rate_limited").Inc()

			if d.cfg.MaxRateLimitRetries > 0 && attempt > d.cfg.MaxRateLimitRetries {
				reason := fmt.Sprintf("rate limited, gave up after %d retries", d.cfg.MaxRateLimitRetries)
				recipientOutcomes.WithLabelValues("failed").Inc()
				return d.record(ctx, r, rc, domain.RecipientFailed, &reason)
			}

			wait := d.backoff(attempt, rl.RetryAfter)
			logger.Warnf("Job %s: rate limited on recipient %d, retrying in %v (attempt %d)", r.jobID, rc.Seq, wait, attempt)
			if err := d.sleep(ctx, wait); err != nil {
				return err
			}
			if err := d.store.Heartbeat(ctx, r.jobID, r.token); err != nil && !errors.Is(err, domain.ErrConflict) {
				return fmt.Errorf("failed to update heartbeat: %w", err)
			}
			continue
		}

		reason := strings.ToValidUTF8(err.Error(), "\uFFFD")
		if errors.Is(sendErr, context.DeadlineExceeded) {
			reason = fmt.Sprintf("send timed out after %v", d.cfg.SendTimeout)
		}
		recipientOutcomes.WithLabelValues("failed").Inc()
		return d.record(ctx, r, rc, domain.RecipientFailed, &reason)
	}
}

func (d *Dispatcher) record(
	ctx context.Context,
	r *run,
	rc domain.BroadcastRecipient,
	status domain.RecipientStatus,
	reason *string,
) error {
	// The send already happened, so its outcome is persisted even during shutdown.
	err := d.store.RecordOutcome(context.WithoutCancel(ctx), r.jobID, rc.ID, status, reason)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("failed to record outcome for recipient %d: %w", rc.Seq, err)
	}

	// The job went terminal underneath us, or the row was already recorded.
	job, gerr := d.store.GetJob(ctx, r.jobID)
	if gerr != nil {
		return fmt.Errorf("failed to reload job: %w", gerr)
	}
	if !job.HeldBy(r.token) {
		logger.Infof("Job %s changed to %s while dispatching, stopping", r.jobID, job.Status)
		return errStop
	}
	logger.Warnf("Job %s: recipient %d already had an outcome", r.jobID, rc.Seq)
	return nil
}

// checkSignals honours pause/cancel requests and external status changes.
func (d *Dispatcher) checkSignals(ctx context.Context, r *run) error {
	job, err := d.store.GetJob(ctx, r.jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errStop
		}
		return fmt.Errorf("failed to reload job: %w", err)
	}

	if !job.HeldBy(r.token) {
		logger.Infof("Job %s is %s and no longer held by this dispatcher, stopping", r.jobID, job.Status)
		return errStop
	}

	var to domain.JobStatus
	var message string
	switch job.RequestedAction {
	case domain.ActionCancel:
		to, message = domain.JobCancelled, "broadcast cancelled"
	case domain.ActionPause:
		to, message = domain.JobPaused, "broadcast paused"
	default:
		return nil
	}

	if _, err := d.finish(ctx, r, job, to, message); err != nil {
		return err
	}
	return errStop
}

func (d *Dispatcher) complete(ctx context.Context, r *run) error {
	job, err := d.store.GetJob(ctx, r.jobID)
	if err != nil {
		return fmt.Errorf("failed to reload job: %w", err)
	}
	if !job.HeldBy(r.token) {
		return errStop
	}

	to, message := domain.JobDone, "broadcast completed"
	if job.Total > 0 && job.FailedCount == job.Total {
		to, message = domain.JobFailed, "broadcast failed"
	}

	finished, err := d.finish(ctx, r, job, to, message)
	if err != nil {
		return err
	}
	if finished && to == domain.JobFailed {
		d.alert(ctx, job)
	}
	return errStop
}

// finish leaves running through the claim. It reports false when the job
// had already changed hands.
func (d *Dispatcher) finish(
	ctx context.Context,
	r *run,
	job *domain.BroadcastJob,
	to domain.JobStatus,
	message string,
) (bool, error) {
	if err := d.store.Finish(ctx, r.jobID, r.token, to); err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			logger.Infof("Job %s changed before it could be marked %s", r.jobID, to)
			return false, nil
		}
		return false, fmt.Errorf("failed to mark job %s: %w", to, err)
	}

	jobsFinished.WithLabelValues(string(to)).Inc()

	meta := map[string]any{
		"jobId": r.jobID, "status": string(to),
		"total": job.Total, "sent": job.SentCount, "failed": job.FailedCount,
	}
	if to == domain.JobFailed {
		d.audit.Error(ctx, message, meta)
	} else {
		d.audit.Info(ctx, message, meta)
	}

	logger.Infof("Job %s -> %s (%d sent, %d failed of %d)", r.jobID, to, job.SentCount, job.FailedCount, job.Total)
	return true, nil
}

func (d *Dispatcher) pauseOnShutdown(ctx context.Context, r *run) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()

	if err := d.store.Finish(pctx, r.jobID, r.token, domain.JobPaused); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			logger.Errorf("Failed to pause job %s on shutdown: %v", r.jobID, err)
		}
		return
	}

	jobsFinished.WithLabelValues(string(domain.JobPaused)).Inc()
	d.audit.Warning(pctx, "broadcast paused by shutdown", map[string]any{"jobId": r.jobID})
	logger.Warnf("Job %s paused by shutdown", r.jobID)
}

func (d *Dispatcher) alert(ctx context.Context, job *domain.BroadcastJob) {
	if d.alerts == nil {
		return
	}
	err := d.alerts.Alert(context.WithoutCancel(ctx), "broadcast_failed",
		fmt.Sprintf("All %d recipients of broadcast %q failed", job.Total, job.Title),
		map[string]any{"jobId": job.ID, "total": job.Total})
	if err != nil {
		logger.Warnf("Failed to alert on job %s: %v", job.ID, err)
	}
}

// backoff doubles from RateLimitBackoff up to MaxBackoff. A longer
// retry-after from the transport wins.
func (d *Dispatcher) backoff(attempt int, retryAfter time.Duration) time.Duration {
	exp := float64(d.cfg.RateLimitBackoff) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(math.Min(exp, float64(d.cfg.MaxBackoff)))
	if retryAfter > wait {
		wait = retryAfter
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
