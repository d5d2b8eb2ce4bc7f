package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

const jobColumns = `id, title, message_body, segment_kind, segment_days, segment_sign, image_url, buttons,
	total, sent_count, failed_count, status, requested_action, claim_token,
	created_at, started_at, finished_at, updated_at`

const recipientColumns = `id, job_id, seq, contact_id, display_name, status, error, sent_at`

// jobRow flattens the segment and attachment columns that domain.BroadcastJob
// keeps as nested values.
type jobRow struct {
	domain.BroadcastJob
	SegmentKind string         `db:"segment_kind"`
	SegmentDays int            `db:"segment_days"`
	SegmentSign string         `db:"segment_sign"`
	ImageURL    *string        `db:"image_url"`
	Buttons     domain.Buttons `db:"buttons"`
}

func (r jobRow) toJob() domain.BroadcastJob {
	job := r.BroadcastJob
	job.Segment = domain.SegmentCriteria{
		Kind: domain.SegmentKind(r.SegmentKind),
		Days: r.SegmentDays,
		Sign: r.SegmentSign,
	}
	job.Attachments = domain.Attachments{ImageURL: r.ImageURL, Buttons: r.Buttons}
	return job
}

// BroadcastRepository persists broadcast jobs and their recipient rows.
// Every status change is a compare-and-set on the current status.
type BroadcastRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewBroadcastRepository(db *sqlx.DB) *BroadcastRepository {
	return &BroadcastRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (r *BroadcastRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// missingOr returns ErrNotFound when the row does not exist and fallback otherwise.
func (r *BroadcastRepository) missingOr(ctx context.Context, q sqlx.QueryerContext, table, id string, fallback error) error {
	var n int
	query := r.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", table))
	if err := sqlx.GetContext(ctx, q, &n, query, id); err != nil {
		return fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
	}
	return fallback
}

// CreateJob stores a queued job and its pending recipients in snapshot order.
func (r *BroadcastRepository) CreateJob(
	ctx context.Context,
	job *domain.BroadcastJob,
	recipients []domain.RecipientSnapshot,
) (string, error) {
	now := r.now()

	job.ID = uuid.NewString()
	job.Total = len(recipients)
	job.SentCount = 0
	job.FailedCount = 0
	job.Status = domain.JobQueued
	job.RequestedAction = domain.ActionNone
	job.ClaimToken = nil
	job.CreatedAt = now
	job.UpdatedAt = now
	job.StartedAt = nil
	job.FinishedAt = nil

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		insertJob := r.db.Rebind(`
			INSERT INTO broadcast_jobs (id, title, message_body, segment_kind, segment_days, segment_sign,
				image_url, buttons, total, sent_count, failed_count, status, requested_action,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, '', ?, ?)
		`)
		if _, err := tx.ExecContext(ctx, insertJob,
			job.ID, job.Title, job.MessageBody,
			string(job.Segment.Kind), job.Segment.Days, job.Segment.Sign,
			job.Attachments.ImageURL, job.Attachments.Buttons,
			job.Total, string(domain.JobQueued), now, now,
		); err != nil {
			return fmt.Errorf("failed to insert broadcast job: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, r.db.Rebind(`
			INSERT INTO broadcast_recipients (id, job_id, seq, contact_id, display_name, status)
			VALUES (?, ?, ?, ?, ?, 'pending')
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare recipient insert: %w", err)
		}
		defer stmt.Close()

		for i, rc := range recipients {
			if _, err := stmt.ExecContext(ctx, uuid.NewString(), job.ID, i+1, rc.ContactID, rc.DisplayName); err != nil {
				return fmt.Errorf("failed to insert recipient %d: %w", i+1, err)
			}
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return job.ID, nil
}

func (r *BroadcastRepository) GetJob(ctx context.Context, id string) (*domain.BroadcastJob, error) {
	query := r.db.Rebind("SELECT " + jobColumns + " FROM broadcast_jobs WHERE id = ?")

	var row jobRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("broadcast job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get broadcast job: %w", err)
	}

	job := row.toJob()
	return &job, nil
}

func (r *BroadcastRepository) ListJobs(
	ctx context.Context,
	status *domain.JobStatus,
	page, pageSize int,
) ([]domain.BroadcastJob, int64, error) {
	offset := (page - 1) * pageSize

	where := ""
	var args []any
	if status != nil {
		where = " WHERE status = ?"
		args = append(args, string(*status))
	}

	var totalCount int64
	if err := r.db.GetContext(ctx, &totalCount, r.db.Rebind("SELECT COUNT(*) FROM broadcast_jobs"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count broadcast jobs: %w", err)
	}

	query := r.db.Rebind("SELECT " + jobColumns + " FROM broadcast_jobs" + where +
		" ORDER BY created_at DESC, id LIMIT ? OFFSET ?")

	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, query, append(args, pageSize, offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list broadcast jobs: %w", err)
	}

	jobs := make([]domain.BroadcastJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toJob())
	}

	return jobs, totalCount, nil
}

// Transition moves a job from one status to another if it is still in from.
func (r *BroadcastRepository) Transition(ctx context.Context, id string, from, to domain.JobStatus) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s: %w", from, to, domain.ErrConflict)
	}

	now := r.now()
	sets := []string{"status = ?", "requested_action = ''", "updated_at = ?"}
	args := []any{string(to), now}

	if to == domain.JobRunning {
		sets = append(sets, "started_at = COALESCE(started_at, ?)")
		args = append(args, now)
	}
	if to.IsTerminal() {
		sets = append(sets, "finished_at = ?")
		args = append(args, now)
	}
	if from == domain.JobRunning {
		sets = append(sets, "claim_token = NULL")
	}
	args = append(args, id, string(from))

	query := r.db.Rebind("UPDATE broadcast_jobs SET " + strings.Join(sets, ", ") + " WHERE id = ? AND status = ?")

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition broadcast job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return r.missingOr(ctx, r.db, "broadcast_jobs", id,
			fmt.Errorf("broadcast job %s is not %s: %w", id, from, domain.ErrConflict))
	}

	return nil
}

// Claim moves a queued or paused job to running and returns the token that
// identifies the new holder of the claim.
func (r *BroadcastRepository) Claim(ctx context.Context, id string, from domain.JobStatus) (string, error) {
	if !domain.CanTransition(from, domain.JobRunning) {
		return "", fmt.Errorf("cannot claim a %s job: %w", from, domain.ErrConflict)
	}

	now := r.now()
	token := uuid.NewString()

	query := r.db.Rebind(`
		UPDATE broadcast_jobs
		SET status = 'running', claim_token = ?, requested_action = '',
		    started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = ? AND status = ?
	`)

	result, err := r.db.ExecContext(ctx, query, token, now, now, id, string(from))
	if err != nil {
		return "", fmt.Errorf("failed to claim broadcast job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return "", r.missingOr(ctx, r.db, "broadcast_jobs", id,
			fmt.Errorf("broadcast job %s is not %s: %w", id, from, domain.ErrConflict))
	}

	return token, nil
}

// Finish moves a running job out of running, provided token still holds the claim.
func (r *BroadcastRepository) Finish(ctx context.Context, id, token string, to domain.JobStatus) error {
	if !domain.CanTransition(domain.JobRunning, to) {
		return fmt.Errorf("illegal transition running -> %s: %w", to, domain.ErrConflict)
	}

	now := r.now()
	sets := "status = ?, claim_token = NULL, requested_action = '', updated_at = ?"
	args := []any{string(to), now}
	if to.IsTerminal() {
		sets += ", finished_at = ?"
		args = append(args, now)
	}
	args = append(args, id, token)

	query := r.db.Rebind("UPDATE broadcast_jobs SET " + sets +
		" WHERE id = ? AND status = 'running' AND claim_token = ?")

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to finish broadcast job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return r.missingOr(ctx, r.db, "broadcast_jobs", id,
			fmt.Errorf("broadcast job %s is no longer held by this claim: %w", id, domain.ErrConflict))
	}

	return nil
}

// Heartbeat advances updated_at for a job still held by token.
func (r *BroadcastRepository) Heartbeat(ctx context.Context, id, token string) error {
	query := r.db.Rebind(`
		UPDATE broadcast_jobs SET updated_at = ?
		WHERE id = ? AND status = 'running' AND claim_token = ?
	`)

	result, err := r.db.ExecContext(ctx, query, r.now(), id, token)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("broadcast job %s is no longer held by this claim: %w", id, domain.ErrConflict)
	}

	return nil
}

// RequestAction leaves a pause or cancel signal for the dispatcher running the job.
func (r *BroadcastRepository) RequestAction(ctx context.Context, id string, action domain.Action) error {
	if action != domain.ActionPause && action != domain.ActionCancel {
		return fmt.Errorf("action %q cannot be requested: %w", action, domain.ErrConflict)
	}

	// A pending cancel is never downgraded to a pause.
	where := "id = ? AND status = 'running'"
	if action == domain.ActionPause {
		where += " AND requested_action <> 'cancel'"
	}
	query := r.db.Rebind("UPDATE broadcast_jobs SET requested_action = ? WHERE " + where)

	result, err := r.db.ExecContext(ctx, query, string(action), id)
	if err != nil {
		return fmt.Errorf("failed to request action: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return r.missingOr(ctx, r.db, "broadcast_jobs", id,
			fmt.Errorf("broadcast job %s is not running or has a cancel pending: %w", id, domain.ErrConflict))
	}

	return nil
}

// RecordOutcome marks a pending recipient sent or failed and bumps the job
// counter in the same transaction, so readers never see the two disagree.
func (r *BroadcastRepository) RecordOutcome(
	ctx context.Context,
	jobID, recipientID string,
	status domain.RecipientStatus,
	reason *string,
) error {
	var sentInc, failedInc int
	switch status {
	case domain.RecipientSent:
		sentInc = 1
		reason = nil
	case domain.RecipientFailed:
		failedInc = 1
	default:
		return fmt.Errorf("outcome must be sent or failed, got %q", status)
	}

	now := r.now()

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		bumpJob := r.db.Rebind(`
			UPDATE broadcast_jobs
			SET sent_count = sent_count + ?, failed_count = failed_count + ?, updated_at = ?
			WHERE id = ? AND status IN ('running', 'paused')
		`)
		result, err := tx.ExecContext(ctx, bumpJob, sentInc, failedInc, now, jobID)
		if err != nil {
			return fmt.Errorf("failed to update job counters: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return r.missingOr(ctx, tx, "broadcast_jobs", jobID,
				fmt.Errorf("broadcast job %s no longer accepts outcomes: %w", jobID, domain.ErrConflict))
		}

		markRecipient := r.db.Rebind(`
			UPDATE broadcast_recipients
			SET status = ?, error = ?, sent_at = ?
			WHERE id = ? AND job_id = ? AND status = 'pending'
		`)
		result, err = tx.ExecContext(ctx, markRecipient, string(status), reason, now, recipientID, jobID)
		if err != nil {
			return fmt.Errorf("failed to update recipient: %w", err)
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return r.missingOr(ctx, tx, "broadcast_recipients", recipientID,
				fmt.Errorf("recipient %s already has an outcome: %w", recipientID, domain.ErrConflict))
		}

		return nil
	})
}

func (r *BroadcastRepository) ListRecipients(
	ctx context.Context,
	jobID string,
	status *domain.RecipientStatus,
) ([]domain.BroadcastRecipient, error) {
	query := "SELECT " + recipientColumns + " FROM broadcast_recipients WHERE job_id = ?"
	args := []any{jobID}
	if status != nil {
		query += " AND status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY seq ASC"

	recipients := []domain.BroadcastRecipient{}
	if err := r.db.SelectContext(ctx, &recipients, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	return recipients, nil
}

// PendingRecipients returns the next batch of pending recipients after afterSeq.
func (r *BroadcastRepository) PendingRecipients(
	ctx context.Context,
	jobID string,
	afterSeq, limit int,
) ([]domain.BroadcastRecipient, error) {
	query := r.db.Rebind(`SELECT ` + recipientColumns + `
		FROM broadcast_recipients
		WHERE job_id = ? AND status = 'pending' AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`)

	var recipients []domain.BroadcastRecipient
	if err := r.db.SelectContext(ctx, &recipients, query, jobID, afterSeq, limit); err != nil {
		return nil, fmt.Errorf("failed to get pending recipients: %w", err)
	}

	return recipients, nil
}

func (r *BroadcastRepository) RecipientStats(ctx context.Context, jobID string) (domain.RecipientStats, error) {
	query := r.db.Rebind(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)    AS sent,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)  AS failed
		FROM broadcast_recipients
		WHERE job_id = ?
	`)

	var stats domain.RecipientStats
	if err := r.db.GetContext(ctx, &stats, query, jobID); err != nil {
		return domain.RecipientStats{}, fmt.Errorf("failed to get recipient stats: %w", err)
	}

	return stats, nil
}

// DeleteJob removes a job and its recipients. Running jobs are refused.
func (r *BroadcastRepository) DeleteJob(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status, r.db.Rebind("SELECT status FROM broadcast_jobs WHERE id = ?"), id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("broadcast job %s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get broadcast job status: %w", err)
		}
		if domain.JobStatus(status) == domain.JobRunning {
			return fmt.Errorf("broadcast job %s is running: %w", id, domain.ErrConflict)
		}

		if _, err := tx.ExecContext(ctx, r.db.Rebind("DELETE FROM broadcast_recipients WHERE job_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete recipients: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			r.db.Rebind("DELETE FROM broadcast_jobs WHERE id = ? AND status <> 'running'"), id)
		if err != nil {
			return fmt.Errorf("failed to delete broadcast job: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("broadcast job %s changed while deleting: %w", id, domain.ErrConflict)
		}

		return nil
	})
}

// CancelOlderThan cancels every non-terminal job created before cutoff.
func (r *BroadcastRepository) CancelOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	now := r.now()
	query := r.db.Rebind(`
		UPDATE broadcast_jobs
		SET status = 'cancelled', claim_token = NULL, requested_action = '',
		    finished_at = ?, updated_at = ?
		WHERE status IN ('queued', 'running', 'paused') AND created_at < ?
	`)

	result, err := r.db.ExecContext(ctx, query, now, now, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cancel old broadcast jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// DeleteTerminalOlderThan removes finished jobs created before cutoff, recipients first.
func (r *BroadcastRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	cutoff = cutoff.UTC()

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		deleteRecipients := r.db.Rebind(`
			DELETE FROM broadcast_recipients
			WHERE job_id IN (
				SELECT id FROM broadcast_jobs
				WHERE status IN ('done', 'failed', 'cancelled') AND created_at < ?
			)
		`)
		if _, err := tx.ExecContext(ctx, deleteRecipients, cutoff); err != nil {
			return fmt.Errorf("failed to delete recipients of old broadcast jobs: %w", err)
		}

		deleteJobs := r.db.Rebind(`
			DELETE FROM broadcast_jobs
			WHERE status IN ('done', 'failed', 'cancelled') AND created_at < ?
		`)
		result, err := tx.ExecContext(ctx, deleteJobs, cutoff)
		if err != nil {
			return fmt.Errorf("failed to delete old broadcast jobs: %w", err)
		}

		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// PauseAllRunning pauses every running job and releases its claim.
func (r *BroadcastRepository) PauseAllRunning(ctx context.Context) (int64, error) {
	query := r.db.Rebind(`
		UPDATE broadcast_jobs
		SET status = 'paused', claim_token = NULL, requested_action = '', updated_at = ?
		WHERE status = 'running'
	`)

	result, err := r.db.ExecContext(ctx, query, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to pause running broadcast jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// StaleRunning lists running jobs whose heartbeat is older than before.
func (r *BroadcastRepository) StaleRunning(ctx context.Context, before time.Time) ([]domain.BroadcastJob, error) {
	query := r.db.Rebind("SELECT " + jobColumns +
		" FROM broadcast_jobs WHERE status = 'running' AND updated_at < ? ORDER BY updated_at ASC")

	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, query, before.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list stale broadcast jobs: %w", err)
	}

	jobs := make([]domain.BroadcastJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toJob())
	}

	return jobs, nil
}

// QueuedJobIDs returns queued jobs untouched since before, oldest first.
func (r *BroadcastRepository) QueuedJobIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	query := r.db.Rebind(`
		SELECT id FROM broadcast_jobs
		WHERE status = 'queued' AND updated_at < ?
		ORDER BY created_at ASC LIMIT ?
	`)

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, before.UTC(), limit); err != nil {
		return nil, fmt.Errorf("failed to list queued broadcast jobs: %w", err)
	}

	return ids, nil
}

// TouchQueued advances updated_at of a job that is still queued.
func (r *BroadcastRepository) TouchQueued(ctx context.Context, id string) error {
	query := r.db.Rebind("UPDATE broadcast_jobs SET updated_at = ? WHERE id = ? AND status = 'queued'")

	if _, err := r.db.ExecContext(ctx, query, r.now(), id); err != nil {
		return fmt.Errorf("failed to touch queued broadcast job: %w", err)
	}

	return nil
}

// CountByStatus returns the number of jobs in each status. Statuses with no
// jobs are absent from the map.
func (r *BroadcastRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus `db:"status"`
		Count  int64            `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows,
		"SELECT status, COUNT(*) AS n FROM broadcast_jobs GROUP BY status"); err != nil {
		return nil, fmt.Errorf("failed to count broadcast jobs: %w", err)
	}

	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
