package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

// LogRepository is the append-only store for broadcast audit entries.
type LogRepository struct {
	db *sqlx.DB
}

func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

type logRow struct {
	domain.LogEntry
	RawMetadata *string `db:"metadata"`
}

func (r *LogRepository) Append(ctx context.Context, entry domain.LogEntry) error {
	var metadata *string
	if len(entry.Metadata) > 0 {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal log metadata: %w", err)
		}
		s := string(data)
		metadata = &s
	}

	if entry.JobID == nil {
		if id, ok := entry.Metadata["jobId"].(string); ok && id != "" {
			entry.JobID = &id
		}
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := r.db.Rebind(`
		INSERT INTO broadcast_logs (level, message, job_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)

	if _, err := r.db.ExecContext(ctx, query,
		string(entry.Level), entry.Message, entry.JobID, metadata,
		entry.Timestamp.UTC().Truncate(time.Microsecond),
	); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	return nil
}

// List returns the newest entries first, optionally only those of one job.
func (r *LogRepository) List(ctx context.Context, jobID *string, limit int) ([]domain.LogEntry, error) {
	query := "SELECT id, level, message, job_id, metadata, created_at FROM broadcast_logs"
	var args []any
	if jobID != nil {
		query += " WHERE job_id = ?"
		args = append(args, *jobID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var rows []logRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}

	entries := make([]domain.LogEntry, 0, len(rows))
	for _, row := range rows {
		entry := row.LogEntry
		if row.RawMetadata != nil && *row.RawMetadata != "" {
			if err := json.Unmarshal([]byte(*row.RawMetadata), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
