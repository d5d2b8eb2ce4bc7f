// Package export renders broadcast reports as spreadsheets.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

const (
	failedSheet  = "failed"
	summarySheet = "summary"
)

var failedHeader = []string{"seq", "recipient_id", "contact_id", "display_name", "error", "finished_at"}

// FailedRecipientsXLSX writes one row per failed recipient plus a summary
// sheet with the job's counters.
func FailedRecipientsXLSX(job *domain.BroadcastJob, failed []domain.BroadcastRecipient, counts domain.RecipientStats) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), failedSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	header := failedHeader
	if err := xl.SetSheetRow(failedSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range failed {
		reason := ""
		if r.Error != nil {
			reason = *r.Error
		}
		finished := ""
		if r.SentAt != nil {
			finished = r.SentAt.UTC().Format(time.RFC3339)
		}
		record := []any{r.Seq, r.ID, r.ContactID, r.DisplayName, reason, finished}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		if err := xl.SetSheetRow(failedSheet, cell, &record); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := xl.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	summary := [][]any{
		{"job_id", job.ID},
		{"title", job.Title},
		{"status", string(job.Status)},
		{"total", job.Total},
		{"sent", counts.Sent},
		{"failed", counts.Failed},
		{"pending", counts.Pending},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := xl.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write summary: %w", err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// FailedFilename is the download name for a job's failure report.
func FailedFilename(jobID string) string {
	return fmt.Sprintf("broadcast_%s_failed.xlsx", jobID)
}
