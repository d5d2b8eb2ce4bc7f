package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

func TestFailedRecipientsXLSX(t *testing.T) {
	reason := "chat not found"
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	job := &domain.BroadcastJob{ID: "job-1", Title: "Eclipse", Status: domain.JobDone, Total: 3}
	failed := []domain.BroadcastRecipient{
		{ID: "r2", Seq: 2, ContactID: "200", DisplayName: "Ada", Status: domain.RecipientFailed, Error: &reason, SentAt: &at},
	}

	data, err := FailedRecipientsXLSX(job, failed, domain.RecipientStats{Sent: 2, Failed: 1})
	require.NoError(t, err)

	xl, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer xl.Close()

	rows, err := xl.GetRows(failedSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, failedHeader, rows[0])
	require.Equal(t, []string{"2", "r2", "200", "Ada", "chat not found", "2025-01-02T03:04:05Z"}, rows[1])

	summary, err := xl.GetRows(summarySheet)
	require.NoError(t, err)
	require.Equal(t, []string{"failed", "1"}, summary[5])
}

func TestFailedRecipientsXLSX_Empty(t *testing.T) {
	data, err := FailedRecipientsXLSX(&domain.BroadcastJob{ID: "j"}, nil, domain.RecipientStats{})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Equal(t, "broadcast_j_failed.xlsx", FailedFilename("j"))
}
