package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCancelled JobStatus = "cancelled"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobQueued, JobRunning, JobPaused, JobCancelled, JobDone, JobFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further processing may happen for the job.
func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

// transitions lists every legal edge of the job state machine.
var transitions = map[JobStatus][]JobStatus{
	JobQueued:  {JobRunning, JobCancelled},
	JobRunning: {JobDone, JobFailed, JobPaused, JobCancelled},
	JobPaused:  {JobRunning, JobCancelled},
}

// CanTransition reports whether from -> to is an edge of the job state machine.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

func (s RecipientStatus) IsValid() bool {
	switch s {
	case RecipientPending, RecipientSent, RecipientFailed:
		return true
	}
	return false
}

// Action is a cooperative signal for the dispatcher currently running a job.
type Action string

const (
	ActionNone   Action = ""
	ActionPause  Action = "pause"
	ActionCancel Action = "cancel"
	ActionResume Action = "resume"
	ActionDelete Action = "delete"
)

type Button struct {
	Label string `json:"label" validate:"required,max=64"`
	URL   string `json:"url" validate:"required,url"`
}

// Buttons is persisted as a JSON array column.
type Buttons []Button

func (b Buttons) Value() (driver.Value, error) {
	if len(b) == 0 {
		return nil, nil
	}
	data, err := json.Marshal([]Button(b))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal buttons: %w", err)
	}
	return string(data), nil
}

func (b *Buttons) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported buttons column type %T", src)
	}
	if len(data) == 0 {
		*b = nil
		return nil
	}
	var out []Button
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to unmarshal buttons: %w", err)
	}
	*b = out
	return nil
}

type Attachments struct {
	ImageURL *string `json:"imageUrl,omitempty"`
	Buttons  Buttons `json:"buttons,omitempty"`
}

type BroadcastJob struct {
	ID              string          `db:"id" json:"id"`
	Title           string          `db:"title" json:"title"`
	MessageBody     string          `db:"message_body" json:"text"`
	Segment         SegmentCriteria `db:"-" json:"segment"`
	Attachments     Attachments     `db:"-" json:"attachments"`
	Total           int             `db:"total" json:"total"`
	SentCount       int             `db:"sent_count" json:"sent"`
	FailedCount     int             `db:"failed_count" json:"failed"`
	Status          JobStatus       `db:"status" json:"status"`
	RequestedAction Action          `db:"requested_action" json:"requestedAction,omitempty"`
	ClaimToken      *string         `db:"claim_token" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	StartedAt       *time.Time      `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt      *time.Time      `db:"finished_at" json:"finishedAt,omitempty"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// HeldBy reports whether the running claim belongs to token.
func (j *BroadcastJob) HeldBy(token string) bool {
	return j.Status == JobRunning && j.ClaimToken != nil && *j.ClaimToken == token
}

// Payload is what the transport delivers to every recipient of a job.
func (j *BroadcastJob) Payload() Payload {
	p := Payload{
		Title:   j.Title,
		Text:    j.MessageBody,
		Buttons: j.Attachments.Buttons,
	}
	if j.Attachments.ImageURL != nil {
		p.ImageURL = *j.Attachments.ImageURL
	}
	return p
}

// Snapshot is the progress view pushed to admin clients.
func (j *BroadcastJob) Snapshot() JobSnapshot {
	return JobSnapshot{
		ID:         j.ID,
		Title:      j.Title,
		Total:      j.Total,
		Sent:       j.SentCount,
		Failed:     j.FailedCount,
		Status:     j.Status,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

type JobSnapshot struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Total      int        `json:"total"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

type BroadcastRecipient struct {
	ID          string          `db:"id" json:"id"`
	JobID       string          `db:"job_id" json:"jobId"`
	Seq         int             `db:"seq" json:"seq"`
	ContactID   string          `db:"contact_id" json:"contactId"`
	DisplayName string          `db:"display_name" json:"displayName"`
	Status      RecipientStatus `db:"status" json:"status"`
	Error       *string         `db:"error" json:"error,omitempty"`
	SentAt      *time.Time      `db:"sent_at" json:"sentAt,omitempty"`
}

// RecipientSnapshot is a directory user frozen at segmentation time.
type RecipientSnapshot struct {
	UserID      int64
	ContactID   string
	DisplayName string
}

type RecipientStats struct {
	Pending int64 `db:"pending" json:"pending"`
	Sent    int64 `db:"sent" json:"sent"`
	Failed  int64 `db:"failed" json:"failed"`
}

// DispatchRequest asks a worker to run a job. ClaimToken is set when the
// claim was already taken on the worker's behalf (resume).
type DispatchRequest struct {
	JobID      string `json:"jobId"`
	ClaimToken string `json:"claimToken,omitempty"`
}

type LogLevel string

const (
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

type LogEntry struct {
	ID        int64          `db:"id" json:"id"`
	Level     LogLevel       `db:"level" json:"level"`
	Message   string         `db:"message" json:"message"`
	JobID     *string        `db:"job_id" json:"jobId,omitempty"`
	Metadata  map[string]any `db:"-" json:"metadata,omitempty"`
	Timestamp time.Time      `db:"created_at" json:"timestamp"`
}

// Payload is the transport-facing message.
type Payload struct {
	Title    string   `json:"-"`
	Text     string   `json:"content"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}
