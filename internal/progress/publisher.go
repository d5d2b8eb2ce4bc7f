// Package progress streams job snapshots to admin clients.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventPing     EventType = "ping"
	EventEnd      EventType = "end"
)

// Event is one server-sent event. Snapshot is set for progress and end.
type Event struct {
	Type     EventType
	Snapshot *domain.JobSnapshot
}

// Data is the JSON body written after "data:".
func (e Event) Data() ([]byte, error) {
	if e.Snapshot == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.Snapshot)
}

type jobReader interface {
	GetJob(ctx context.Context, id string) (*domain.BroadcastJob, error)
}

type Publisher struct {
	store     jobReader
	poll      time.Duration
	keepAlive time.Duration
}

func NewPublisher(store jobReader, cfg environments.ProgressConfig) *Publisher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 15 * time.Second
	}
	return &Publisher{store: store, poll: cfg.PollInterval, keepAlive: cfg.KeepAliveInterval}
}

// Subscribe returns a stream that starts with the current snapshot and
// ends after the terminal one. The channel is closed when the job ends,
// is deleted, or ctx is done.
func (p *Publisher) Subscribe(ctx context.Context, jobID string) (<-chan Event, error) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 1)
	go p.stream(ctx, job, out)
	return out, nil
}

func (p *Publisher) stream(ctx context.Context, job *domain.BroadcastJob, out chan<- Event) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	defer close(out)

	jobID := job.ID
	var last []byte
	lastSent := time.Now()

	// publish returns false once the stream must stop.
	publish := func(job *domain.BroadcastJob) bool {
		snap := job.Snapshot()
		encoded, err := json.Marshal(snap)
		if err != nil {
			logger.Errorf("Failed to encode snapshot for job %s: %v", jobID, err)
			return false
		}

		if string(encoded) != string(last) {
			if !send(ctx, out, Event{Type: EventProgress, Snapshot: &snap}) {
				return false
			}
			last = encoded
			lastSent = time.Now()
		} else if time.Since(lastSent) >= p.keepAlive {
			if !send(ctx, out, Event{Type: EventPing}) {
				return false
			}
			lastSent = time.Now()
		}

		if snap.Status.IsTerminal() {
			send(ctx, out, Event{Type: EventEnd, Snapshot: &snap})
			return false
		}
		return true
	}

	if !publish(job) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current, err := p.store.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				send(ctx, out, Event{Type: EventEnd})
				return
			}
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("Progress poll for job %s failed: %v", jobID, fmt.Errorf("failed to load job: %w", err))
			continue
		}

		if !publish(current) {
			return
		}
	}
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
