package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

type fakeStore struct {
	entries []domain.LogEntry
	err     error
}

func (f *fakeStore) Append(ctx context.Context, entry domain.LogEntry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.entries = append(f.entries, entry)
	return f.err
}

func TestSink_RecordStoresEntry(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store)

	sink.Info(context.Background(), "broadcast created", map[string]any{"jobId": "j1"})

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.Level != domain.LevelInfo || e.Message != "broadcast created" || e.Metadata["jobId"] != "j1" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestSink_RecordSurvivesCancelledContextAndStoreErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	sink := NewSink(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Must not panic or propagate.
	sink.Error(ctx, "broadcast failed", nil)

	if len(store.entries) != 1 {
		t.Fatalf("expected entry to be attempted despite cancelled context, got %d", len(store.entries))
	}
}

func TestSink_NilSinkIsNoop(t *testing.T) {
	var sink *Sink
	sink.Warning(context.Background(), "ignored", nil)
}

func TestSink_RecordTagsActorWithoutMutatingMetadata(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store)

	meta := map[string]any{"action": "cancel_old", "days": 7}
	sink.Info(WithActor(context.Background(), "selena"), "bulk maintenance", meta)

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	if got := store.entries[0].Metadata["actor"]; got != "selena" {
		t.Fatalf("expected actor selena, got %v", got)
	}
	if _, ok := meta["actor"]; ok {
		t.Fatalf("caller metadata must not be modified")
	}
}
