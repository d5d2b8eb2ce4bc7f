package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

type actorKey struct{}

// WithActor records the admin behind the request so entries written under
// ctx carry it in their metadata.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

type logStore interface {
	Append(ctx context.Context, entry domain.LogEntry) error
}

// Sink records broadcast audit entries and mirrors them to the process log.
// A failing store is reported in the process log and otherwise ignored.
type Sink struct {
	store logStore
}

func NewSink(store logStore) *Sink {
	return &Sink{store: store}
}

func (s *Sink) Record(ctx context.Context, level domain.LogLevel, message string, metadata map[string]any) {
	if actor := ActorFrom(ctx); actor != "" {
		tagged := make(map[string]any, len(metadata)+1)
		for k, v := range metadata {
			tagged[k] = v
		}
		tagged["actor"] = actor
		metadata = tagged
	}

	entry := domain.LogEntry{
		Level:     level,
		Message:   message,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	ev := logger.L().WithLevel(zerologLevel(level)).Str("component", "audit")
	for k, v := range metadata {
		ev = ev.Interface(k, v)
	}
	ev.Msg(message)

	if s == nil || s.store == nil {
		return
	}

	if err := s.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.Errorf("Failed to write audit entry %q: %v", message, err)
	}
}

func (s *Sink) Info(ctx context.Context, message string, metadata map[string]any) {
	s.Record(ctx, domain.LevelInfo, message, metadata)
}

func (s *Sink) Warning(ctx context.Context, message string, metadata map[string]any) {
	s.Record(ctx, domain.LevelWarning, message, metadata)
}

func (s *Sink) Error(ctx context.Context, message string, metadata map[string]any) {
	s.Record(ctx, domain.LevelError, message, metadata)
}

func zerologLevel(level domain.LogLevel) zerolog.Level {
	switch level {
	case domain.LevelWarning:
		return zerolog.WarnLevel
	case domain.LevelError:
		return zerolog.ErrorLevel
	case domain.LevelCritical:
		// Critical entries must not terminate the process the way Fatal would.
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
