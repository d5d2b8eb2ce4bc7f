package segment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

type fakeDirectory struct {
	users []domain.DirectoryUser
	err   error
	last  domain.UserQuery
	calls int
}

func (f *fakeDirectory) FindUsers(_ context.Context, q domain.UserQuery) ([]domain.DirectoryUser, error) {
	f.calls++
	f.last = q
	return f.users, f.err
}

func TestResolve_DedupsAndSkipsEmptyContacts(t *testing.T) {
	dir := &fakeDirectory{users: []domain.DirectoryUser{
		{ID: 1, ContactID: "100", DisplayName: "first"},
		{ID: 2, ContactID: ""},
		{ID: 3, ContactID: "200", DisplayName: "second"},
		{ID: 4, ContactID: "100", DisplayName: "duplicate"},
	}}
	s := NewSegmenter(dir)

	got, err := s.Resolve(context.Background(), domain.AllUsers())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(got))
	}
	if got[0].ContactID != "100" || got[0].DisplayName != "first" {
		t.Fatalf("expected first occurrence to win, got %+v", got[0])
	}
	if got[1].UserID != 3 {
		t.Fatalf("expected directory order to be kept, got %+v", got[1])
	}
}

func TestResolve_EmptyAudience(t *testing.T) {
	s := NewSegmenter(&fakeDirectory{users: []domain.DirectoryUser{{ID: 1}}})

	_, err := s.Resolve(context.Background(), domain.PremiumUsers())
	if !errors.Is(err, domain.ErrEmptyAudience) {
		t.Fatalf("expected ErrEmptyAudience, got %v", err)
	}
}

func TestResolve_CompilesCriteriaToQuery(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	dir := &fakeDirectory{users: []domain.DirectoryUser{{ID: 1, ContactID: "1"}}}
	s := NewSegmenter(dir)
	s.now = func() time.Time { return now }

	ctx := context.Background()

	if _, err := s.Resolve(ctx, domain.PremiumUsers()); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !dir.last.PremiumOnly || dir.last.InactiveBefore != nil || dir.last.ZodiacSign != "" {
		t.Fatalf("unexpected premium query: %+v", dir.last)
	}

	if _, err := s.Resolve(ctx, domain.InactiveSince(7)); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if dir.last.InactiveBefore == nil || !dir.last.InactiveBefore.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("unexpected inactive cutoff: %+v", dir.last.InactiveBefore)
	}

	if _, err := s.Resolve(ctx, domain.ZodiacSign("Aries")); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if dir.last.ZodiacSign != "aries" {
		t.Fatalf("expected lowercased sign, got %q", dir.last.ZodiacSign)
	}
}

func TestResolve_InvalidCriteriaNeverQueries(t *testing.T) {
	dir := &fakeDirectory{}
	s := NewSegmenter(dir)

	_, err := s.Resolve(context.Background(), domain.InactiveSince(0))
	if !errors.Is(err, domain.ErrInvalidSegment) {
		t.Fatalf("expected ErrInvalidSegment, got %v", err)
	}
	if dir.calls != 0 {
		t.Fatalf("expected no directory calls, got %d", dir.calls)
	}
}

func TestCount(t *testing.T) {
	dir := &fakeDirectory{users: []domain.DirectoryUser{
		{ID: 1, ContactID: "1"}, {ID: 2, ContactID: "2"}, {ID: 3, ContactID: "2"},
	}}

	n, err := NewSegmenter(dir).Count(context.Background(), domain.AllUsers())
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}
