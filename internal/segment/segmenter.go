// Package segment resolves segment criteria against the user directory.
package segment

import (
	"context"
	"fmt"
	"time"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

type directory interface {
	FindUsers(ctx context.Context, q domain.UserQuery) ([]domain.DirectoryUser, error)
}

type Segmenter struct {
	dir directory
	now func() time.Time
}

func NewSegmenter(dir directory) *Segmenter {
	return &Segmenter{dir: dir, now: time.Now}
}

// Resolve snapshots the audience for criteria in user id order. Users
// without a contact id are skipped and duplicate contact ids keep their
// first occurrence.
func (s *Segmenter) Resolve(ctx context.Context, criteria domain.SegmentCriteria) ([]domain.RecipientSnapshot, error) {
	q, err := s.query(criteria)
	if err != nil {
		return nil, err
	}

	users, err := s.dir.FindUsers(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve segment %s: %w", criteria, err)
	}

	seen := make(map[string]struct{}, len(users))
	out := make([]domain.RecipientSnapshot, 0, len(users))
	for _, u := range users {
		if u.ContactID == "" {
			continue
		}
		if _, dup := seen[u.ContactID]; dup {
			continue
		}
		seen[u.ContactID] = struct{}{}
		out = append(out, domain.RecipientSnapshot{
			UserID:      u.ID,
			ContactID:   u.ContactID,
			DisplayName: u.DisplayName,
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("segment %s: %w", criteria, domain.ErrEmptyAudience)
	}

	return out, nil
}

// Count is Resolve without keeping the snapshot.
func (s *Segmenter) Count(ctx context.Context, criteria domain.SegmentCriteria) (int, error) {
	recipients, err := s.Resolve(ctx, criteria)
	if err != nil {
		return 0, err
	}
	return len(recipients), nil
}

func (s *Segmenter) query(criteria domain.SegmentCriteria) (domain.UserQuery, error) {
	if err := criteria.Validate(); err != nil {
		return domain.UserQuery{}, err
	}

	var q domain.UserQuery
	switch criteria.Kind {
	case domain.SegmentPremium:
		q.PremiumOnly = true
	case domain.SegmentInactive:
		cutoff := s.now().AddDate(0, 0, -criteria.Days)
		q.InactiveBefore = &cutoff
	case domain.SegmentZodiac:
		q.ZodiacSign = criteria.Sign
	}

	return q, nil
}
