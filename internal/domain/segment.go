package domain

import (
	"fmt"
	"strings"
	"time"
)

type SegmentKind string

const (
	SegmentAll      SegmentKind = "all"
	SegmentPremium  SegmentKind = "premium"
	SegmentInactive SegmentKind = "inactive"
	SegmentZodiac   SegmentKind = "zodiac"
)

// MaxInactiveDays bounds InactiveSince to something a product would ask for.
const MaxInactiveDays = 3650

var zodiacSigns = map[string]struct{}{
	"aries": {}, "taurus": {}, "gemini": {}, "cancer": {},
	"leo": {}, "virgo": {}, "libra": {}, "scorpio": {},
	"sagittarius": {}, "capricorn": {}, "aquarius": {}, "pisces": {},
}

// IsZodiacSign reports whether sign names one of the twelve signs, ignoring case.
func IsZodiacSign(sign string) bool {
	_, ok := zodiacSigns[strings.ToLower(strings.TrimSpace(sign))]
	return ok
}

// SegmentCriteria is a closed variant: Days is meaningful only for
// SegmentInactive and Sign only for SegmentZodiac. Build values through the
// constructors or ParseSegment so the other fields stay zero.
type SegmentCriteria struct {
	Kind SegmentKind `json:"kind"`
	Days int         `json:"days,omitempty"`
	Sign string      `json:"sign,omitempty"`
}

func AllUsers() SegmentCriteria { return SegmentCriteria{Kind: SegmentAll} }

func PremiumUsers() SegmentCriteria { return SegmentCriteria{Kind: SegmentPremium} }

func InactiveSince(days int) SegmentCriteria {
	return SegmentCriteria{Kind: SegmentInactive, Days: days}
}

func ZodiacSign(sign string) SegmentCriteria {
	return SegmentCriteria{Kind: SegmentZodiac, Sign: strings.ToLower(strings.TrimSpace(sign))}
}

// ParseSegment builds criteria from the loosely shaped API input and rejects
// anything that does not form one of the four variants.
func ParseSegment(kind string, days *int, sign *string) (SegmentCriteria, error) {
	var c SegmentCriteria
	switch SegmentKind(strings.ToLower(strings.TrimSpace(kind))) {
	case SegmentAll:
		c = AllUsers()
	case SegmentPremium:
		c = PremiumUsers()
	case SegmentInactive:
		if days == nil {
			return SegmentCriteria{}, fmt.Errorf("%w: segment inactive requires days", ErrInvalidSegment)
		}
		c = InactiveSince(*days)
	case SegmentZodiac:
		if sign == nil {
			return SegmentCriteria{}, fmt.Errorf("%w: segment zodiac requires sign", ErrInvalidSegment)
		}
		c = ZodiacSign(*sign)
	default:
		return SegmentCriteria{}, fmt.Errorf("%w: unknown segment %q", ErrInvalidSegment, kind)
	}
	if err := c.Validate(); err != nil {
		return SegmentCriteria{}, err
	}
	return c, nil
}

func (c SegmentCriteria) Validate() error {
	switch c.Kind {
	case SegmentAll, SegmentPremium:
		if c.Days != 0 || c.Sign != "" {
			return fmt.Errorf("%w: segment %s takes no parameters", ErrInvalidSegment, c.Kind)
		}
	case SegmentInactive:
		if c.Days < 1 || c.Days > MaxInactiveDays {
			return fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidSegment, MaxInactiveDays)
		}
		if c.Sign != "" {
			return fmt.Errorf("%w: segment inactive takes no sign", ErrInvalidSegment)
		}
	case SegmentZodiac:
		if _, ok := zodiacSigns[c.Sign]; !ok {
			return fmt.Errorf("%w: unknown zodiac sign %q", ErrInvalidSegment, c.Sign)
		}
		if c.Days != 0 {
			return fmt.Errorf("%w: segment zodiac takes no days", ErrInvalidSegment)
		}
	default:
		return fmt.Errorf("%w: unknown segment %q", ErrInvalidSegment, c.Kind)
	}
	return nil
}

func (c SegmentCriteria) String() string {
	switch c.Kind {
	case SegmentInactive:
		return fmt.Sprintf("inactive(%d)", c.Days)
	case SegmentZodiac:
		return fmt.Sprintf("zodiac(%s)", c.Sign)
	default:
		return string(c.Kind)
	}
}

// DirectoryUser is one row of the read-only user directory.
type DirectoryUser struct {
	ID           int64      `db:"id"`
	ContactID    string     `db:"contact_id"`
	DisplayName  string     `db:"display_name"`
	IsPremium    bool       `db:"is_premium"`
	LastActiveAt *time.Time `db:"last_active_at"`
	ZodiacSign   string     `db:"zodiac_sign"`
}

// UserQuery is the directory-side filter a segment compiles to. Zero fields
// do not filter.
type UserQuery struct {
	PremiumOnly    bool
	InactiveBefore *time.Time
	ZodiacSign     string
}
