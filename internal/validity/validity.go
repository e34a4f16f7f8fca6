// Package validity implements the exchange-day expiry rule for access
// tokens: every token lapses at the 03:00 session boundary, not after a
// rolling duration.
package validity

import (
	"time"
)

// CutoffHour is the daily session boundary. Tokens generated before it
// expire the same day at the boundary, tokens generated at or after it
// expire the next day.
const CutoffHour = 3

// legacyWindow bounds tokens that predate validity stamping.
const legacyWindow = 24 * time.Hour

// Policy computes expiry timestamps in a fixed timezone.
// The zero value uses the process-local timezone.
type Policy struct {
	loc *time.Location
}

// NewPolicy creates a Policy for the given location. A nil location means
// time.Local, matching the exchange host's clock.
func NewPolicy(loc *time.Location) Policy {
	return Policy{loc: loc}
}

func (p Policy) location() *time.Location {
	if p.loc == nil {
		return time.Local
	}
	return p.loc
}

// CalculateValidity maps a generation timestamp to its expiry timestamp:
// 03:00 on the same calendar date if generated before 03:00, otherwise
// 03:00 on the next calendar date.
func (p Policy) CalculateValidity(generatedAt time.Time) time.Time {
	local := generatedAt.In(p.location())
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), CutoffHour, 0, 0, 0, p.location())

	if local.Before(cutoff) {
		return cutoff
	}
	return cutoff.AddDate(0, 0, 1)
}

// IsValid reports whether a token generated at generatedAt with expiry
// validityAt is still usable at now. The predicate is strict: a token is
// expired at exactly validityAt. Records without a validity timestamp
// (zero validityAt) fall back to the legacy rule of 24 hours from
// generation; validityAt always wins when present.
func (p Policy) IsValid(generatedAt, validityAt, now time.Time) bool {
	if !validityAt.IsZero() {
		return now.Before(validityAt)
	}
	if !generatedAt.IsZero() {
		return now.Sub(generatedAt) < legacyWindow
	}
	return false
}

// Detail describes where a token sits relative to its expiry.
type Detail struct {
	Valid     bool
	ExpiresAt time.Time

	// Remaining is set for valid tokens, ExpiredFor for lapsed ones.
	Remaining  time.Duration
	ExpiredFor time.Duration
}

// StatusDetail returns the remaining duration for a valid token or the
// elapsed duration since expiry for a lapsed one. For legacy records the
// expiry is derived as generatedAt plus the 24 hour window.
func (p Policy) StatusDetail(generatedAt, validityAt, now time.Time) Detail {
	expiresAt := validityAt
	if expiresAt.IsZero() && !generatedAt.IsZero() {
		expiresAt = generatedAt.Add(legacyWindow)
	}

	d := Detail{
		Valid:     p.IsValid(generatedAt, validityAt, now),
		ExpiresAt: expiresAt,
	}
	if d.Valid {
		d.Remaining = expiresAt.Sub(now)
	} else if !expiresAt.IsZero() {
		d.ExpiredFor = now.Sub(expiresAt)
	}
	return d
}
