package validity

import (
	"testing"
	"time"
)

// Tests pin a zone so results don't depend on the host's clock settings.
var kolkata = time.FixedZone("IST", 5*3600+1800)

func TestCalculateValidity(t *testing.T) {
	p := NewPolicy(kolkata)

	tests := []struct {
		name        string
		generatedAt time.Time
		want        time.Time
	}{
		{
			name:        "before cutoff expires same day",
			generatedAt: time.Date(2024, 5, 1, 1, 30, 0, 0, kolkata),
			want:        time.Date(2024, 5, 1, 3, 0, 0, 0, kolkata),
		},
		{
			name:        "after cutoff expires next day",
			generatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, kolkata),
			want:        time.Date(2024, 5, 2, 3, 0, 0, 0, kolkata),
		},
		{
			name:        "exactly at cutoff expires next day",
			generatedAt: time.Date(2024, 5, 1, 3, 0, 0, 0, kolkata),
			want:        time.Date(2024, 5, 2, 3, 0, 0, 0, kolkata),
		},
		{
			name:        "one second before cutoff expires same day",
			generatedAt: time.Date(2024, 5, 1, 2, 59, 59, 0, kolkata),
			want:        time.Date(2024, 5, 1, 3, 0, 0, 0, kolkata),
		},
		{
			name:        "midnight expires same day",
			generatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, kolkata),
			want:        time.Date(2024, 5, 2, 3, 0, 0, 0, kolkata).AddDate(0, 0, -1),
		},
		{
			name:        "month boundary rolls over",
			generatedAt: time.Date(2024, 4, 30, 22, 15, 0, 0, kolkata),
			want:        time.Date(2024, 5, 1, 3, 0, 0, 0, kolkata),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.CalculateValidity(tt.generatedAt)
			if !got.Equal(tt.want) {
				t.Errorf("CalculateValidity(%v) = %v, want %v", tt.generatedAt, got, tt.want)
			}
		})
	}
}

func TestCalculateValidityNormalizesForeignZone(t *testing.T) {
	p := NewPolicy(kolkata)

	// 21:00 UTC on April 30 is 02:30 IST on May 1, so still before cutoff.
	generatedAt := time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC)
	want := time.Date(2024, 5, 1, 3, 0, 0, 0, kolkata)
	if got := p.CalculateValidity(generatedAt); !got.Equal(want) {
		t.Errorf("CalculateValidity(%v) = %v, want %v", generatedAt, got, want)
	}
}

func TestIsValidStrictBoundary(t *testing.T) {
	p := NewPolicy(kolkata)

	generatedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, kolkata)
	validityAt := p.CalculateValidity(generatedAt)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before expiry", validityAt.Add(-6 * time.Hour), true},
		{"one nanosecond before expiry", validityAt.Add(-time.Nanosecond), true},
		{"exactly at expiry", validityAt, false},
		{"after expiry", validityAt.Add(time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsValid(generatedAt, validityAt, tt.now); got != tt.want {
				t.Errorf("IsValid(now=%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestIsValidLegacyFallback(t *testing.T) {
	p := NewPolicy(kolkata)
	generatedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, kolkata)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"within 24 hours", generatedAt.Add(23 * time.Hour), true},
		{"exactly 24 hours", generatedAt.Add(24 * time.Hour), false},
		{"past 24 hours", generatedAt.Add(25 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsValid(generatedAt, time.Time{}, tt.now); got != tt.want {
				t.Errorf("IsValid(legacy, now=%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}

	t.Run("no timestamps at all", func(t *testing.T) {
		if p.IsValid(time.Time{}, time.Time{}, generatedAt) {
			t.Error("IsValid() = true for record without any timestamps")
		}
	})

	t.Run("validity_at wins over stale generated_at", func(t *testing.T) {
		// Both signals present and disagreeing: validity_at is authoritative.
		validityAt := generatedAt.Add(30 * time.Hour)
		now := generatedAt.Add(25 * time.Hour)
		if !p.IsValid(generatedAt, validityAt, now) {
			t.Error("IsValid() = false, want validity_at to take precedence over the legacy rule")
		}
	})
}

func TestStatusDetail(t *testing.T) {
	p := NewPolicy(kolkata)
	generatedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, kolkata)
	validityAt := p.CalculateValidity(generatedAt)

	t.Run("valid token reports remaining", func(t *testing.T) {
		now := validityAt.Add(-90 * time.Minute)
		d := p.StatusDetail(generatedAt, validityAt, now)
		if !d.Valid {
			t.Fatal("StatusDetail().Valid = false, want true")
		}
		if d.Remaining != 90*time.Minute {
			t.Errorf("Remaining = %v, want 90m", d.Remaining)
		}
		if d.ExpiredFor != 0 {
			t.Errorf("ExpiredFor = %v, want 0 for a valid token", d.ExpiredFor)
		}
		if !d.ExpiresAt.Equal(validityAt) {
			t.Errorf("ExpiresAt = %v, want %v", d.ExpiresAt, validityAt)
		}
	})

	t.Run("expired token reports elapsed", func(t *testing.T) {
		now := validityAt.Add(2 * time.Hour)
		d := p.StatusDetail(generatedAt, validityAt, now)
		if d.Valid {
			t.Fatal("StatusDetail().Valid = true, want false")
		}
		if d.ExpiredFor != 2*time.Hour {
			t.Errorf("ExpiredFor = %v, want 2h", d.ExpiredFor)
		}
		if d.Remaining != 0 {
			t.Errorf("Remaining = %v, want 0 for an expired token", d.Remaining)
		}
	})

	t.Run("legacy record derives expiry from generation", func(t *testing.T) {
		now := generatedAt.Add(20 * time.Hour)
		d := p.StatusDetail(generatedAt, time.Time{}, now)
		if !d.Valid {
			t.Fatal("StatusDetail().Valid = false, want true within the legacy window")
		}
		if d.Remaining != 4*time.Hour {
			t.Errorf("Remaining = %v, want 4h", d.Remaining)
		}
	})
}
