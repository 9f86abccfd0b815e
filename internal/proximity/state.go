package proximity

import (
	"time"
)

const (
	// MaxBackoff is the maximum interval between reads for a failing source.
	MaxBackoff = 5 * time.Minute

	// LostThreshold is the number of consecutive failures before the fix
	// is considered lost.
	LostThreshold = 3
)

// FixState tracks the position source between reads.
type FixState struct {
	Fix          Fix
	HasFix       bool
	Lost         bool
	LastReadTime time.Time
	ConsecFails  int
	BackoffUntil time.Time
	LastError    string
}

// ShouldRead returns true if the source is ready to be read again.
func (s *FixState) ShouldRead(now time.Time) bool {
	return !now.Before(s.BackoffUntil)
}

// RecordSuccess stores a fresh fix and clears any backoff.
// Returns true if the fix had been lost (a recovery).
func (s *FixState) RecordSuccess(fix Fix, now time.Time) bool {
	recovered := s.Lost
	s.Fix = fix
	s.HasFix = true
	s.Lost = false
	s.LastReadTime = now
	s.ConsecFails = 0
	s.BackoffUntil = time.Time{}
	s.LastError = ""
	return recovered
}

// RecordFailure records a failed read and calculates backoff:
// base * 2^(fails-1), capped at MaxBackoff.
func (s *FixState) RecordFailure(err error, baseInterval time.Duration, now time.Time) {
	s.ConsecFails++
	s.LastReadTime = now
	if err != nil {
		s.LastError = err.Error()
	}

	backoff := baseInterval
	for i := 1; i < s.ConsecFails && backoff < MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > MaxBackoff {
		backoff = MaxBackoff
	}
	s.BackoffUntil = now.Add(backoff)

	if s.ConsecFails >= LostThreshold {
		s.Lost = true
	}
}

// Current returns the last fix while it is still considered valid.
func (s *FixState) Current() (Fix, bool) {
	if !s.HasFix || s.Lost {
		return Fix{}, false
	}
	return s.Fix, true
}
