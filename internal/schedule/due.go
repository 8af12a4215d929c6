package schedule

import (
	"time"

	"restock_bot/internal/model"
)

// Selector applies the due rule to watches using a shared phase function.
type Selector struct {
	phase *Phase
}

// NewSelector creates a Selector with the given phase function.
func NewSelector(phase *Phase) *Selector {
	return &Selector{phase: phase}
}

// Interval returns the effective check interval for a watch: its configured
// interval plus the watch's phase offset.
func (s *Selector) Interval(w model.Watch) time.Duration {
	return time.Duration(w.CheckIntervalMinutes)*time.Minute + s.phase.Offset(w.ID)
}

// IsDue reports whether the watch should be checked at now.
//
// Terminal watches are never due. A watch past its expiry is never due;
// the monitor loop transitions it instead. A watch that has never been
// checked is immediately due. The check is pure: calling it repeatedly
// without mutating LastCheckedAt yields the same answer.
func (s *Selector) IsDue(w model.Watch, now time.Time) bool {
	if w.Status != model.StatusMonitoring {
		return false
	}
	if w.Expired(now) {
		return false
	}
	if w.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*w.LastCheckedAt) >= s.Interval(w)
}

// NextDue returns when the watch becomes due again after a check at
// lastChecked. The stored NextDueAt column caches this value; it is always
// recomputable from LastCheckedAt, the interval, and the phase offset.
func (s *Selector) NextDue(w model.Watch, lastChecked time.Time) time.Time {
	return lastChecked.Add(s.Interval(w))
}
