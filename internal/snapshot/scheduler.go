// Package snapshot decides when an entity's score history should be
// recorded. Recording frequency decays as the entity ages: young tokens
// move fast and are sampled every five minutes, day-old tokens hourly.
package snapshot

import "time"

const (
	youngAge = 2 * time.Hour
	adultAge = 24 * time.Hour

	youngInterval = 5 * time.Minute
	adultInterval = 15 * time.Minute
	matureInterval = time.Hour
)

// Interval returns the snapshot interval for an entity of the given age.
func Interval(age time.Duration) time.Duration {
	switch {
	case age <= youngAge:
		return youngInterval
	case age <= adultAge:
		return adultInterval
	default:
		return matureInterval
	}
}

// ShouldSnapshot reports whether now is a valid time to record a score
// history point. Pure: the last-snapshot timestamp is owned by the
// caller. A zero last means no prior snapshot exists.
func ShouldSnapshot(age time.Duration, last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= Interval(age)
}
