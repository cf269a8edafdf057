package live

import "time"

// Status classifies a live event relative to its recording window.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusActive     Status = "active"
	StatusFinished   Status = "finished"
)

// Classify is the authoritative window check. It is recomputed on every
// mutation request; client-side classification is advisory only.
//
// A live that is inside its time window but administratively disabled is
// reported as not started: its window never opened for recording.
func Classify(startsAt, endsAt time.Time, isActive bool, now time.Time) Status {
	switch {
	case now.After(endsAt):
		return StatusFinished
	case now.Before(startsAt):
		return StatusNotStarted
	case isActive:
		return StatusActive
	default:
		return StatusNotStarted
	}
}

// Window returns the classification of l at the given instant.
func (l Live) Window(now time.Time) Status {
	return Classify(l.StartsAt, l.EndsAt, l.IsActive, now)
}

// GraceDeadline is the instant after which a student who has not confirmed
// presence is warned client-side. It never drives a ledger mutation; the
// authoritative absent determination is the absence of a record.
func GraceDeadline(startsAt time.Time, grace time.Duration) time.Time {
	return startsAt.Add(grace)
}
