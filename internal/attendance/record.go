package attendance

import (
	"context"
	"time"
)

// ToleranceSec is subtracted from the live duration when judging full
// completion: a student is fully watched once watched_sec reaches
// duration*60 - ToleranceSec.
const ToleranceSec = 60

// HeartbeatIntervalSec is the client contract: one heartbeat per 15 seconds
// of accumulated watch time.
const HeartbeatIntervalSec = 15

// watchSlackSec pads the wall-clock bound on accumulation. A heartbeat may
// never push watched_sec past elapsed-since-join plus this slack.
const watchSlackSec = 30

// Record is the authoritative per-(student, live) attendance entry.
// Its existence alone means the student attended; watched_sec only refines
// how much of the session was seen.
type Record struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	LiveID          string    `json:"live_id"`
	JoinedAt        time.Time `json:"joined_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	WatchedSec      int64     `json:"watched_sec"`
	LastSeq         int64     `json:"-"`
	FullWatched     bool      `json:"full_watched"`
	CreatedAt       time.Time `json:"created_at"`
}

// StudentSummary is the slice of the student directory joined into
// attendance listings and reports.
type StudentSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	City       *string `json:"city,omitempty"`
	StudyStyle *string `json:"study_style,omitempty"`
}

// RecordWithStudent joins a record with its student. Online is derived at
// query time from heartbeat staleness; it is never stored.
type RecordWithStudent struct {
	Record
	Student StudentSummary `json:"student"`
	Online  bool           `json:"online"`
}

// Store is the persistence contract for the ledger.
//
// Create is an atomic insert-if-absent keyed on (student_id, live_id): on
// conflict it returns the existing record untouched. Accumulate is an atomic
// increment guarded by the sequence check and the wall-clock cap; it reports
// whether the delta was applied.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, bool, error)
	Get(ctx context.Context, studentID, liveID string) (Record, error)
	Accumulate(ctx context.Context, studentID, liveID string, delta, seq int64, now time.Time) (Record, bool, error)
	MarkFullWatched(ctx context.Context, studentID, liveID string) (Record, bool, error)
	Delete(ctx context.Context, studentID, liveID string) error
	ListForLive(ctx context.Context, liveID string) ([]RecordWithStudent, error)
	DeleteAllForLive(ctx context.Context, liveID string) error
	DeleteAllForStudent(ctx context.Context, studentID string) error
}
