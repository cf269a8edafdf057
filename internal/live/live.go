package live

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a live event does not exist.
var ErrNotFound = errors.New("live event not found")

// ErrSlugTaken is returned when creating or renaming a live to a slug
// already used by another event.
var ErrSlugTaken = errors.New("slug already in use")

// Live is a scheduled, time-bounded broadcast session.
//
// DurationMin is the single source of truth for the window length;
// EndsAt is always derived from StartsAt + DurationMin and never set
// independently.
type Live struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	VideoID     string    `json:"video_id"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	DurationMin int       `json:"duration_min"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WithCount pairs a live with its attendance record count for admin listings.
type WithCount struct {
	Live
	AttendanceCount int `json:"attendance_count"`
}

// Normalize derives EndsAt from StartsAt and DurationMin.
func (l *Live) Normalize() {
	l.EndsAt = l.StartsAt.Add(time.Duration(l.DurationMin) * time.Minute)
}

// Store is the live-event catalog.
//
// Delete cascades: every attendance record for the event is removed in the
// same transaction, so no orphaned ledger entries can exist.
type Store interface {
	Create(ctx context.Context, l Live) (Live, error)
	Update(ctx context.Context, l Live) (Live, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Live, error)
	GetBySlug(ctx context.Context, slug string) (Live, error)
	List(ctx context.Context) ([]WithCount, error)
	// ActivePastEnd returns lives still flagged active whose window has
	// closed; Deactivate flips the flag. Both serve the finalization sweep.
	ActivePastEnd(ctx context.Context, now time.Time) ([]Live, error)
	Deactivate(ctx context.Context, id string) error
}
