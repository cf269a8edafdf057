package attendance

import (
	"context"
	"errors"
	"time"

	"liveclass/internal/live"
	"liveclass/internal/student"
)

// LiveGetter resolves live events for window checks.
type LiveGetter interface {
	Get(ctx context.Context, id string) (live.Live, error)
}

// StudentGetter resolves students for existence checks.
type StudentGetter interface {
	Get(ctx context.Context, id string) (student.Student, error)
}

// Ledger owns every mutation rule of the attendance core. Caller identity is
// established upstream (auth middleware); the ledger trusts the ids it is
// handed and re-derives everything else server-side.
type Ledger struct {
	store    Store
	lives    LiveGetter
	students StudentGetter
	now      func() time.Time
}

// NewLedger creates the ledger service.
func NewLedger(store Store, lives LiveGetter, students StudentGetter) *Ledger {
	return &Ledger{store: store, lives: lives, students: students, now: time.Now}
}

// WithClock overrides the ledger clock.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// ConfirmPresence creates the record for (studentID, liveID) if the live's
// window is Active. Confirming again is idempotent: the existing record comes
// back with joined_at and watched_sec untouched.
func (l *Ledger) ConfirmPresence(ctx context.Context, studentID, liveID string) (Record, error) {
	if _, err := l.students.Get(ctx, studentID); err != nil {
		return Record{}, err
	}
	lv, err := l.lives.Get(ctx, liveID)
	if err != nil {
		return Record{}, err
	}
	now := l.now().UTC()
	if lv.Window(now) != live.StatusActive {
		return Record{}, ErrWindowClosed
	}
	rec, created, err := l.store.Create(ctx, Record{
		StudentID:       studentID,
		LiveID:          liveID,
		JoinedAt:        now,
		LastHeartbeatAt: now,
	})
	if err != nil {
		return Record{}, err
	}
	if created {
		presenceConfirmed.Inc()
	}
	return rec, nil
}

// RecordHeartbeat adds deltaSeconds of watch credit and refreshes the
// liveness timestamp. Heartbeats against an existing record are accepted
// even after the window closes (a final heartbeat may arrive late); only the
// implicit create path requires an Active window. A non-zero seq at or below
// the last applied one is ignored, which makes retried deliveries harmless.
func (l *Ledger) RecordHeartbeat(ctx context.Context, studentID, liveID string, deltaSeconds, seq int64) (Record, error) {
	if deltaSeconds < 0 {
		heartbeatsRejected.WithLabelValues("invalid_delta").Inc()
		return Record{}, ErrInvalidDelta
	}
	now := l.now().UTC()
	rec, applied, err := l.store.Accumulate(ctx, studentID, liveID, deltaSeconds, seq, now)
	if err == nil {
		if applied {
			heartbeatsAccepted.Inc()
		} else {
			heartbeatsIgnored.Inc()
		}
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}

	// No record yet: treat as an implicit presence confirmation, which is
	// only valid while the window is open.
	lv, lerr := l.lives.Get(ctx, liveID)
	if lerr != nil {
		return Record{}, lerr
	}
	if lv.Window(now) != live.StatusActive {
		heartbeatsRejected.WithLabelValues("window_closed").Inc()
		return Record{}, ErrWindowClosed
	}
	if _, _, err := l.store.Create(ctx, Record{
		StudentID:       studentID,
		LiveID:          liveID,
		JoinedAt:        now,
		LastHeartbeatAt: now,
	}); err != nil {
		return Record{}, err
	}
	rec, applied, err = l.store.Accumulate(ctx, studentID, liveID, deltaSeconds, seq, now)
	if err != nil {
		return Record{}, err
	}
	if applied {
		heartbeatsAccepted.Inc()
	}
	return rec, nil
}

// MarkFullyWatched flips the one-way completion flag. Repeat calls succeed
// without effect.
func (l *Ledger) MarkFullyWatched(ctx context.Context, studentID, liveID string) (Record, error) {
	rec, changed, err := l.store.MarkFullWatched(ctx, studentID, liveID)
	if err != nil {
		return Record{}, err
	}
	if changed {
		fullyWatched.Inc()
	}
	return rec, nil
}

// SetPresence is the administrative override. It has no window precondition:
// admins correct attendance retroactively. present=true creates a
// zero-second record if none exists; present=false deletes unconditionally.
func (l *Ledger) SetPresence(ctx context.Context, studentID, liveID string, present bool) error {
	if _, err := l.students.Get(ctx, studentID); err != nil {
		return err
	}
	if _, err := l.lives.Get(ctx, liveID); err != nil {
		return err
	}
	if present {
		now := l.now().UTC()
		_, _, err := l.store.Create(ctx, Record{
			StudentID:       studentID,
			LiveID:          liveID,
			JoinedAt:        now,
			LastHeartbeatAt: now,
		})
		if err != nil {
			return err
		}
		adminOverrides.WithLabelValues("present").Inc()
		return nil
	}
	if err := l.store.Delete(ctx, studentID, liveID); err != nil {
		return err
	}
	adminOverrides.WithLabelValues("absent").Inc()
	return nil
}

// FullWatchThreshold is the effective completion bound for a live duration.
func FullWatchThreshold(durationMin int) int64 {
	return int64(durationMin)*60 - ToleranceSec
}
