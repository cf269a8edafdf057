package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"liveclass/internal/store"
)

// Repository persists the ledger in Postgres.
//
// Every mutation is a single statement so concurrent confirms and heartbeats
// for the same record compose without a read-modify-write cycle.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, student_id, live_id, joined_at, last_heartbeat_at, watched_sec, last_seq, full_watched, created_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.LiveID, &rec.JoinedAt, &rec.LastHeartbeatAt,
		&rec.WatchedSec, &rec.LastSeq, &rec.FullWatched, &rec.CreatedAt)
	return rec, err
}

// Create inserts a record if none exists for the pair. On conflict the
// existing record is returned unchanged, so two racing confirms can never
// produce two rows or reset joined_at.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, live_id, joined_at, last_heartbeat_at, watched_sec, last_seq, full_watched)
		VALUES ($1,$2,$3,$4,$5,$6,0,FALSE)
		ON CONFLICT (student_id, live_id) DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.LiveID, rec.JoinedAt, rec.LastHeartbeatAt, rec.WatchedSec)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, gerr := r.Get(ctx, rec.StudentID, rec.LiveID)
			if gerr != nil {
				return Record{}, false, gerr
			}
			return existing, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// Get returns the record for a (student, live) pair.
func (r *Repository) Get(ctx context.Context, studentID, liveID string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE student_id = $1 AND live_id = $2
	`, studentID, liveID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Accumulate adds delta to watched_sec and touches last_heartbeat_at in one
// atomic statement. The counter is clamped to wall-clock elapsed since
// joined_at plus slack and can never decrease. A non-zero seq at or below
// the last applied one leaves the record untouched (applied=false).
func (r *Repository) Accumulate(ctx context.Context, studentID, liveID string, delta, seq int64, now time.Time) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET watched_sec = GREATEST(watched_sec, LEAST(watched_sec + $3,
			GREATEST(watched_sec, CAST(EXTRACT(EPOCH FROM ($5::timestamptz - joined_at)) AS BIGINT) + $6))),
		    last_heartbeat_at = GREATEST(last_heartbeat_at, $5),
		    last_seq = GREATEST(last_seq, $4)
		WHERE student_id = $1 AND live_id = $2 AND ($4 = 0 OR $4 > last_seq)
		RETURNING `+recordColumns+`
	`, studentID, liveID, delta, seq, now, int64(watchSlackSec))
	rec, err := scanRecord(row)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, err
	}
	// Either the record is missing or the sequence guard fired.
	existing, gerr := r.Get(ctx, studentID, liveID)
	if gerr != nil {
		return Record{}, false, gerr
	}
	return existing, false, nil
}

// MarkFullWatched flips the one-way completion flag. Calling it again is a
// no-op returning the current record (changed=false).
func (r *Repository) MarkFullWatched(ctx context.Context, studentID, liveID string) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET full_watched = TRUE
		WHERE student_id = $1 AND live_id = $2 AND full_watched = FALSE
		RETURNING `+recordColumns+`
	`, studentID, liveID)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, err
	}
	existing, gerr := r.Get(ctx, studentID, liveID)
	if gerr != nil {
		return Record{}, false, gerr
	}
	return existing, false, nil
}

// Delete removes the record for a pair; absence is not an error.
func (r *Repository) Delete(ctx context.Context, studentID, liveID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM attendance_records WHERE student_id = $1 AND live_id = $2
	`, studentID, liveID)
	return err
}

// ListForLive returns the records for a live joined with student summaries,
// most recent join first.
func (r *Repository) ListForLive(ctx context.Context, liveID string) ([]RecordWithStudent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.live_id, a.joined_at, a.last_heartbeat_at, a.watched_sec,
		       a.last_seq, a.full_watched, a.created_at,
		       s.id, s.name, s.email, s.phone, s.city, s.study_style
		FROM attendance_records a
		JOIN students s ON s.id = a.student_id
		WHERE a.live_id = $1
		ORDER BY a.joined_at DESC
	`, liveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RecordWithStudent
	for rows.Next() {
		var rw RecordWithStudent
		if err := rows.Scan(&rw.ID, &rw.StudentID, &rw.LiveID, &rw.JoinedAt, &rw.LastHeartbeatAt,
			&rw.WatchedSec, &rw.LastSeq, &rw.FullWatched, &rw.CreatedAt,
			&rw.Student.ID, &rw.Student.Name, &rw.Student.Email, &rw.Student.Phone,
			&rw.Student.City, &rw.Student.StudyStyle); err != nil {
			return nil, err
		}
		res = append(res, rw)
	}
	return res, rows.Err()
}

// CascadeForLive removes every record for a live event. It runs against q so
// the catalog's delete can invoke it inside its own transaction.
func CascadeForLive(ctx context.Context, q store.Execer, liveID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM attendance_records WHERE live_id = $1`, liveID)
	return err
}

// CascadeForStudent removes every record for a student.
func CascadeForStudent(ctx context.Context, q store.Execer, studentID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM attendance_records WHERE student_id = $1`, studentID)
	return err
}

// DeleteAllForLive removes every record for a live event.
func (r *Repository) DeleteAllForLive(ctx context.Context, liveID string) error {
	return CascadeForLive(ctx, r.db, liveID)
}

// DeleteAllForStudent removes every record for a student.
func (r *Repository) DeleteAllForStudent(ctx context.Context, studentID string) error {
	return CascadeForStudent(ctx, r.db, studentID)
}
