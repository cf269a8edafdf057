package live

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"liveclass/internal/store"
)

// CascadeFunc removes the dependent ledger records for an event inside the
// caller's transaction, so a delete can never leave orphans behind.
type CascadeFunc func(ctx context.Context, q store.Execer, liveID string) error

// Repository persists live events in Postgres.
type Repository struct {
	db      *sql.DB
	cascade CascadeFunc
}

// NewRepository creates a repo. cascade runs before the event row is removed.
func NewRepository(db *sql.DB, cascade CascadeFunc) *Repository {
	return &Repository{db: db, cascade: cascade}
}

const liveColumns = `id, title, slug, video_id, starts_at, ends_at, duration_min, is_active, created_at, updated_at`

func scanLive(row interface{ Scan(...any) error }) (Live, error) {
	var l Live
	err := row.Scan(&l.ID, &l.Title, &l.Slug, &l.VideoID, &l.StartsAt, &l.EndsAt, &l.DurationMin, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// Create inserts a live event, deriving ends_at from the duration.
func (r *Repository) Create(ctx context.Context, l Live) (Live, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Normalize()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO live_events (id, title, slug, video_id, starts_at, ends_at, duration_min, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at
	`, l.ID, l.Title, l.Slug, l.VideoID, l.StartsAt, l.EndsAt, l.DurationMin, l.IsActive)
	if err := row.Scan(&l.CreatedAt, &l.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Live{}, ErrSlugTaken
		}
		return Live{}, err
	}
	return l, nil
}

// Update rewrites the editable fields, re-deriving ends_at.
func (r *Repository) Update(ctx context.Context, l Live) (Live, error) {
	l.Normalize()
	row := r.db.QueryRowContext(ctx, `
		UPDATE live_events
		SET title = $2, slug = $3, video_id = $4, starts_at = $5, ends_at = $6,
		    duration_min = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+liveColumns+`
	`, l.ID, l.Title, l.Slug, l.VideoID, l.StartsAt, l.EndsAt, l.DurationMin, l.IsActive)
	updated, err := scanLive(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Live{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return Live{}, ErrSlugTaken
		}
		return Live{}, err
	}
	return updated, nil
}

// Delete removes a live event and all of its attendance records in one
// transaction.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.cascade(ctx, tx, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM live_events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Get returns a live event by id.
func (r *Repository) Get(ctx context.Context, id string) (Live, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+liveColumns+` FROM live_events WHERE id = $1`, id)
	l, err := scanLive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Live{}, ErrNotFound
	}
	return l, err
}

// GetBySlug returns a live event by its URL slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (Live, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+liveColumns+` FROM live_events WHERE slug = $1`, slug)
	l, err := scanLive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Live{}, ErrNotFound
	}
	return l, err
}

// List returns all live events, newest first, with attendance counts.
func (r *Repository) List(ctx context.Context) ([]WithCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.title, l.slug, l.video_id, l.starts_at, l.ends_at, l.duration_min,
		       l.is_active, l.created_at, l.updated_at, COUNT(a.id)
		FROM live_events l
		LEFT JOIN attendance_records a ON a.live_id = l.id
		GROUP BY l.id
		ORDER BY l.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []WithCount
	for rows.Next() {
		var lc WithCount
		if err := rows.Scan(&lc.ID, &lc.Title, &lc.Slug, &lc.VideoID, &lc.StartsAt, &lc.EndsAt,
			&lc.DurationMin, &lc.IsActive, &lc.CreatedAt, &lc.UpdatedAt, &lc.AttendanceCount); err != nil {
			return nil, err
		}
		res = append(res, lc)
	}
	return res, rows.Err()
}

// ActivePastEnd returns lives still flagged active whose window has closed.
func (r *Repository) ActivePastEnd(ctx context.Context, now time.Time) ([]Live, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+liveColumns+` FROM live_events
		WHERE is_active = TRUE AND ends_at < $1
		ORDER BY ends_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Live
	for rows.Next() {
		l, err := scanLive(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// Deactivate clears the administrative active flag.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE live_events SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// isUniqueViolation matches Postgres unique constraint errors (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
