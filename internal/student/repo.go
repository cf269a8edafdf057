package student

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"liveclass/internal/store"
)

// CascadeFunc removes a student's ledger records inside the caller's
// transaction before the student row goes away.
type CascadeFunc func(ctx context.Context, q store.Execer, studentID string) error

// Repository persists students in Postgres.
type Repository struct {
	db      *sql.DB
	cascade CascadeFunc
}

// NewRepository creates a repo. cascade runs before the student row is removed.
func NewRepository(db *sql.DB, cascade CascadeFunc) *Repository {
	return &Repository{db: db, cascade: cascade}
}

const studentColumns = `id, name, email, phone, sex, birth_date, city, full_address, how_found_us, study_style, address_completed, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Sex, &s.BirthDate, &s.City,
		&s.FullAddress, &s.HowFoundUs, &s.StudyStyle, &s.AddressCompleted, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Upsert creates or updates a student keyed on the normalized email.
// address_completed is set-once: a true value is never cleared.
func (r *Repository) Upsert(ctx context.Context, s Student) (Student, error) {
	s.Normalize()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, name, email, phone, sex, birth_date, city, full_address, how_found_us, study_style, address_completed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			sex = COALESCE(EXCLUDED.sex, students.sex),
			birth_date = COALESCE(EXCLUDED.birth_date, students.birth_date),
			city = COALESCE(EXCLUDED.city, students.city),
			full_address = COALESCE(EXCLUDED.full_address, students.full_address),
			how_found_us = COALESCE(EXCLUDED.how_found_us, students.how_found_us),
			study_style = COALESCE(EXCLUDED.study_style, students.study_style),
			address_completed = students.address_completed OR EXCLUDED.address_completed,
			updated_at = NOW()
		RETURNING `+studentColumns+`
	`, s.ID, s.Name, s.Email, s.Phone, s.Sex, s.BirthDate, s.City, s.FullAddress, s.HowFoundUs, s.StudyStyle, s.AddressCompleted)
	return scanStudent(row)
}

// Get returns a student by id.
func (r *Repository) Get(ctx context.Context, id string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	return s, err
}

// GetByEmail looks a student up by normalized email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE email = $1`, NormalizeEmail(email))
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	return s, err
}

// List returns all students ordered by name.
func (r *Repository) List(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Delete removes a student and all of their attendance records in one
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
	res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
