package student

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a student does not exist.
var ErrNotFound = errors.New("student not found")

// Student is a directory record. The attendance core treats it as an
// immutable foreign reference during a session; ownership lives here.
type Student struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Sex              *string   `json:"sex,omitempty"`
	BirthDate        *string   `json:"birth_date,omitempty"`
	City             *string   `json:"city,omitempty"`
	FullAddress      *string   `json:"full_address,omitempty"`
	HowFoundUs       *string   `json:"how_found_us,omitempty"`
	StudyStyle       *string   `json:"study_style,omitempty"`
	AddressCompleted bool      `json:"address_completed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Normalize canonicalizes the natural-key and contact fields.
func (s *Student) Normalize() {
	s.Email = NormalizeEmail(s.Email)
	s.Phone = CanonicalPhone(s.Phone)
}

// NormalizeEmail lower-cases and trims an email. The normalized form is the
// natural key for login and upsert-based import.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanonicalPhone strips everything but digits.
func CanonicalPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Store is the student directory.
//
// Upsert is keyed on the normalized email. Delete cascades the student's
// attendance records in the same transaction.
type Store interface {
	Upsert(ctx context.Context, s Student) (Student, error)
	Get(ctx context.Context, id string) (Student, error)
	GetByEmail(ctx context.Context, email string) (Student, error)
	List(ctx context.Context) ([]Student, error)
	Delete(ctx context.Context, id string) error
}
