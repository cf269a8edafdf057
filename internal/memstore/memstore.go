// Package memstore is a mutex-guarded in-memory backend for the live,
// student and attendance stores. It backs STORE_BACKEND=memory for local
// development and serves as the test double for the ledger.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass/internal/attendance"
	"liveclass/internal/live"
	"liveclass/internal/student"
)

const watchSlackSec = 30

// Store holds all state behind one lock. The three stores it exposes are
// views over the same maps, so cascade deletes stay consistent.
type Store struct {
	mu       sync.Mutex
	lives    map[string]live.Live
	students map[string]student.Student
	records  map[string]attendance.Record // keyed studentID + "|" + liveID
}

// New creates an empty store.
func New() *Store {
	return &Store{
		lives:    map[string]live.Live{},
		students: map[string]student.Student{},
		records:  map[string]attendance.Record{},
	}
}

// Lives returns the live.Store view.
func (s *Store) Lives() *Lives { return &Lives{s} }

// Students returns the student.Store view.
func (s *Store) Students() *Students { return &Students{s} }

// Records returns the attendance.Store view.
func (s *Store) Records() *Records { return &Records{s} }

func key(studentID, liveID string) string { return studentID + "|" + liveID }

// Cascade helpers; the caller holds the lock.
func (s *Store) cascadeForLive(liveID string) {
	for k, rec := range s.records {
		if rec.LiveID == liveID {
			delete(s.records, k)
		}
	}
}

func (s *Store) cascadeForStudent(studentID string) {
	for k, rec := range s.records {
		if rec.StudentID == studentID {
			delete(s.records, k)
		}
	}
}

// Lives implements live.Store.
type Lives struct{ s *Store }

func (v *Lives) Create(ctx context.Context, l live.Live) (live.Live, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, existing := range v.s.lives {
		if existing.Slug == l.Slug {
			return live.Live{}, live.ErrSlugTaken
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Normalize()
	l.CreatedAt = time.Now().UTC()
	l.UpdatedAt = l.CreatedAt
	v.s.lives[l.ID] = l
	return l, nil
}

func (v *Lives) Update(ctx context.Context, l live.Live) (live.Live, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	existing, ok := v.s.lives[l.ID]
	if !ok {
		return live.Live{}, live.ErrNotFound
	}
	for id, other := range v.s.lives {
		if id != l.ID && other.Slug == l.Slug {
			return live.Live{}, live.ErrSlugTaken
		}
	}
	l.Normalize()
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	v.s.lives[l.ID] = l
	return l, nil
}

func (v *Lives) Delete(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.lives[id]; !ok {
		return live.ErrNotFound
	}
	v.s.cascadeForLive(id)
	delete(v.s.lives, id)
	return nil
}

func (v *Lives) Get(ctx context.Context, id string) (live.Live, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	l, ok := v.s.lives[id]
	if !ok {
		return live.Live{}, live.ErrNotFound
	}
	return l, nil
}

func (v *Lives) GetBySlug(ctx context.Context, slug string) (live.Live, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, l := range v.s.lives {
		if l.Slug == slug {
			return l, nil
		}
	}
	return live.Live{}, live.ErrNotFound
}

func (v *Lives) List(ctx context.Context) ([]live.WithCount, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	counts := map[string]int{}
	for _, rec := range v.s.records {
		counts[rec.LiveID]++
	}
	var res []live.WithCount
	for _, l := range v.s.lives {
		res = append(res, live.WithCount{Live: l, AttendanceCount: counts[l.ID]})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (v *Lives) ActivePastEnd(ctx context.Context, now time.Time) ([]live.Live, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var res []live.Live
	for _, l := range v.s.lives {
		if l.IsActive && l.EndsAt.Before(now) {
			res = append(res, l)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].EndsAt.Before(res[j].EndsAt) })
	return res, nil
}

func (v *Lives) Deactivate(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	l, ok := v.s.lives[id]
	if !ok {
		return nil
	}
	l.IsActive = false
	l.UpdatedAt = time.Now().UTC()
	v.s.lives[id] = l
	return nil
}

// Students implements student.Store.
type Students struct{ s *Store }

func (v *Students) Upsert(ctx context.Context, st student.Student) (student.Student, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	st.Normalize()
	for id, existing := range v.s.students {
		if existing.Email == st.Email {
			st.ID = id
			st.CreatedAt = existing.CreatedAt
			st.AddressCompleted = existing.AddressCompleted || st.AddressCompleted
			if st.Sex == nil {
				st.Sex = existing.Sex
			}
			if st.BirthDate == nil {
				st.BirthDate = existing.BirthDate
			}
			if st.City == nil {
				st.City = existing.City
			}
			if st.FullAddress == nil {
				st.FullAddress = existing.FullAddress
			}
			if st.HowFoundUs == nil {
				st.HowFoundUs = existing.HowFoundUs
			}
			if st.StudyStyle == nil {
				st.StudyStyle = existing.StudyStyle
			}
			st.UpdatedAt = time.Now().UTC()
			v.s.students[id] = st
			return st, nil
		}
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.CreatedAt = time.Now().UTC()
	st.UpdatedAt = st.CreatedAt
	v.s.students[st.ID] = st
	return st, nil
}

func (v *Students) Get(ctx context.Context, id string) (student.Student, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	st, ok := v.s.students[id]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	return st, nil
}

func (v *Students) GetByEmail(ctx context.Context, email string) (student.Student, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	email = student.NormalizeEmail(email)
	for _, st := range v.s.students {
		if st.Email == email {
			return st, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (v *Students) List(ctx context.Context) ([]student.Student, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var res []student.Student
	for _, st := range v.s.students {
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].Email < res[j].Email
	})
	return res, nil
}

func (v *Students) Delete(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.students[id]; !ok {
		return student.ErrNotFound
	}
	v.s.cascadeForStudent(id)
	delete(v.s.students, id)
	return nil
}

// Records implements attendance.Store.
type Records struct{ s *Store }

func (v *Records) Create(ctx context.Context, rec attendance.Record) (attendance.Record, bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := key(rec.StudentID, rec.LiveID)
	if existing, ok := v.s.records[k]; ok {
		return existing, false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	v.s.records[k] = rec
	return rec, true, nil
}

func (v *Records) Get(ctx context.Context, studentID, liveID string) (attendance.Record, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	rec, ok := v.s.records[key(studentID, liveID)]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, nil
}

func (v *Records) Accumulate(ctx context.Context, studentID, liveID string, delta, seq int64, now time.Time) (attendance.Record, bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := key(studentID, liveID)
	rec, ok := v.s.records[k]
	if !ok {
		return attendance.Record{}, false, attendance.ErrNotFound
	}
	if seq != 0 && seq <= rec.LastSeq {
		return rec, false, nil
	}
	limit := int64(now.Sub(rec.JoinedAt).Seconds()) + watchSlackSec
	if limit < rec.WatchedSec {
		limit = rec.WatchedSec
	}
	next := rec.WatchedSec + delta
	if next > limit {
		next = limit
	}
	if next > rec.WatchedSec {
		rec.WatchedSec = next
	}
	if now.After(rec.LastHeartbeatAt) {
		rec.LastHeartbeatAt = now
	}
	if seq > rec.LastSeq {
		rec.LastSeq = seq
	}
	v.s.records[k] = rec
	return rec, true, nil
}

func (v *Records) MarkFullWatched(ctx context.Context, studentID, liveID string) (attendance.Record, bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := key(studentID, liveID)
	rec, ok := v.s.records[k]
	if !ok {
		return attendance.Record{}, false, attendance.ErrNotFound
	}
	if rec.FullWatched {
		return rec, false, nil
	}
	rec.FullWatched = true
	v.s.records[k] = rec
	return rec, true, nil
}

func (v *Records) Delete(ctx context.Context, studentID, liveID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	delete(v.s.records, key(studentID, liveID))
	return nil
}

func (v *Records) ListForLive(ctx context.Context, liveID string) ([]attendance.RecordWithStudent, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var res []attendance.RecordWithStudent
	for _, rec := range v.s.records {
		if rec.LiveID != liveID {
			continue
		}
		st := v.s.students[rec.StudentID]
		res = append(res, attendance.RecordWithStudent{
			Record: rec,
			Student: attendance.StudentSummary{
				ID: st.ID, Name: st.Name, Email: st.Email, Phone: st.Phone,
				City: st.City, StudyStyle: st.StudyStyle,
			},
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].JoinedAt.After(res[j].JoinedAt) })
	return res, nil
}

func (v *Records) DeleteAllForLive(ctx context.Context, liveID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.cascadeForLive(liveID)
	return nil
}

func (v *Records) DeleteAllForStudent(ctx context.Context, studentID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.cascadeForStudent(studentID)
	return nil
}
