package attendance

import (
	"context"
	"math"
	"time"

	"liveclass/internal/live"
	"liveclass/internal/student"
)

// Study-style values as entered by the school; anything else lands in the
// undefined bucket.
const (
	StylePresencial = "Presencial"
	StyleOnline     = "Online"
	StyleHibrido    = "Híbrido"
)

// Summary is the present/absent view of a single live event.
type Summary struct {
	LiveID         string              `json:"live_id"`
	TotalStudents  int                 `json:"total_students"`
	Present        []RecordWithStudent `json:"present"`
	Absent         []StudentSummary    `json:"absent"`
	PresentCount   int                 `json:"present_count"`
	AbsentCount    int                 `json:"absent_count"`
	AttendanceRate int                 `json:"attendance_rate"`
	CompletionRate int                 `json:"completion_rate"`
	OnlineCount    int                 `json:"online_count"`
}

// StyleBucket partitions present/absent students of one study style.
type StyleBucket struct {
	Present      []StudentSummary `json:"present"`
	Absent       []StudentSummary `json:"absent"`
	PresentCount int              `json:"present_count"`
	AbsentCount  int              `json:"absent_count"`
}

// ByStyle is the fixed bucket set of the detailed report.
type ByStyle struct {
	Presencial StyleBucket `json:"presencial"`
	Online     StyleBucket `json:"online"`
	Hibrido    StyleBucket `json:"hibrido"`
	Indefinido StyleBucket `json:"indefinido"`
}

// LiveReport is one live's categorized breakdown.
type LiveReport struct {
	Live struct {
		ID             string    `json:"id"`
		Title          string    `json:"title"`
		StartsAt       time.Time `json:"starts_at"`
		TotalAttendees int       `json:"total_attendees"`
	} `json:"live"`
	Attendance ByStyle `json:"attendance"`
	Summary    struct {
		TotalPresent   int     `json:"total_present"`
		TotalAbsent    int     `json:"total_absent"`
		TotalStudents  int     `json:"total_students"`
		AttendanceRate float64 `json:"attendance_rate"`
	} `json:"summary"`
}

// DetailedReport aggregates one or all lives.
type DetailedReport struct {
	Report      []LiveReport `json:"report"`
	GeneratedAt time.Time    `json:"generated_at"`
	TotalLives  int          `json:"total_lives"`
}

// Reports derives read-only aggregates from the ledger and the student
// directory. Nothing here mutates state, and "online" is computed from
// heartbeat staleness at query time.
type Reports struct {
	store        Store
	students     student.Store
	lives        live.Store
	onlineWindow time.Duration
	now          func() time.Time
}

// NewReports creates the aggregation service.
func NewReports(store Store, students student.Store, lives live.Store, onlineWindow time.Duration) *Reports {
	if onlineWindow <= 0 {
		onlineWindow = 5 * time.Minute
	}
	return &Reports{store: store, students: students, lives: lives, onlineWindow: onlineWindow, now: time.Now}
}

// WithClock overrides the report clock.
func (r *Reports) WithClock(now func() time.Time) *Reports {
	r.now = now
	return r
}

// ListForLive returns the live's records joined with students, flagging
// which are currently online.
func (r *Reports) ListForLive(ctx context.Context, liveID string) ([]RecordWithStudent, error) {
	if _, err := r.lives.Get(ctx, liveID); err != nil {
		return nil, err
	}
	recs, err := r.store.ListForLive(ctx, liveID)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	for i := range recs {
		recs[i].Online = now.Sub(recs[i].LastHeartbeatAt) < r.onlineWindow
	}
	return recs, nil
}

// Summary computes present/absent sets and the headline rates for a live.
// AttendanceRate is a whole percent of all students, 0 when the directory is
// empty; CompletionRate is the fully-watched share of the present set, 0
// when nobody attended.
func (r *Reports) Summary(ctx context.Context, liveID string) (Summary, error) {
	present, err := r.ListForLive(ctx, liveID)
	if err != nil {
		return Summary{}, err
	}
	all, err := r.students.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	attended := make(map[string]bool, len(present))
	sum := Summary{LiveID: liveID, TotalStudents: len(all), Present: present, PresentCount: len(present)}
	fullCount := 0
	for _, rec := range present {
		attended[rec.StudentID] = true
		if rec.FullWatched {
			fullCount++
		}
		if rec.Online {
			sum.OnlineCount++
		}
	}
	for _, s := range all {
		if !attended[s.ID] {
			sum.Absent = append(sum.Absent, summaryOf(s))
		}
	}
	sum.AbsentCount = len(sum.Absent)
	if len(all) > 0 {
		sum.AttendanceRate = int(math.Round(float64(sum.PresentCount) / float64(len(all)) * 100))
	}
	if sum.PresentCount > 0 {
		sum.CompletionRate = int(math.Round(float64(fullCount) / float64(sum.PresentCount) * 100))
	}
	return sum, nil
}

// Detailed builds the per-style breakdown for one live (liveID set) or for
// every live in the catalog, newest first.
func (r *Reports) Detailed(ctx context.Context, liveID string) (DetailedReport, error) {
	var lives []live.Live
	if liveID != "" {
		lv, err := r.lives.Get(ctx, liveID)
		if err != nil {
			return DetailedReport{}, err
		}
		lives = []live.Live{lv}
	} else {
		all, err := r.lives.List(ctx)
		if err != nil {
			return DetailedReport{}, err
		}
		for _, lc := range all {
			lives = append(lives, lc.Live)
		}
	}

	students, err := r.students.List(ctx)
	if err != nil {
		return DetailedReport{}, err
	}

	out := DetailedReport{GeneratedAt: r.now().UTC()}
	for _, lv := range lives {
		recs, err := r.store.ListForLive(ctx, lv.ID)
		if err != nil {
			return DetailedReport{}, err
		}
		attended := make(map[string]bool, len(recs))
		var rep LiveReport
		rep.Live.ID = lv.ID
		rep.Live.Title = lv.Title
		rep.Live.StartsAt = lv.StartsAt
		rep.Live.TotalAttendees = len(recs)

		for _, rec := range recs {
			attended[rec.StudentID] = true
			addToBucket(&rep.Attendance, rec.Student, true)
		}
		for _, s := range students {
			if !attended[s.ID] {
				addToBucket(&rep.Attendance, summaryOf(s), false)
			}
		}
		fillCounts(&rep.Attendance)

		rep.Summary.TotalPresent = len(recs)
		rep.Summary.TotalAbsent = len(students) - len(attended)
		rep.Summary.TotalStudents = len(students)
		if len(students) > 0 {
			rep.Summary.AttendanceRate = math.Round(float64(len(recs))/float64(len(students))*1000) / 10
		}
		out.Report = append(out.Report, rep)
	}
	out.TotalLives = len(out.Report)
	return out, nil
}

func summaryOf(s student.Student) StudentSummary {
	return StudentSummary{ID: s.ID, Name: s.Name, Email: s.Email, Phone: s.Phone, City: s.City, StudyStyle: s.StudyStyle}
}

func addToBucket(b *ByStyle, s StudentSummary, present bool) {
	bucket := &b.Indefinido
	if s.StudyStyle != nil {
		switch *s.StudyStyle {
		case StylePresencial:
			bucket = &b.Presencial
		case StyleOnline:
			bucket = &b.Online
		case StyleHibrido:
			bucket = &b.Hibrido
		}
	}
	if present {
		bucket.Present = append(bucket.Present, s)
	} else {
		bucket.Absent = append(bucket.Absent, s)
	}
}

func fillCounts(b *ByStyle) {
	for _, bucket := range []*StyleBucket{&b.Presencial, &b.Online, &b.Hibrido, &b.Indefinido} {
		bucket.PresentCount = len(bucket.Present)
		bucket.AbsentCount = len(bucket.Absent)
	}
}
