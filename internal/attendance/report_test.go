package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass/internal/attendance"
	"liveclass/internal/memstore"
)

func strPtr(s string) *string { return &s }

func TestSummaryAbsenceByOmission(t *testing.T) {
	ctx := context.Background()
	mem, ledger, clock := setup(t)
	lv := createLive(t, mem, "aula-1", baseStart, 60, true)

	emails := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com",
		"f@x.com", "g@x.com", "h@x.com", "i@x.com", "j@x.com"}
	var ids []string
	for _, email := range emails {
		ids = append(ids, createStudent(t, mem, email, nil).ID)
	}

	*clock = baseStart.Add(time.Minute)
	for _, id := range ids[:3] {
		_, err := ledger.ConfirmPresence(ctx, id, lv.ID)
		require.NoError(t, err)
	}

	// Window long closed; absence is still determined purely by omission.
	reportedAt := baseStart.Add(2 * time.Hour)
	reports := attendance.NewReports(mem.Records(), mem.Students(), mem.Lives(), 5*time.Minute).
		WithClock(func() time.Time { return reportedAt })

	sum, err := reports.Summary(ctx, lv.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, sum.TotalStudents)
	assert.Equal(t, 3, sum.PresentCount)
	assert.Equal(t, 7, sum.AbsentCount)
	assert.Len(t, sum.Absent, 7)
	assert.Equal(t, 30, sum.AttendanceRate)
	assert.Equal(t, 0, sum.OnlineCount)
}

func TestSummaryEmptyDirectory(t *testing.T) {
	ctx := context.Background()
	mem, _, _ := setup(t)
	lv := createLive(t, mem, "aula-1", baseStart, 60, true)

	reports := attendance.NewReports(mem.Records(), mem.Students(), mem.Lives(), 5*time.Minute)
	sum, err := reports.Summary(ctx, lv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.AttendanceRate)
	assert.Equal(t, 0, sum.CompletionRate)
	assert.Equal(t, 0, sum.PresentCount)
}

func TestSummaryCompletionAndOnline(t *testing.T) {
	ctx := context.Background()
	mem, ledger, clock := setup(t)
	lv := createLive(t, mem, "aula-1", baseStart, 60, true)

	ana := createStudent(t, mem, "ana@x.com", nil)
	bruno := createStudent(t, mem, "bruno@x.com", nil)

	*clock = baseStart.Add(time.Minute)
	_, err := ledger.ConfirmPresence(ctx, ana.ID, lv.ID)
	require.NoError(t, err)
	_, err = ledger.ConfirmPresence(ctx, bruno.ID, lv.ID)
	require.NoError(t, err)
	_, err = ledger.MarkFullyWatched(ctx, ana.ID, lv.ID)
	require.NoError(t, err)

	// Ana heartbeats recently; Bruno went silent half an hour ago.
	*clock = baseStart.Add(30 * time.Minute)
	_, err = ledger.RecordHeartbeat(ctx, ana.ID, lv.ID, 15, 0)
	require.NoError(t, err)

	reportedAt := baseStart.Add(32 * time.Minute)
	reports := attendance.NewReports(mem.Records(), mem.Students(), mem.Lives(), 5*time.Minute).
		WithClock(func() time.Time { return reportedAt })

	sum, err := reports.Summary(ctx, lv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.PresentCount)
	assert.Equal(t, 50, sum.CompletionRate)
	assert.Equal(t, 1, sum.OnlineCount)

	recs, err := reports.ListForLive(ctx, lv.ID)
	require.NoError(t, err)
	online := map[string]bool{}
	for _, rec := range recs {
		online[rec.StudentID] = rec.Online
	}
	assert.True(t, online[ana.ID])
	assert.False(t, online[bruno.ID])
}

func TestDetailedReportBuckets(t *testing.T) {
	ctx := context.Background()
	mem, ledger, clock := setup(t)
	lv := createLive(t, mem, "aula-1", baseStart, 60, true)

	presencial := createStudent(t, mem, "p@x.com", strPtr(attendance.StylePresencial))
	online := createStudent(t, mem, "o@x.com", strPtr(attendance.StyleOnline))
	createStudent(t, mem, "h@x.com", strPtr(attendance.StyleHibrido))
	undefinedStyle := createStudent(t, mem, "u@x.com", nil)
	createStudent(t, mem, "w@x.com", strPtr("Outro"))

	*clock = baseStart.Add(time.Minute)
	for _, id := range []string{presencial.ID, online.ID, undefinedStyle.ID} {
		_, err := ledger.ConfirmPresence(ctx, id, lv.ID)
		require.NoError(t, err)
	}

	reports := attendance.NewReports(mem.Records(), mem.Students(), mem.Lives(), 5*time.Minute)
	rep, err := reports.Detailed(ctx, lv.ID)
	require.NoError(t, err)
	require.Len(t, rep.Report, 1)

	lr := rep.Report[0]
	assert.Equal(t, lv.ID, lr.Live.ID)
	assert.Equal(t, 3, lr.Live.TotalAttendees)

	assert.Equal(t, 1, lr.Attendance.Presencial.PresentCount)
	assert.Equal(t, 0, lr.Attendance.Presencial.AbsentCount)
	assert.Equal(t, 1, lr.Attendance.Online.PresentCount)
	assert.Equal(t, 0, lr.Attendance.Hibrido.PresentCount)
	assert.Equal(t, 1, lr.Attendance.Hibrido.AbsentCount)
	// Null and unrecognized styles both land in the undefined bucket.
	assert.Equal(t, 1, lr.Attendance.Indefinido.PresentCount)
	assert.Equal(t, 1, lr.Attendance.Indefinido.AbsentCount)

	assert.Equal(t, 3, lr.Summary.TotalPresent)
	assert.Equal(t, 2, lr.Summary.TotalAbsent)
	assert.Equal(t, 5, lr.Summary.TotalStudents)
	assert.InDelta(t, 60.0, lr.Summary.AttendanceRate, 0.01)
}

func TestDetailedReportAllLives(t *testing.T) {
	ctx := context.Background()
	mem, ledger, clock := setup(t)
	first := createLive(t, mem, "aula-1", baseStart, 60, true)
	createLive(t, mem, "aula-2", baseStart.Add(24*time.Hour), 60, true)
	st := createStudent(t, mem, "ana@x.com", nil)

	*clock = baseStart.Add(time.Minute)
	_, err := ledger.ConfirmPresence(ctx, st.ID, first.ID)
	require.NoError(t, err)

	reports := attendance.NewReports(mem.Records(), mem.Students(), mem.Lives(), 5*time.Minute)
	rep, err := reports.Detailed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalLives)
}

func TestReportsUnknownLive(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	reports := attendance.NewReports(mem.Records(), mem.Students(), mem.Lives(), 5*time.Minute)
	_, err := reports.Summary(ctx, "missing")
	assert.Error(t, err)
}
