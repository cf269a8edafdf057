package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	start := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Minute)

	tests := []struct {
		name     string
		now      time.Time
		isActive bool
		want     Status
	}{
		{name: "before start", now: start.Add(-time.Minute), isActive: true, want: StatusNotStarted},
		{name: "before start inactive", now: start.Add(-time.Minute), isActive: false, want: StatusNotStarted},
		{name: "at start", now: start, isActive: true, want: StatusActive},
		{name: "mid window", now: start.Add(30 * time.Minute), isActive: true, want: StatusActive},
		{name: "at end", now: end, isActive: true, want: StatusActive},
		{name: "mid window disabled", now: start.Add(30 * time.Minute), isActive: false, want: StatusNotStarted},
		{name: "after end", now: end.Add(time.Second), isActive: true, want: StatusFinished},
		{name: "after end inactive", now: end.Add(time.Hour), isActive: false, want: StatusFinished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(start, end, tt.isActive, tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDerivesEndsAt(t *testing.T) {
	start := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	l := Live{StartsAt: start, DurationMin: 90, EndsAt: start.Add(5 * time.Hour)}
	l.Normalize()
	assert.Equal(t, start.Add(90*time.Minute), l.EndsAt)
}

func TestGraceDeadline(t *testing.T) {
	start := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(10*time.Minute), GraceDeadline(start, 10*time.Minute))
}
