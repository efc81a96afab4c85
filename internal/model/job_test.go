package model

import (
	"testing"
	"time"

	"gorm.io/datatypes"
)

func TestJobStatus_Transitions(t *testing.T) {
	allowed := [][2]JobStatus{
		{JobStatusPending, JobStatusAccepted},
		{JobStatusPending, JobStatusCancelled},
		{JobStatusAccepted, JobStatusInProgress},
		{JobStatusAccepted, JobStatusCancelled},
		{JobStatusInProgress, JobStatusCompleted},
		{JobStatusInProgress, JobStatusCancelled},
	}
	for _, tr := range allowed {
		if !tr[0].CanTransitionTo(tr[1]) {
			t.Fatalf("expected %s -> %s to be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]JobStatus{
		{JobStatusPending, JobStatusInProgress},
		{JobStatusPending, JobStatusCompleted},
		{JobStatusAccepted, JobStatusCompleted},
		{JobStatusCompleted, JobStatusCancelled},
		{JobStatusCancelled, JobStatusPending},
	}
	for _, tr := range denied {
		if tr[0].CanTransitionTo(tr[1]) {
			t.Fatalf("expected %s -> %s to be denied", tr[0], tr[1])
		}
	}
}

func TestJobStatus_IsLive(t *testing.T) {
	for _, s := range []JobStatus{JobStatusPending, JobStatusAccepted, JobStatusInProgress} {
		if !s.IsLive() {
			t.Fatalf("expected %s to be live", s)
		}
	}
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusCancelled} {
		if s.IsLive() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	if JobStatus("archived").Valid() {
		t.Fatalf("expected unknown status to be invalid")
	}
}

func TestJob_Interval(t *testing.T) {
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	j := Job{
		AppointmentDate: datatypes.Date(day),
		AppointmentTime: datatypes.NewTime(9, 0, 0, 0),
		DurationMin:     90,
	}

	iv := j.Interval()
	if !iv.Start.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("unexpected start %v", iv.Start)
	}
	if !iv.End.Equal(day.Add(10*time.Hour + 30*time.Minute)) {
		t.Fatalf("unexpected end %v", iv.End)
	}
}
