package scheduling

import (
	"testing"
	"time"
)

func TestPriorityScore_NoDeadline(t *testing.T) {
	now := time.Date(2026, 10, 12, 7, 0, 0, 0, time.UTC)
	for p := 0; p <= 4; p++ {
		for e := 0; e <= 3; e++ {
			if got, want := PriorityScore(p, e, nil, now), p*2+e; got != want {
				t.Fatalf("PriorityScore(%d,%d)=%d, want %d", p, e, got, want)
			}
		}
	}
}

func TestPriorityScore_DeadlineBonus(t *testing.T) {
	now := time.Date(2026, 10, 12, 7, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		delta time.Duration
		bonus int
	}{
		{"past", -48 * time.Hour, 5},
		{"in one hour", time.Hour, 5},
		{"1 day", 24 * time.Hour, 5},
		{"2 days", 48 * time.Hour, 3},
		{"3 days", 72 * time.Hour, 3},
		{"3 days and a minute", 72*time.Hour + time.Minute, 1},
		{"4 days", 96 * time.Hour, 1},
		{"7 days", 7 * 24 * time.Hour, 1},
		{"8 days", 8 * 24 * time.Hour, 0},
		{"30 days", 30 * 24 * time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deadline := now.Add(tt.delta)
			got := PriorityScore(2, 1, &deadline, now)
			if want := 5 + tt.bonus; got != want {
				t.Fatalf("PriorityScore()=%d, want %d", got, want)
			}
		})
	}
}

func TestTargetBand(t *testing.T) {
	tests := []struct {
		score int
		want  band
	}{
		{10, bandMorning},
		{6, bandMorning},
		{5, bandAfternoon},
		{3, bandAfternoon},
		{2, bandEvening},
		{0, bandEvening},
	}
	for _, tt := range tests {
		if got := targetBand(tt.score); got != tt.want {
			t.Fatalf("targetBand(%d)=%v, want %v", tt.score, got, tt.want)
		}
	}
}
