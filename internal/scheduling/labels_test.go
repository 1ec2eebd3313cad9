package scheduling

import (
	"testing"
	"time"
)

func TestLabel(t *testing.T) {
	loc := paris(t)
	now := time.Date(2026, 10, 14, 22, 30, 0, 0, loc)

	tests := []struct {
		start time.Time
		want  string
	}{
		{time.Date(2026, 10, 14, 23, 0, 0, 0, loc), "Aujourd'hui 23:00"},
		{time.Date(2026, 10, 15, 8, 5, 0, 0, loc), "Demain 08:05"},
		{time.Date(2026, 10, 16, 14, 0, 0, 0, loc), "vendredi 16 octobre 14:00"},
		{time.Date(2026, 12, 1, 9, 30, 0, 0, loc), "mardi 1 décembre 09:30"},
	}
	for _, tt := range tests {
		if got := Label(tt.start, now); got != tt.want {
			t.Fatalf("Label(%v)=%q, want %q", tt.start, got, tt.want)
		}
	}
}

func TestLabel_UsesSlotLocation(t *testing.T) {
	loc := paris(t)
	// 23:30 UTC is already the next day in Paris.
	now := time.Date(2026, 10, 14, 23, 30, 0, 0, time.UTC)
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, loc)
	if got := Label(start, now); got != "Aujourd'hui 09:00" {
		t.Fatalf("Label()=%q, want Aujourd'hui 09:00", got)
	}
}
