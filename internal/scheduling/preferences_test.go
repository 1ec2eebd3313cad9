package scheduling

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"reup-planner-backend/internal/domain"
)

type fakePrefStore struct {
	prefs *domain.SchedulingPreferences
	err   error
}

func (s *fakePrefStore) GetSchedulingPreferences(ctx context.Context, userID int) (*domain.SchedulingPreferences, error) {
	return s.prefs, s.err
}

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

func TestResolve_DefaultsWhenMissing(t *testing.T) {
	r := NewPreferenceResolver(&fakePrefStore{})
	p := r.Resolve(context.Background(), 1)

	if p.StartHour != 8 || p.EndHour != 20 {
		t.Fatalf("hours=%d..%d, want 8..20", p.StartHour, p.EndHour)
	}
	if !reflect.DeepEqual(p.AllowedDays, []int{1, 2, 3, 4, 5}) {
		t.Fatalf("AllowedDays=%v", p.AllowedDays)
	}
	if p.Timezone != "Europe/Paris" || p.Location.String() != "Europe/Paris" {
		t.Fatalf("Timezone=%q loc=%v", p.Timezone, p.Location)
	}
	if p.MorningEndHour != 12 || p.AfternoonStartHour != 14 || p.BreakMinutes != 10 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestResolve_StoreErrorFallsBack(t *testing.T) {
	r := NewPreferenceResolver(&fakePrefStore{err: errors.New("db down")})
	p := r.Resolve(context.Background(), 1)
	if p.StartHour != 8 || p.BreakMinutes != 10 {
		t.Fatalf("expected defaults, got %+v", p)
	}
}

func TestResolve_PartialOverrides(t *testing.T) {
	r := NewPreferenceResolver(&fakePrefStore{prefs: &domain.SchedulingPreferences{
		UserID:       1,
		StartHour:    intp(9),
		AllowedDays:  []int{6, 7, 9},
		Timezone:     strp("America/New_York"),
		BreakMinutes: intp(0),
	}})
	p := r.Resolve(context.Background(), 1)

	if p.StartHour != 9 || p.EndHour != 20 {
		t.Fatalf("hours=%d..%d, want 9..20", p.StartHour, p.EndHour)
	}
	if !reflect.DeepEqual(p.AllowedDays, []int{6, 7}) {
		t.Fatalf("AllowedDays=%v, want [6 7]", p.AllowedDays)
	}
	if p.Location.String() != "America/New_York" {
		t.Fatalf("Location=%v", p.Location)
	}
	if p.BreakMinutes != 0 {
		t.Fatalf("BreakMinutes=%d, want 0", p.BreakMinutes)
	}
}

func TestResolve_InvalidValuesIgnored(t *testing.T) {
	r := NewPreferenceResolver(&fakePrefStore{prefs: &domain.SchedulingPreferences{
		StartHour: intp(21),
		EndHour:   intp(19),
		Timezone:  strp("Mars/Olympus"),
	}})
	p := r.Resolve(context.Background(), 1)
	if p.StartHour != 8 || p.EndHour != 20 {
		t.Fatalf("hours=%d..%d, want defaults 8..20", p.StartHour, p.EndHour)
	}
	if p.Timezone != "Europe/Paris" {
		t.Fatalf("Timezone=%q, want Europe/Paris", p.Timezone)
	}
}
