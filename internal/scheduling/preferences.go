package scheduling

import (
	"context"
	"log"
	"time"
	_ "time/tzdata"

	"reup-planner-backend/internal/domain"
)

const (
	defaultStartHour          = 8
	defaultEndHour            = 20
	defaultTimezone           = "Europe/Paris"
	defaultMorningEndHour     = 12
	defaultAfternoonStartHour = 14
	defaultBreakMinutes       = 10

	// Evening band begins here; it is not a per-user setting.
	eveningStartHour = 18
)

var defaultAllowedDays = []int{1, 2, 3, 4, 5}

// Preferences is the resolved, immutable view used by one scheduling call.
type Preferences struct {
	StartHour          int
	EndHour            int
	AllowedDays        []int
	Timezone           string
	Location           *time.Location
	MorningEndHour     int
	AfternoonStartHour int
	BreakMinutes       int
}

// AllowsDay maps Go weekdays onto 1..7 with Monday=1.
func (p Preferences) AllowsDay(wd time.Weekday) bool {
	iso := int(wd)
	if iso == 0 {
		iso = 7
	}
	for _, d := range p.AllowedDays {
		if d == iso {
			return true
		}
	}
	return false
}

func DefaultPreferences() Preferences {
	return Preferences{
		StartHour:          defaultStartHour,
		EndHour:            defaultEndHour,
		AllowedDays:        append([]int(nil), defaultAllowedDays...),
		Timezone:           defaultTimezone,
		Location:           loadLocation(defaultTimezone),
		MorningEndHour:     defaultMorningEndHour,
		AfternoonStartHour: defaultAfternoonStartHour,
		BreakMinutes:       defaultBreakMinutes,
	}
}

type PreferenceStore interface {
	GetSchedulingPreferences(ctx context.Context, userID int) (*domain.SchedulingPreferences, error)
}

type PreferenceResolver struct {
	store PreferenceStore
}

func NewPreferenceResolver(store PreferenceStore) *PreferenceResolver {
	return &PreferenceResolver{store: store}
}

// Resolve never fails: a missing record, a store error or an individual
// unset field all fall back to the defaults.
func (r *PreferenceResolver) Resolve(ctx context.Context, userID int) Preferences {
	p := DefaultPreferences()
	if r == nil || r.store == nil {
		return p
	}

	stored, err := r.store.GetSchedulingPreferences(ctx, userID)
	if err != nil {
		log.Printf("[WARN] scheduling preferences lookup failed user_id=%d: %v", userID, err)
		return p
	}
	if stored == nil {
		return p
	}

	if stored.StartHour != nil && validHour(*stored.StartHour) {
		p.StartHour = *stored.StartHour
	}
	if stored.EndHour != nil && validHour(*stored.EndHour) {
		p.EndHour = *stored.EndHour
	}
	if p.StartHour >= p.EndHour {
		p.StartHour, p.EndHour = defaultStartHour, defaultEndHour
	}
	if days := validDays(stored.AllowedDays); len(days) > 0 {
		p.AllowedDays = days
	}
	if stored.Timezone != nil && *stored.Timezone != "" {
		if loc, err := time.LoadLocation(*stored.Timezone); err == nil {
			p.Timezone = *stored.Timezone
			p.Location = loc
		}
	}
	if stored.MorningEndHour != nil && validHour(*stored.MorningEndHour) {
		p.MorningEndHour = *stored.MorningEndHour
	}
	if stored.AfternoonStartHour != nil && validHour(*stored.AfternoonStartHour) {
		p.AfternoonStartHour = *stored.AfternoonStartHour
	}
	if stored.BreakMinutes != nil && *stored.BreakMinutes >= 0 {
		p.BreakMinutes = *stored.BreakMinutes
	}
	return p
}

func validHour(h int) bool {
	return h >= 0 && h <= 24
}

func validDays(days []int) []int {
	var out []int
	for _, d := range days {
		if d >= 1 && d <= 7 {
			out = append(out, d)
		}
	}
	return out
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
