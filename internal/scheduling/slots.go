package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"reup-planner-backend/internal/domain"
)

const (
	searchDays     = 7
	slotStep       = 30 * time.Minute
	maxCandidates  = 5
	maxSlots       = 3
	defaultSnooze  = 30
	snoozePriority = domain.DefaultPriority
	snoozeEnergy   = domain.DefaultEnergyLevel
)

var (
	ErrInvalidDuration = errors.New("estimated minutes must be positive")
	ErrBusyUnavailable = errors.New("busy times unavailable")
)

// BusyTimeProvider reports occupied intervals for a user over a window.
type BusyTimeProvider interface {
	BusyTimes(ctx context.Context, userID int, start, end time.Time) (domain.Availability, error)
}

type SlotOption struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Label     string    `json:"label"`
	IsMorning bool      `json:"is_morning"`
	Score     int       `json:"score"`
}

type SlotRequest struct {
	UserID           int
	EstimatedMinutes int
	Priority         *int
	EnergyLevel      *int
	Deadline         *time.Time
}

type SlotResult struct {
	Slots       []SlotOption        `json:"slots"`
	BusyPeriods []domain.BusyPeriod `json:"busy_periods"`
	Degraded    bool                `json:"degraded"`
}

type SlotFinder struct {
	prefs *PreferenceResolver
	busy  BusyTimeProvider
	now   func() time.Time
}

func NewSlotFinder(prefs *PreferenceResolver, busy BusyTimeProvider) *SlotFinder {
	return &SlotFinder{
		prefs: prefs,
		busy:  busy,
		now:   time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (f *SlotFinder) WithClock(now func() time.Time) *SlotFinder {
	f.now = now
	return f
}

// FindBestSlots returns at most three candidate windows for a task, ranked
// by urgency. A deadline in the future moves the whole search to that date.
func (f *SlotFinder) FindBestSlots(ctx context.Context, req SlotRequest) (SlotResult, error) {
	if req.EstimatedMinutes <= 0 {
		return SlotResult{}, ErrInvalidDuration
	}

	prefs := f.prefs.Resolve(ctx, req.UserID)
	loc := prefs.Location
	now := f.now().In(loc)

	priority, energy := domain.DefaultPriority, domain.DefaultEnergyLevel
	if req.Priority != nil {
		priority = *req.Priority
	}
	if req.EnergyLevel != nil {
		energy = *req.EnergyLevel
	}
	score := PriorityScore(priority, energy, req.Deadline, now)

	searchStart := now
	var minDate *time.Time
	if req.Deadline != nil {
		deadlineDay := midnight(req.Deadline.In(loc))
		if deadlineDay.After(midnight(now)) {
			searchStart = deadlineDay
			minDate = &deadlineDay
		}
	}
	firstDay := midnight(searchStart)
	searchEnd := firstDay.AddDate(0, 0, searchDays)

	avail, err := f.busy.BusyTimes(ctx, req.UserID, searchStart, searchEnd)
	if err != nil {
		return SlotResult{}, fmt.Errorf("%w: %w", ErrBusyUnavailable, err)
	}

	bands := prefs.bandOrder(targetBand(score))
	length := time.Duration(req.EstimatedMinutes+prefs.BreakMinutes) * time.Minute
	seen := make(map[int64]struct{})
	candidates := make([]SlotOption, 0, maxCandidates)

scan:
	for d := 0; d < searchDays; d++ {
		date := firstDay.AddDate(0, 0, d)
		if !prefs.AllowsDay(date.Weekday()) {
			continue
		}
		dayEnd := atHour(date, prefs.EndHour)

		for _, w := range bands {
			bandEnd := atHour(date, w.end)
			for start := atHour(date, w.start); start.Before(bandEnd); start = start.Add(slotStep) {
				end := start.Add(length)
				if start.Before(searchStart) {
					continue
				}
				if minDate != nil && start.Before(*minDate) {
					continue
				}
				if end.After(dayEnd) {
					break
				}
				if overlapsAny(avail.Busy, start, end) {
					continue
				}
				key := start.Unix()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				candidates = append(candidates, SlotOption{
					Start:     start,
					End:       end,
					IsMorning: start.Hour() < prefs.MorningEndHour,
					Score:     score,
				})
				if len(candidates) >= maxCandidates {
					break scan
				}
			}
		}
	}

	morningFirst := score >= 6
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if morningFirst && a.IsMorning != b.IsMorning {
			return a.IsMorning
		}
		return a.Start.Before(b.Start)
	})
	if len(candidates) > maxSlots {
		candidates = candidates[:maxSlots]
	}
	for i := range candidates {
		candidates[i].Label = Label(candidates[i].Start, now)
	}

	return SlotResult{
		Slots:       candidates,
		BusyPeriods: avail.Busy,
		Degraded:    avail.Degraded,
	}, nil
}

// FindSnoozeSlot proposes the window starting snoozeMinutes from now. When
// that window is busy it falls back to a low-urgency search. A nil slot
// with a nil error means nothing is free.
func (f *SlotFinder) FindSnoozeSlot(ctx context.Context, userID, estimatedMinutes, snoozeMinutes int) (*SlotOption, error) {
	if estimatedMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if snoozeMinutes <= 0 {
		snoozeMinutes = defaultSnooze
	}

	prefs := f.prefs.Resolve(ctx, userID)
	now := f.now().In(prefs.Location)
	start := now.Add(time.Duration(snoozeMinutes) * time.Minute).Truncate(time.Minute)
	end := start.Add(time.Duration(estimatedMinutes) * time.Minute)

	avail, err := f.busy.BusyTimes(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusyUnavailable, err)
	}
	if !overlapsAny(avail.Busy, start, end) {
		return &SlotOption{
			Start:     start,
			End:       end,
			Label:     Label(start, now),
			IsMorning: start.Hour() < prefs.MorningEndHour,
			Score:     PriorityScore(snoozePriority, snoozeEnergy, nil, now),
		}, nil
	}

	p, e := snoozePriority, snoozeEnergy
	res, err := f.FindBestSlots(ctx, SlotRequest{
		UserID:           userID,
		EstimatedMinutes: estimatedMinutes,
		Priority:         &p,
		EnergyLevel:      &e,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Slots) == 0 {
		return nil, nil
	}
	slot := res.Slots[0]
	return &slot, nil
}

type window struct {
	start, end int // hours
}

func (p Preferences) bandWindow(b band) window {
	var w window
	switch b {
	case bandMorning:
		w = window{p.StartHour, p.MorningEndHour}
	case bandAfternoon:
		w = window{p.AfternoonStartHour, eveningStartHour}
	default:
		w = window{eveningStartHour, p.EndHour}
	}
	if w.start < p.StartHour {
		w.start = p.StartHour
	}
	if w.end > p.EndHour {
		w.end = p.EndHour
	}
	return w
}

// bandOrder scans the target band first; the others are fallbacks.
func (p Preferences) bandOrder(target band) []window {
	var order []band
	switch target {
	case bandMorning:
		order = []band{bandMorning, bandAfternoon, bandEvening}
	case bandAfternoon:
		order = []band{bandAfternoon, bandEvening, bandMorning}
	default:
		order = []band{bandEvening, bandAfternoon, bandMorning}
	}
	out := make([]window, 0, len(order))
	for _, b := range order {
		if w := p.bandWindow(b); w.start < w.end {
			out = append(out, w)
		}
	}
	return out
}

func overlapsAny(busy []domain.BusyPeriod, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func atHour(date time.Time, hour int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, date.Location())
}
