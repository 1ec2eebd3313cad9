package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"reup-planner-backend/internal/calendar"
	"reup-planner-backend/internal/domain"
	"reup-planner-backend/internal/scheduling"
	"reup-planner-backend/internal/storage"
	"reup-planner-backend/internal/storage/memory"
)

type fakeCalendar struct {
	inputs []calendar.EventInput
	result calendar.Result
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, userID int, in calendar.EventInput) calendar.Result {
	f.inputs = append(f.inputs, in)
	return f.result
}

type fakeBusy struct {
	busy []domain.BusyPeriod
}

func (f *fakeBusy) BusyTimes(ctx context.Context, userID int, start, end time.Time) (domain.Availability, error) {
	return domain.Availability{Busy: f.busy}, nil
}

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

type fixture struct {
	store   *memory.Store
	cal     *fakeCalendar
	busy    *fakeBusy
	planner *Planner
	task    domain.Task
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	task, _ := store.CreateTask(context.Background(), domain.Task{UserID: 1, Title: "Rapport", EstimatedMinutes: 60})

	now := time.Date(2026, 10, 12, 10, 0, 0, 0, paris(t))
	prefs := scheduling.NewPreferenceResolver(store)
	busy := &fakeBusy{}
	finder := scheduling.NewSlotFinder(prefs, busy).WithClock(func() time.Time { return now })
	cal := &fakeCalendar{result: calendar.Result{Success: true, EventID: "gcal-1"}}

	return &fixture{
		store:   store,
		cal:     cal,
		busy:    busy,
		planner: New(store, cal, finder, prefs, nil),
		task:    task,
		now:     now,
	}
}

func TestBook(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(time.Hour)

	e, err := f.planner.Book(context.Background(), 1, f.task.ID, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Book() err=%v", err)
	}
	if e.GoogleEventID != "gcal-1" || e.TaskID != f.task.ID {
		t.Fatalf("Book()=%+v", e)
	}
	if len(f.cal.inputs) != 1 || f.cal.inputs[0].Summary != "Rapport" || f.cal.inputs[0].TimeZone != "Europe/Paris" {
		t.Fatalf("calendar input=%+v", f.cal.inputs)
	}
	stored, err := f.store.GetEvent(context.Background(), e.ID)
	if err != nil || !stored.StartTime.Equal(start) {
		t.Fatalf("stored=%+v err=%v", stored, err)
	}
}

func TestBook_CalendarFailureStillBooks(t *testing.T) {
	f := newFixture(t)
	f.cal.result = calendar.Result{Error: "calendar not connected"}

	e, err := f.planner.Book(context.Background(), 1, f.task.ID, f.now, f.now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Book() err=%v", err)
	}
	if e.GoogleEventID != "" {
		t.Fatalf("GoogleEventID=%q, want empty", e.GoogleEventID)
	}
	if _, err := f.store.GetEvent(context.Background(), e.ID); err != nil {
		t.Fatalf("event not persisted: %v", err)
	}
}

func TestBook_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.planner.Book(ctx, 1, f.task.ID, f.now, f.now); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("zero-length err=%v, want ErrInvalidWindow", err)
	}
	if _, err := f.planner.Book(ctx, 2, f.task.ID, f.now, f.now.Add(time.Hour)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign task err=%v, want ErrNotFound", err)
	}
}

func TestSuggest_UsesTaskAttributes(t *testing.T) {
	f := newFixture(t)

	res, err := f.planner.Suggest(context.Background(), 1, f.task.ID)
	if err != nil {
		t.Fatalf("Suggest() err=%v", err)
	}
	if len(res.Slots) == 0 {
		t.Fatalf("no slots")
	}
	for _, s := range res.Slots {
		if s.End.Sub(s.Start) != 70*time.Minute {
			t.Fatalf("slot length=%v, want 70m (60 + break)", s.End.Sub(s.Start))
		}
	}
}

func TestSnooze(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig, _ := f.planner.Book(ctx, 1, f.task.ID, f.now.Add(-time.Hour), f.now)

	next, err := f.planner.Snooze(ctx, 1, orig.ID, 0)
	if err != nil {
		t.Fatalf("Snooze() err=%v", err)
	}
	wantStart := f.now.Add(30 * time.Minute)
	if !next.StartTime.Equal(wantStart) || !next.EndTime.Equal(wantStart.Add(time.Hour)) {
		t.Fatalf("snoozed to %v-%v, want %v", next.StartTime, next.EndTime, wantStart)
	}

	stored, _ := f.store.GetEvent(ctx, orig.ID)
	if stored.UserResponse == nil || *stored.UserResponse != domain.ResponseSnoozed {
		t.Fatalf("original response=%v, want snoozed", stored.UserResponse)
	}
}

func TestSnooze_UnknownEvent(t *testing.T) {
	f := newFixture(t)
	if _, err := f.planner.Snooze(context.Background(), 1, uuid.New(), 15); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func (f *fixture) eventCount(t *testing.T) int {
	t.Helper()
	events, err := f.store.ListByUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListByUser() err=%v", err)
	}
	return len(events)
}

func TestSnooze_SecondSnoozeDoesNotRebook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig, _ := f.planner.Book(ctx, 1, f.task.ID, f.now.Add(-time.Hour), f.now)

	if _, err := f.planner.Snooze(ctx, 1, orig.ID, 0); err != nil {
		t.Fatalf("first Snooze() err=%v", err)
	}
	if _, err := f.planner.Snooze(ctx, 1, orig.ID, 0); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("second Snooze() err=%v, want ErrAlreadyAnswered", err)
	}
	if n := f.eventCount(t); n != 2 {
		t.Fatalf("events=%d, want 2 (original + one snooze)", n)
	}
	if len(f.cal.inputs) != 2 {
		t.Fatalf("calendar events created=%d, want 2", len(f.cal.inputs))
	}
}

func TestSnooze_AnsweredOrCompletedIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done, _ := f.planner.Book(ctx, 1, f.task.ID, f.now.Add(-time.Hour), f.now)
	_, _ = f.store.RecordResponse(ctx, done.ID, domain.ResponseDone)
	if _, err := f.planner.Snooze(ctx, 1, done.ID, 0); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("snooze of done event err=%v, want ErrAlreadyAnswered", err)
	}

	pending, _ := f.planner.Book(ctx, 1, f.task.ID, f.now, f.now.Add(time.Hour))
	_ = f.store.MarkTaskCompleted(ctx, f.task.ID)
	if _, err := f.planner.Snooze(ctx, 1, pending.ID, 0); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("snooze of completed task err=%v, want ErrAlreadyAnswered", err)
	}
	if stored, _ := f.store.GetEvent(ctx, pending.ID); stored.UserResponse != nil {
		t.Fatalf("response recorded on rejected snooze: %v", *stored.UserResponse)
	}
	if n := f.eventCount(t); n != 2 {
		t.Fatalf("events=%d, want 2", n)
	}
}
