package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"reup-planner-backend/internal/analytics"
	"reup-planner-backend/internal/calendar"
	"reup-planner-backend/internal/domain"
	"reup-planner-backend/internal/scheduling"
	"reup-planner-backend/internal/storage"
)

var (
	ErrInvalidWindow   = errors.New("end must be after start")
	ErrNoSlot          = errors.New("no free slot found")
	ErrAlreadyAnswered = errors.New("event already answered")
)

type Store interface {
	GetTask(ctx context.Context, id int) (domain.Task, error)
	CreateEvent(ctx context.Context, e domain.ScheduledTaskEvent) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.ScheduledTaskEvent, error)
	RecordResponse(ctx context.Context, id uuid.UUID, response domain.Response) (bool, error)
}

type EventCreator interface {
	CreateEvent(ctx context.Context, userID int, in calendar.EventInput) calendar.Result
}

type Planner struct {
	store  Store
	cal    EventCreator
	finder *scheduling.SlotFinder
	prefs  *scheduling.PreferenceResolver
	rec    *analytics.Recorder
}

func New(store Store, cal EventCreator, finder *scheduling.SlotFinder, prefs *scheduling.PreferenceResolver, rec *analytics.Recorder) *Planner {
	return &Planner{store: store, cal: cal, finder: finder, prefs: prefs, rec: rec}
}

// Task loads a task owned by userID.
func (p *Planner) Task(ctx context.Context, userID, taskID int) (domain.Task, error) {
	t, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.UserID != userID {
		return domain.Task{}, storage.ErrNotFound
	}
	return t, nil
}

// Suggest runs the slot search with the task's own attributes.
func (p *Planner) Suggest(ctx context.Context, userID, taskID int) (scheduling.SlotResult, error) {
	t, err := p.Task(ctx, userID, taskID)
	if err != nil {
		return scheduling.SlotResult{}, err
	}
	res, err := p.finder.FindBestSlots(ctx, scheduling.SlotRequest{
		UserID:           userID,
		EstimatedMinutes: t.EstimatedMinutes,
		Priority:         t.Priority,
		EnergyLevel:      t.EnergyLevel,
		Deadline:         t.DueDate,
	})
	if err != nil {
		return scheduling.SlotResult{}, err
	}
	p.rec.Log(ctx, analytics.Server(userID), analytics.EventSlotsSuggested,
		map[string]any{"task_id": taskID, "count": len(res.Slots), "degraded": res.Degraded}, "")
	return res, nil
}

// Book places the task on the user's calendar. The slot is not re-checked
// against free/busy; a conflict created since the search is accepted.
// A calendar failure does not abort the booking.
func (p *Planner) Book(ctx context.Context, userID, taskID int, start, end time.Time) (domain.ScheduledTaskEvent, error) {
	if !end.After(start) {
		return domain.ScheduledTaskEvent{}, ErrInvalidWindow
	}
	t, err := p.Task(ctx, userID, taskID)
	if err != nil {
		return domain.ScheduledTaskEvent{}, err
	}

	prefs := p.prefs.Resolve(ctx, userID)
	res := p.cal.CreateEvent(ctx, userID, calendar.EventInput{
		Summary:  t.Title,
		Start:    start.In(prefs.Location),
		End:      end.In(prefs.Location),
		TimeZone: prefs.Timezone,
	})
	if !res.Success {
		log.Printf("[WARN] booking without calendar event task_id=%d user_id=%d: %s", taskID, userID, res.Error)
	}

	e := domain.ScheduledTaskEvent{
		ID:            uuid.New(),
		UserID:        userID,
		TaskID:        taskID,
		GoogleEventID: res.EventID,
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
	}
	if err := p.store.CreateEvent(ctx, e); err != nil {
		return domain.ScheduledTaskEvent{}, fmt.Errorf("save event: %w", err)
	}

	p.rec.Log(ctx, analytics.Server(userID), analytics.EventTaskScheduled,
		map[string]any{"task_id": taskID, "event_id": e.ID.String(), "calendar_synced": res.Success}, "")
	return e, nil
}

// Snooze answers the event with "snoozed" and books the task again in the
// next free window. An event can be snoozed at most once.
func (p *Planner) Snooze(ctx context.Context, userID int, eventID uuid.UUID, snoozeMinutes int) (domain.ScheduledTaskEvent, error) {
	ev, err := p.store.GetEvent(ctx, eventID)
	if err != nil {
		return domain.ScheduledTaskEvent{}, err
	}
	if ev.UserID != userID {
		return domain.ScheduledTaskEvent{}, storage.ErrNotFound
	}
	if ev.Settled() {
		return domain.ScheduledTaskEvent{}, ErrAlreadyAnswered
	}
	t, err := p.Task(ctx, userID, ev.TaskID)
	if err != nil {
		return domain.ScheduledTaskEvent{}, err
	}
	if t.Completed {
		return domain.ScheduledTaskEvent{}, ErrAlreadyAnswered
	}

	slot, err := p.finder.FindSnoozeSlot(ctx, userID, t.EstimatedMinutes, snoozeMinutes)
	if err != nil {
		return domain.ScheduledTaskEvent{}, err
	}
	if slot == nil {
		return domain.ScheduledTaskEvent{}, ErrNoSlot
	}

	// a concurrent answer may land between the load and here
	recorded, err := p.store.RecordResponse(ctx, eventID, domain.ResponseSnoozed)
	if err != nil {
		return domain.ScheduledTaskEvent{}, fmt.Errorf("record snooze: %w", err)
	}
	if !recorded {
		return domain.ScheduledTaskEvent{}, ErrAlreadyAnswered
	}
	return p.Book(ctx, userID, t.ID, slot.Start, slot.End)
}
