package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"reup-planner-backend/internal/analytics"
	"reup-planner-backend/internal/domain"
	"reup-planner-backend/internal/notify"
)

const (
	reminderLead    = 5 * time.Minute
	postCheckMin    = 2 * time.Minute
	postCheckMax    = 10 * time.Minute
	pushTypeStart   = "calendar_start"
	pushTypeCheck   = "calendar_post_check"
	defaultInterval = 2 * time.Minute
)

type Store interface {
	GetTask(ctx context.Context, id int) (domain.Task, error)
	ListUpcomingForReminder(ctx context.Context, from, to time.Time) ([]domain.ScheduledTaskEvent, error)
	ListEndedForPostCheck(ctx context.Context, from, to time.Time) ([]domain.ScheduledTaskEvent, error)
	ClaimEvent(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkPostCheckSent(ctx context.Context, id uuid.UUID, at time.Time, response *domain.Response) (bool, error)
	GetNotificationSettings(ctx context.Context, userID int) (*domain.NotificationSettings, error)
	UpsertState(ctx context.Context, userID int, state string, data map[string]any) error
}

type Config struct {
	Interval    time.Duration
	TickTimeout time.Duration
	ClaimLease  time.Duration
}

type Status struct {
	IsStarted bool       `json:"is_started"`
	NextRun   *time.Time `json:"next_run"`
}

// Tracker polls scheduled task events and sends the start reminder and
// the post-check push. Ticks never overlap.
type Tracker struct {
	store Store
	push  notify.Sender
	rec   *analytics.Recorder
	cfg   Config
	now   func() time.Time

	mu      sync.Mutex
	running bool
	nextRun time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup

	tickMu sync.Mutex
}

func New(store Store, push notify.Sender, rec *analytics.Recorder, cfg Config) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = cfg.Interval
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = cfg.Interval
	}
	return &Tracker{
		store: store,
		push:  push,
		rec:   rec,
		cfg:   cfg,
		now:   time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Start runs one tick right away and then one per interval.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		log.Printf("[INFO] lifecycle tracker already running")
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.nextRun = t.now().Add(t.cfg.Interval)

	stop := t.stopCh
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.Interval)
		defer ticker.Stop()

		log.Printf("[INFO] lifecycle tracker started interval=%s", t.cfg.Interval)
		t.runTick()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.mu.Lock()
				t.nextRun = t.now().Add(t.cfg.Interval)
				t.mu.Unlock()
				t.runTick()
			}
		}
	}()
}

// Stop waits for an in-flight tick to finish.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
	log.Printf("[INFO] lifecycle tracker stopped")
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return Status{}
	}
	next := t.nextRun
	return Status{IsStarted: true, NextRun: &next}
}

func (t *Tracker) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.TickTimeout)
	defer cancel()
	t.Tick(ctx)
}

// Tick runs both scans once. A tick that starts while another is still
// running is skipped.
func (t *Tracker) Tick(ctx context.Context) {
	if !t.tickMu.TryLock() {
		log.Printf("[WARN] lifecycle tick skipped: previous tick still running")
		return
	}
	defer t.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] lifecycle tick panic: %v", r)
		}
	}()

	now := t.now()

	upcoming, err := t.store.ListUpcomingForReminder(ctx, now, now.Add(reminderLead))
	if err != nil {
		log.Printf("[ERROR] list upcoming events: %v", err)
	}
	for _, e := range upcoming {
		if err := t.remind(ctx, e, now); err != nil {
			log.Printf("[WARN] reminder failed event_id=%s task_id=%d user_id=%d: %v", e.ID, e.TaskID, e.UserID, err)
		}
	}

	ended, err := t.store.ListEndedForPostCheck(ctx, now.Add(-postCheckMax), now.Add(-postCheckMin))
	if err != nil {
		log.Printf("[ERROR] list ended events: %v", err)
	}
	for _, e := range ended {
		if err := t.postCheck(ctx, e, now); err != nil {
			log.Printf("[WARN] post-check failed event_id=%s task_id=%d user_id=%d: %v", e.ID, e.TaskID, e.UserID, err)
		}
	}
}

func (t *Tracker) remind(ctx context.Context, e domain.ScheduledTaskEvent, now time.Time) error {
	if ok, err := t.pushAllowed(ctx, e.UserID); err != nil || !ok {
		return err
	}

	task, err := t.store.GetTask(ctx, e.TaskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	// finished ahead of time, nothing to start
	if task.Completed {
		if _, err := t.store.MarkReminderSent(ctx, e.ID, now); err != nil {
			return fmt.Errorf("mark reminder skipped: %w", err)
		}
		return nil
	}

	claimed, err := t.store.ClaimEvent(ctx, e.ID, now, now.Add(t.cfg.ClaimLease))
	if err != nil || !claimed {
		return err
	}

	p := notify.Push{
		Title: "C'est l'heure !",
		Body:  fmt.Sprintf("« %s » commence maintenant.", task.Title),
		Data: map[string]any{
			"type":    pushTypeStart,
			"taskId":  e.TaskID,
			"eventId": e.ID.String(),
		},
	}
	if err := t.send(ctx, e, p); err != nil {
		return err
	}

	if _, err := t.store.MarkReminderSent(ctx, e.ID, now); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	t.rec.Log(ctx, analytics.Server(e.UserID), analytics.EventReminderSent,
		map[string]any{"task_id": e.TaskID, "event_id": e.ID.String()}, "reminder:"+e.ID.String())
	return nil
}

func (t *Tracker) postCheck(ctx context.Context, e domain.ScheduledTaskEvent, now time.Time) error {
	task, err := t.store.GetTask(ctx, e.TaskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task.Completed {
		done := domain.ResponseDone
		if _, err := t.store.MarkPostCheckSent(ctx, e.ID, now, &done); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		return nil
	}

	if ok, err := t.pushAllowed(ctx, e.UserID); err != nil || !ok {
		return err
	}

	claimed, err := t.store.ClaimEvent(ctx, e.ID, now, now.Add(t.cfg.ClaimLease))
	if err != nil || !claimed {
		return err
	}

	p := notify.Push{
		Title: "Tâche terminée ?",
		Body:  fmt.Sprintf("As-tu terminé « %s » ?", task.Title),
		Data: map[string]any{
			"type":    pushTypeCheck,
			"taskId":  e.TaskID,
			"eventId": e.ID.String(),
			"actions": []string{
				string(domain.ResponseDone),
				string(domain.ResponseNotDone),
				string(domain.ResponseSnoozed),
			},
		},
	}
	if err := t.send(ctx, e, p); err != nil {
		return err
	}

	if _, err := t.store.MarkPostCheckSent(ctx, e.ID, now, nil); err != nil {
		return fmt.Errorf("mark post-check sent: %w", err)
	}
	err = t.store.UpsertState(ctx, e.UserID, domain.StateAwaitingTaskCompletion, map[string]any{
		"eventId":   e.ID.String(),
		"taskId":    e.TaskID,
		"taskTitle": task.Title,
	})
	if err != nil {
		return fmt.Errorf("save conversation state: %w", err)
	}
	t.rec.Log(ctx, analytics.Server(e.UserID), analytics.EventPostCheckSent,
		map[string]any{"task_id": e.TaskID, "event_id": e.ID.String()}, "post_check:"+e.ID.String())
	return nil
}

// send releases the claim unless delivery is confirmed, so the event is
// picked up again on the next tick.
func (t *Tracker) send(ctx context.Context, e domain.ScheduledTaskEvent, p notify.Push) error {
	res, err := t.push.SendPush(ctx, e.UserID, p)
	if err == nil && !res.Success {
		err = fmt.Errorf("push not delivered (failed=%d)", res.FailedCount)
	}
	if err != nil {
		if rerr := t.store.ReleaseClaim(ctx, e.ID); rerr != nil {
			log.Printf("[WARN] release claim event_id=%s: %v", e.ID, rerr)
		}
		return fmt.Errorf("send push: %w", err)
	}
	return nil
}

func (t *Tracker) pushAllowed(ctx context.Context, userID int) (bool, error) {
	ns, err := t.store.GetNotificationSettings(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load notification settings: %w", err)
	}
	return ns.AllowsPush(), nil
}
