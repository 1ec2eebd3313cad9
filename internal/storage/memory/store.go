package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reup-planner-backend/internal/domain"
	"reup-planner-backend/internal/storage"
)

// Store keeps everything in process memory. Conditional mutations hold
// the same guarantees as the SQL store: each one succeeds at most once.
type Store struct {
	mu sync.Mutex

	nextTaskID int
	tasks      map[int]domain.Task
	events     map[uuid.UUID]domain.ScheduledTaskEvent
	prefs      map[int]domain.SchedulingPreferences
	settings   map[int]domain.NotificationSettings
	states     map[int]domain.ConversationState
	tokens     map[int]domain.CalendarToken

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		nextTaskID: 1,
		tasks:      make(map[int]domain.Task),
		events:     make(map[uuid.UUID]domain.ScheduledTaskEvent),
		prefs:      make(map[int]domain.SchedulingPreferences),
		settings:   make(map[int]domain.NotificationSettings),
		states:     make(map[int]domain.ConversationState),
		tokens:     make(map[int]domain.CalendarToken),
		now:        time.Now,
	}
}

func (s *Store) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextTaskID
	}
	if t.ID >= s.nextTaskID {
		s.nextTaskID = t.ID + 1
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id int) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) MarkTaskCompleted(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.Completed = true
	s.tasks[id] = t
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, e domain.ScheduledTaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.events[e.ID] = e
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (domain.ScheduledTaskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return domain.ScheduledTaskEvent{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListByUser(ctx context.Context, userID int) ([]domain.ScheduledTaskEvent, error) {
	return s.filter(func(e domain.ScheduledTaskEvent) bool {
		return e.UserID == userID
	}), nil
}

func (s *Store) ListUpcomingForReminder(ctx context.Context, from, to time.Time) ([]domain.ScheduledTaskEvent, error) {
	return s.filter(func(e domain.ScheduledTaskEvent) bool {
		return e.ReminderSentAt == nil && e.UserResponse == nil &&
			!e.StartTime.Before(from) && !e.StartTime.After(to)
	}), nil
}

func (s *Store) ListEndedForPostCheck(ctx context.Context, from, to time.Time) ([]domain.ScheduledTaskEvent, error) {
	return s.filter(func(e domain.ScheduledTaskEvent) bool {
		return e.PostCheckSentAt == nil && e.UserResponse == nil &&
			!e.EndTime.Before(from) && !e.EndTime.After(to)
	}), nil
}

func (s *Store) filter(keep func(domain.ScheduledTaskEvent) bool) []domain.ScheduledTaskEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScheduledTaskEvent, 0)
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (s *Store) ClaimEvent(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if e.ClaimedUntil != nil && e.ClaimedUntil.After(now) {
		return false, nil
	}
	e.ClaimedUntil = &until
	s.events[id] = e
	return true, nil
}

func (s *Store) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	e.ClaimedUntil = nil
	s.events[id] = e
	return nil
}

func (s *Store) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if e.ReminderSentAt != nil {
		return false, nil
	}
	e.ReminderSentAt = &at
	e.ClaimedUntil = nil
	s.events[id] = e
	return true, nil
}

func (s *Store) MarkPostCheckSent(ctx context.Context, id uuid.UUID, at time.Time, response *domain.Response) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if e.PostCheckSentAt != nil {
		return false, nil
	}
	e.PostCheckSentAt = &at
	if response != nil && e.UserResponse == nil {
		r := *response
		e.UserResponse = &r
	}
	e.ClaimedUntil = nil
	s.events[id] = e
	return true, nil
}

func (s *Store) RecordResponse(ctx context.Context, id uuid.UUID, response domain.Response) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if e.UserResponse != nil {
		return false, nil
	}
	e.UserResponse = &response
	s.events[id] = e
	return true, nil
}

func (s *Store) GetSchedulingPreferences(ctx context.Context, userID int) (*domain.SchedulingPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, nil
	}
	p.AllowedDays = append([]int(nil), p.AllowedDays...)
	return &p, nil
}

func (s *Store) SaveSchedulingPreferences(ctx context.Context, p domain.SchedulingPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.AllowedDays = append([]int(nil), p.AllowedDays...)
	s.prefs[p.UserID] = p
	return nil
}

func (s *Store) GetNotificationSettings(ctx context.Context, userID int) (*domain.NotificationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.settings[userID]
	if !ok {
		return nil, nil
	}
	return &ns, nil
}

func (s *Store) SaveNotificationSettings(ctx context.Context, ns domain.NotificationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[ns.UserID] = ns
	return nil
}

// UpsertState replaces whatever state the user had.
func (s *Store) UpsertState(ctx context.Context, userID int, state string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(data))
	for k, v := range data {
		cp[k] = v
	}
	s.states[userID] = domain.ConversationState{
		UserID:    userID,
		State:     state,
		Data:      cp,
		UpdatedAt: s.now().UTC(),
	}
	return nil
}

func (s *Store) GetState(ctx context.Context, userID int) (*domain.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) ClearState(ctx context.Context, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

func (s *Store) GetCalendarToken(ctx context.Context, userID int) (*domain.CalendarToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[userID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) SaveCalendarToken(ctx context.Context, token domain.CalendarToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.UserID] = token
	return nil
}
