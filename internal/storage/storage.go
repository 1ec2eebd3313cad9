package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"reup-planner-backend/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store is the full persistence surface used by the API process. Each
// consumer package declares the narrower slice it needs.
type Store interface {
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, id int) (domain.Task, error)
	MarkTaskCompleted(ctx context.Context, id int) error

	CreateEvent(ctx context.Context, e domain.ScheduledTaskEvent) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.ScheduledTaskEvent, error)
	ListByUser(ctx context.Context, userID int) ([]domain.ScheduledTaskEvent, error)
	ListUpcomingForReminder(ctx context.Context, from, to time.Time) ([]domain.ScheduledTaskEvent, error)
	ListEndedForPostCheck(ctx context.Context, from, to time.Time) ([]domain.ScheduledTaskEvent, error)
	ClaimEvent(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkPostCheckSent(ctx context.Context, id uuid.UUID, at time.Time, response *domain.Response) (bool, error)
	RecordResponse(ctx context.Context, id uuid.UUID, response domain.Response) (bool, error)

	GetSchedulingPreferences(ctx context.Context, userID int) (*domain.SchedulingPreferences, error)
	SaveSchedulingPreferences(ctx context.Context, p domain.SchedulingPreferences) error

	GetNotificationSettings(ctx context.Context, userID int) (*domain.NotificationSettings, error)
	SaveNotificationSettings(ctx context.Context, s domain.NotificationSettings) error

	UpsertState(ctx context.Context, userID int, state string, data map[string]any) error
	GetState(ctx context.Context, userID int) (*domain.ConversationState, error)
	ClearState(ctx context.Context, userID int) error

	GetCalendarToken(ctx context.Context, userID int) (*domain.CalendarToken, error)
	SaveCalendarToken(ctx context.Context, token domain.CalendarToken) error
}
