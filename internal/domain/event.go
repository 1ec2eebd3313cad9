package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Response string

const (
	ResponseDone    Response = "done"
	ResponseNotDone Response = "not_done"
	ResponseSnoozed Response = "snoozed"
)

func ParseResponse(s string) (Response, error) {
	switch r := Response(s); r {
	case ResponseDone, ResponseNotDone, ResponseSnoozed:
		return r, nil
	}
	return "", fmt.Errorf("unknown response %q", s)
}

// ScheduledTaskEvent is one placed occurrence of a task on the calendar.
// ReminderSentAt and PostCheckSentAt are set at most once; a non-nil
// UserResponse freezes the event.
type ScheduledTaskEvent struct {
	ID              uuid.UUID  `json:"id"`
	UserID          int        `json:"user_id"`
	TaskID          int        `json:"task_id"`
	GoogleEventID   string     `json:"google_event_id,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	ReminderSentAt  *time.Time `json:"reminder_sent_at,omitempty"`
	PostCheckSentAt *time.Time `json:"post_check_sent_at,omitempty"`
	UserResponse    *Response  `json:"user_response,omitempty"`
	ClaimedUntil    *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Settled reports whether the user already answered for this event.
func (e ScheduledTaskEvent) Settled() bool {
	return e.UserResponse != nil
}

// BusyPeriod is an occupied interval reported by the calendar provider.
type BusyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps uses half-open intervals: touching edges do not overlap.
func (b BusyPeriod) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// Availability is the busy data for a window. Degraded means the provider
// could not be reached and Busy is empty because it is unknown, not free.
type Availability struct {
	Busy     []BusyPeriod `json:"busy_periods"`
	Degraded bool         `json:"degraded"`
}
