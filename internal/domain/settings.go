package domain

import "time"

// SchedulingPreferences as stored; nil fields fall back to defaults when
// resolved by the scheduler.
type SchedulingPreferences struct {
	UserID             int     `json:"user_id"`
	StartHour          *int    `json:"start_hour,omitempty"`
	EndHour            *int    `json:"end_hour,omitempty"`
	AllowedDays        []int   `json:"allowed_days,omitempty"` // 1..7, Monday=1
	Timezone           *string `json:"timezone,omitempty"`
	MorningEndHour     *int    `json:"morning_end_hour,omitempty"`
	AfternoonStartHour *int    `json:"afternoon_start_hour,omitempty"`
	BreakMinutes       *int    `json:"break_minutes,omitempty"`
}

type NotificationSettings struct {
	UserID      int  `json:"user_id"`
	IsEnabled   bool `json:"is_enabled"`
	PushEnabled bool `json:"push_enabled"`
}

// AllowsPush treats a missing record as enabled.
func (s *NotificationSettings) AllowsPush() bool {
	if s == nil {
		return true
	}
	return s.IsEnabled && s.PushEnabled
}

const StateAwaitingTaskCompletion = "awaiting_task_completion"

// ConversationState is the single active chat context for a user.
type ConversationState struct {
	UserID    int            `json:"user_id"`
	State     string         `json:"state"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CalendarToken is the user's Google credential.
type CalendarToken struct {
	UserID       int
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    *time.Time
}
