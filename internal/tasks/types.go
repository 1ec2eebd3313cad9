package tasks

import "time"

type CreateTaskRequest struct {
	Title            string     `json:"title"`
	Priority         *int       `json:"priority"`
	EnergyLevel      *int       `json:"energy_level"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	DueDate          *time.Time `json:"due_date"`
}

// SlotsRequest takes either a stored task or ad-hoc attributes.
type SlotsRequest struct {
	TaskID           int        `json:"task_id"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	Priority         *int       `json:"priority"`
	EnergyLevel      *int       `json:"energy_level"`
	Deadline         *time.Time `json:"deadline"`
}

type ScheduleRequest struct {
	TaskID int       `json:"task_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type SnoozeRequest struct {
	EventID       string `json:"event_id"`
	SnoozeMinutes int    `json:"snooze_minutes"`
}

type CalendarTokenRequest struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresAt    *time.Time `json:"expires_at"`
}
