package domain

import "time"

const (
	DefaultPriority    = 2
	DefaultEnergyLevel = 1
)

// Task is owned by the task screens; the scheduler only reads it and flips
// Completed through lifecycle responses.
type Task struct {
	ID               int        `json:"id"`
	UserID           int        `json:"user_id"`
	Title            string     `json:"title"`
	Priority         *int       `json:"priority,omitempty"`     // 0..4, 4 is highest
	EnergyLevel      *int       `json:"energy_level,omitempty"` // 0..3
	EstimatedMinutes int        `json:"estimated_minutes"`
	Completed        bool       `json:"completed"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (t Task) PriorityOrDefault() int {
	if t.Priority == nil {
		return DefaultPriority
	}
	return *t.Priority
}

func (t Task) EnergyOrDefault() int {
	if t.EnergyLevel == nil {
		return DefaultEnergyLevel
	}
	return *t.EnergyLevel
}
