package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"reup-planner-backend/internal/auth"
	"reup-planner-backend/internal/calendar"
	"reup-planner-backend/internal/domain"
	"reup-planner-backend/internal/lifecycle"
	"reup-planner-backend/internal/planner"
	"reup-planner-backend/internal/scheduling"
	"reup-planner-backend/internal/storage"
)

type Store interface {
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	ListByUser(ctx context.Context, userID int) ([]domain.ScheduledTaskEvent, error)
	GetSchedulingPreferences(ctx context.Context, userID int) (*domain.SchedulingPreferences, error)
	SaveSchedulingPreferences(ctx context.Context, p domain.SchedulingPreferences) error
	GetNotificationSettings(ctx context.Context, userID int) (*domain.NotificationSettings, error)
	SaveNotificationSettings(ctx context.Context, s domain.NotificationSettings) error
	SaveCalendarToken(ctx context.Context, token domain.CalendarToken) error
}

type UpcomingLister interface {
	ListUpcomingEvents(ctx context.Context, userID, limit int) ([]calendar.Event, error)
}

type StatusReporter interface {
	Status() lifecycle.Status
}

// POST /tasks
func CreateTaskHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r, http.MethodPost)
		if !ok {
			return
		}

		var body CreateTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		title := strings.TrimSpace(body.Title)
		if title == "" {
			http.Error(w, "title is required", http.StatusBadRequest)
			return
		}
		if body.EstimatedMinutes <= 0 {
			body.EstimatedMinutes = 30
		}
		if msg := checkLevels(body.Priority, body.EnergyLevel); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}

		t, err := store.CreateTask(r.Context(), domain.Task{
			UserID:           uid,
			Title:            title,
			Priority:         body.Priority,
			EnergyLevel:      body.EnergyLevel,
			EstimatedMinutes: body.EstimatedMinutes,
			DueDate:          body.DueDate,
		})
		if err != nil {
			log.Printf("[ERROR] create task user_id=%d: %v", uid, err)
			http.Error(w, "db insert error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

// POST /tasks/slots
func SuggestSlotsHandler(p *planner.Planner, finder *scheduling.SlotFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r, http.MethodPost)
		if !ok {
			return
		}

		var body SlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if msg := checkLevels(body.Priority, body.EnergyLevel); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}

		var (
			res scheduling.SlotResult
			err error
		)
		if body.TaskID > 0 {
			res, err = p.Suggest(r.Context(), uid, body.TaskID)
		} else {
			res, err = finder.FindBestSlots(r.Context(), scheduling.SlotRequest{
				UserID:           uid,
				EstimatedMinutes: body.EstimatedMinutes,
				Priority:         body.Priority,
				EnergyLevel:      body.EnergyLevel,
				Deadline:         body.Deadline,
			})
		}
		if err != nil {
			writeError(w, uid, "suggest slots", err)
			return
		}
		if res.Slots == nil {
			res.Slots = []scheduling.SlotOption{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /tasks/schedule
func ScheduleTaskHandler(p *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r, http.MethodPost)
		if !ok {
			return
		}

		var body ScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.TaskID <= 0 {
			http.Error(w, "task_id is required", http.StatusBadRequest)
			return
		}

		e, err := p.Book(r.Context(), uid, body.TaskID, body.Start, body.End)
		if err != nil {
			writeError(w, uid, "schedule task", err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

// POST /tasks/snooze
func SnoozeHandler(p *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r, http.MethodPost)
		if !ok {
			return
		}

		var body SnoozeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		eventID, err := uuid.Parse(body.EventID)
		if err != nil {
			http.Error(w, "invalid event_id", http.StatusBadRequest)
			return
		}

		e, err := p.Snooze(r.Context(), uid, eventID, body.SnoozeMinutes)
		if err != nil {
			writeError(w, uid, "snooze", err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

// GET /calendar/events
// ?source=google returns the user's upcoming Google events instead.
func ListEventsHandler(store Store, cal UpcomingLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r, http.MethodGet)
		if !ok {
			return
		}

		if r.URL.Query().Get("source") == "google" {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			events, err := cal.ListUpcomingEvents(r.Context(), uid, limit)
			if err != nil {
				writeError(w, uid, "list google events", err)
				return
			}
			writeJSON(w, http.StatusOK, events)
			return
		}

		events, err := store.ListByUser(r.Context(), uid)
		if err != nil {
			log.Printf("[ERROR] list events user_id=%d: %v", uid, err)
			http.Error(w, "db query error", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []domain.ScheduledTaskEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// GET /scheduler/status
func SchedulerStatusHandler(tr StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userID(w, r, http.MethodGet); !ok {
			return
		}
		writeJSON(w, http.StatusOK, tr.Status())
	}
}

// GET|PUT /settings/scheduling
func SchedulingPreferencesHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodGet:
			p, err := store.GetSchedulingPreferences(r.Context(), uid)
			if err != nil {
				log.Printf("[ERROR] get preferences user_id=%d: %v", uid, err)
				http.Error(w, "db query error", http.StatusInternalServerError)
				return
			}
			if p == nil {
				p = &domain.SchedulingPreferences{UserID: uid}
			}
			writeJSON(w, http.StatusOK, p)
		case http.MethodPut:
			var body domain.SchedulingPreferences
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			body.UserID = uid
			if err := store.SaveSchedulingPreferences(r.Context(), body); err != nil {
				log.Printf("[ERROR] save preferences user_id=%d: %v", uid, err)
				http.Error(w, "db update error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, body)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// GET|PUT /settings/notifications
func NotificationSettingsHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodGet:
			ns, err := store.GetNotificationSettings(r.Context(), uid)
			if err != nil {
				log.Printf("[ERROR] get notification settings user_id=%d: %v", uid, err)
				http.Error(w, "db query error", http.StatusInternalServerError)
				return
			}
			if ns == nil {
				ns = &domain.NotificationSettings{UserID: uid, IsEnabled: true, PushEnabled: true}
			}
			writeJSON(w, http.StatusOK, ns)
		case http.MethodPut:
			var body domain.NotificationSettings
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			body.UserID = uid
			if err := store.SaveNotificationSettings(r.Context(), body); err != nil {
				log.Printf("[ERROR] save notification settings user_id=%d: %v", uid, err)
				http.Error(w, "db update error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, body)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// POST /calendar/token
// Stores the credential obtained by the client's OAuth flow.
func CalendarTokenHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r, http.MethodPost)
		if !ok {
			return
		}

		var body CalendarTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.AccessToken == "" {
			http.Error(w, "access_token is required", http.StatusBadRequest)
			return
		}

		err := store.SaveCalendarToken(r.Context(), domain.CalendarToken{
			UserID:       uid,
			AccessToken:  body.AccessToken,
			RefreshToken: body.RefreshToken,
			TokenType:    body.TokenType,
			ExpiresAt:    body.ExpiresAt,
		})
		if err != nil {
			log.Printf("[ERROR] save calendar token user_id=%d: %v", uid, err)
			http.Error(w, "db update error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func userID(w http.ResponseWriter, r *http.Request, method string) (int, bool) {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return 0, false
	}
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return uid, true
}

// checkLevels returns a client message for an out-of-range priority or
// energy level, or "" when both are absent or valid.
func checkLevels(priority, energy *int) string {
	if priority != nil && (*priority < 0 || *priority > scheduling.MaxPriority) {
		return "priority must be between 0 and 4"
	}
	if energy != nil && (*energy < 0 || *energy > scheduling.MaxEnergyLevel) {
		return "energy_level must be between 0 and 3"
	}
	return ""
}

func writeError(w http.ResponseWriter, uid int, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, scheduling.ErrInvalidDuration), errors.Is(err, planner.ErrInvalidWindow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, planner.ErrNoSlot):
		http.Error(w, "no free slot", http.StatusNotFound)
	case errors.Is(err, planner.ErrAlreadyAnswered):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, calendar.ErrNotConnected), errors.Is(err, calendar.ErrTokenExpired):
		http.Error(w, "calendar not connected", http.StatusConflict)
	case errors.Is(err, scheduling.ErrBusyUnavailable):
		log.Printf("[WARN] %s user_id=%d: %v", op, uid, err)
		http.Error(w, "calendar unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("[ERROR] %s user_id=%d: %v", op, uid, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] encode response: %v", err)
	}
}
