package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

type CtxKey string

const (
	ctxUserIDKey CtxKey = "analytics_user_id"
)

const (
	EventSlotsSuggested   = "task_slots_suggested"
	EventTaskScheduled    = "task_scheduled"
	EventReminderSent     = "calendar_reminder_sent"
	EventPostCheckSent    = "calendar_post_check_sent"
	EventResponseRecorded = "calendar_response_recorded"
)

// Envelope is what we store with every event.
type Envelope struct {
	UserID       int
	SessionID    string
	Platform     string
	AppVersion   string
	DeviceLocale string
}

// FromRequest extracts event envelope fields from request.
// Backend-trustable fields only.
func FromRequest(r *http.Request) Envelope {
	platform := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Platform")))
	if platform != "ios" && platform != "android" && platform != "web" {
		platform = "unknown"
	}

	locale := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if locale == "" {
		locale = strings.TrimSpace(r.Header.Get("X-Device-Locale"))
	}

	return Envelope{
		SessionID:    strings.TrimSpace(r.Header.Get("X-Session-Id")),
		Platform:     platform,
		AppVersion:   strings.TrimSpace(r.Header.Get("X-App-Version")),
		DeviceLocale: locale,
	}
}

// Server builds the envelope for events emitted by background jobs.
func Server(userID int) Envelope {
	return Envelope{UserID: userID, Platform: "server"}
}

func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(ctxUserIDKey)
	if v == nil {
		return 0, false
	}
	uid, ok := v.(int)
	return uid, ok
}

// Client-provided idempotency key (optional)
// If present and duplicates, insert is ignored.
func SourceEventKeyFromRequest(r *http.Request) string {
	k := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-Source-Event-Key"))
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Recorder writes analytics_events rows. A nil Recorder drops everything,
// which is what the memory storage mode uses.
type Recorder struct {
	db  Execer
	now func() time.Time
}

func NewRecorder(db Execer) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Log inserts one analytics event.
// Never logs sensitive raw text; caller passes sanitized props.
// Failures are logged and swallowed so the core flow never breaks.
func (rec *Recorder) Log(ctx context.Context, env Envelope, eventName string, props any, sourceEventKey string) {
	if rec == nil || rec.db == nil || eventName == "" {
		return
	}

	userID := env.UserID
	if userID == 0 {
		uid, ok := UserIDFromContext(ctx)
		if !ok {
			return
		}
		userID = uid
	}

	b, err := json.Marshal(props)
	if err != nil {
		return
	}

	// If source_event_key duplicates -> do nothing
	_, err = rec.db.ExecContext(ctx, `
		INSERT INTO analytics_events (
			event_name, event_time,
			user_id, session_id,
			platform, app_version, device_locale,
			source_event_key,
			properties
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT (source_event_key) DO NOTHING
	`, eventName, rec.now().UTC(),
		userID, nullIfEmpty(env.SessionID),
		env.Platform, env.AppVersion, nullIfEmpty(env.DeviceLocale),
		nullIfEmpty(sourceEventKey),
		string(b),
	)
	if err != nil {
		log.Printf("[WARN] analytics %s user_id=%d: %v", eventName, userID, err)
	}
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
