package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"reup-planner-backend/internal/domain"
	"reup-planner-backend/internal/storage"
)

// foreign_key_violation
const fkViolation = "23503"

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ----------------------
//        TASKS
// ----------------------

func (s *Store) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (user_id, title, priority, energy_level, estimated_minutes, completed, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, t.UserID, t.Title, nullInt(t.Priority), nullInt(t.EnergyLevel), t.EstimatedMinutes, t.Completed, nullTime(t.DueDate),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id int) (domain.Task, error) {
	var (
		t        domain.Task
		priority sql.NullInt64
		energy   sql.NullInt64
		due      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, priority, energy_level, estimated_minutes, completed, due_date, created_at
		FROM tasks
		WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.Title, &priority, &energy, &t.EstimatedMinutes, &t.Completed, &due, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("select task: %w", err)
	}
	t.Priority = intPtr(priority)
	t.EnergyLevel = intPtr(energy)
	t.DueDate = timePtr(due)
	return t, nil
}

func (s *Store) MarkTaskCompleted(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET completed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ----------------------
//        EVENTS
// ----------------------

const eventColumns = `
	id, user_id, task_id, google_event_id, start_time, end_time,
	reminder_sent_at, post_check_sent_at, user_response, claimed_until, created_at`

func (s *Store) CreateEvent(ctx context.Context, e domain.ScheduledTaskEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_task_events (id, user_id, task_id, google_event_id, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.UserID, e.TaskID, nullString(e.GoogleEventID), e.StartTime.UTC(), e.EndTime.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == fkViolation {
			return fmt.Errorf("task %d: %w", e.TaskID, storage.ErrNotFound)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (domain.ScheduledTaskEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM scheduled_task_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScheduledTaskEvent{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.ScheduledTaskEvent{}, fmt.Errorf("select event: %w", err)
	}
	return e, nil
}

func (s *Store) ListByUser(ctx context.Context, userID int) ([]domain.ScheduledTaskEvent, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM scheduled_task_events
		WHERE user_id = $1
		ORDER BY start_time
	`, userID)
}

func (s *Store) ListUpcomingForReminder(ctx context.Context, from, to time.Time) ([]domain.ScheduledTaskEvent, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM scheduled_task_events
		WHERE start_time BETWEEN $1 AND $2
		  AND reminder_sent_at IS NULL
		  AND user_response IS NULL
		ORDER BY start_time
	`, from.UTC(), to.UTC())
}

func (s *Store) ListEndedForPostCheck(ctx context.Context, from, to time.Time) ([]domain.ScheduledTaskEvent, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM scheduled_task_events
		WHERE end_time BETWEEN $1 AND $2
		  AND post_check_sent_at IS NULL
		  AND user_response IS NULL
		ORDER BY end_time
	`, from.UTC(), to.UTC())
}

// ClaimEvent takes a short lease on the event so concurrent trackers do
// not notify twice. An expired lease can be taken over.
func (s *Store) ClaimEvent(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	return s.execOnce(ctx, "claim event", `
		UPDATE scheduled_task_events
		SET claimed_until = $2
		WHERE id = $1 AND (claimed_until IS NULL OR claimed_until <= $3)
	`, id, until.UTC(), now.UTC())
}

func (s *Store) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scheduled_task_events SET claimed_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (s *Store) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return s.execOnce(ctx, "mark reminder", `
		UPDATE scheduled_task_events
		SET reminder_sent_at = $2, claimed_until = NULL
		WHERE id = $1 AND reminder_sent_at IS NULL
	`, id, at.UTC())
}

func (s *Store) MarkPostCheckSent(ctx context.Context, id uuid.UUID, at time.Time, response *domain.Response) (bool, error) {
	var resp sql.NullString
	if response != nil {
		resp = sql.NullString{String: string(*response), Valid: true}
	}
	return s.execOnce(ctx, "mark post-check", `
		UPDATE scheduled_task_events
		SET post_check_sent_at = $2,
		    user_response = COALESCE(user_response, $3),
		    claimed_until = NULL
		WHERE id = $1 AND post_check_sent_at IS NULL
	`, id, at.UTC(), resp)
}

func (s *Store) RecordResponse(ctx context.Context, id uuid.UUID, response domain.Response) (bool, error) {
	return s.execOnce(ctx, "record response", `
		UPDATE scheduled_task_events
		SET user_response = $2
		WHERE id = $1 AND user_response IS NULL
	`, id, string(response))
}

func (s *Store) execOnce(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]domain.ScheduledTaskEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduledTaskEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (domain.ScheduledTaskEvent, error) {
	var (
		e        domain.ScheduledTaskEvent
		gid      sql.NullString
		reminder sql.NullTime
		post     sql.NullTime
		resp     sql.NullString
		claimed  sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.TaskID, &gid, &e.StartTime, &e.EndTime,
		&reminder, &post, &resp, &claimed, &e.CreatedAt); err != nil {
		return domain.ScheduledTaskEvent{}, err
	}
	e.GoogleEventID = gid.String
	e.ReminderSentAt = timePtr(reminder)
	e.PostCheckSentAt = timePtr(post)
	e.ClaimedUntil = timePtr(claimed)
	if resp.Valid {
		r := domain.Response(resp.String)
		e.UserResponse = &r
	}
	return e, nil
}

// ----------------------
//   SETTINGS / PREFS
// ----------------------

func (s *Store) GetSchedulingPreferences(ctx context.Context, userID int) (*domain.SchedulingPreferences, error) {
	var (
		p                            domain.SchedulingPreferences
		start, end, mEnd, aStart, br sql.NullInt64
		tz                           sql.NullString
		days                         []int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, start_hour, end_hour, allowed_days, timezone,
		       morning_end_hour, afternoon_start_hour, break_minutes
		FROM user_scheduling_preferences
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &start, &end, pq.Array(&days), &tz, &mEnd, &aStart, &br)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select preferences: %w", err)
	}
	p.StartHour = intPtr(start)
	p.EndHour = intPtr(end)
	p.MorningEndHour = intPtr(mEnd)
	p.AfternoonStartHour = intPtr(aStart)
	p.BreakMinutes = intPtr(br)
	if tz.Valid {
		p.Timezone = &tz.String
	}
	for _, d := range days {
		p.AllowedDays = append(p.AllowedDays, int(d))
	}
	return &p, nil
}

func (s *Store) SaveSchedulingPreferences(ctx context.Context, p domain.SchedulingPreferences) error {
	var days any
	if p.AllowedDays != nil {
		ds := make([]int64, len(p.AllowedDays))
		for i, d := range p.AllowedDays {
			ds[i] = int64(d)
		}
		days = pq.Array(ds)
	}
	var tz sql.NullString
	if p.Timezone != nil {
		tz = sql.NullString{String: *p.Timezone, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_scheduling_preferences (
			user_id, start_hour, end_hour, allowed_days, timezone,
			morning_end_hour, afternoon_start_hour, break_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id) DO UPDATE SET
			start_hour = EXCLUDED.start_hour,
			end_hour = EXCLUDED.end_hour,
			allowed_days = EXCLUDED.allowed_days,
			timezone = EXCLUDED.timezone,
			morning_end_hour = EXCLUDED.morning_end_hour,
			afternoon_start_hour = EXCLUDED.afternoon_start_hour,
			break_minutes = EXCLUDED.break_minutes,
			updated_at = now()
	`, p.UserID, nullInt(p.StartHour), nullInt(p.EndHour), days, tz,
		nullInt(p.MorningEndHour), nullInt(p.AfternoonStartHour), nullInt(p.BreakMinutes))
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *Store) GetNotificationSettings(ctx context.Context, userID int) (*domain.NotificationSettings, error) {
	var ns domain.NotificationSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, is_enabled, push_enabled
		FROM notification_settings
		WHERE user_id = $1
	`, userID).Scan(&ns.UserID, &ns.IsEnabled, &ns.PushEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select notification settings: %w", err)
	}
	return &ns, nil
}

func (s *Store) SaveNotificationSettings(ctx context.Context, ns domain.NotificationSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_settings (user_id, is_enabled, push_enabled, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			is_enabled = EXCLUDED.is_enabled,
			push_enabled = EXCLUDED.push_enabled,
			updated_at = now()
	`, ns.UserID, ns.IsEnabled, ns.PushEnabled)
	if err != nil {
		return fmt.Errorf("save notification settings: %w", err)
	}
	return nil
}

// ----------------------
//     CONVERSATION
// ----------------------

// UpsertState replaces the user's single active state.
func (s *Store) UpsertState(ctx context.Context, userID int, state string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_states (user_id, state, data, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (user_id) DO UPDATE SET
			state = EXCLUDED.state,
			data = EXCLUDED.data,
			updated_at = now()
	`, userID, state, string(b))
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (s *Store) GetState(ctx context.Context, userID int) (*domain.ConversationState, error) {
	var (
		st  domain.ConversationState
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, state, data, updated_at
		FROM conversation_states
		WHERE user_id = $1
	`, userID).Scan(&st.UserID, &st.State, &raw, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	if err := json.Unmarshal(raw, &st.Data); err != nil {
		return nil, fmt.Errorf("parse state data: %w", err)
	}
	return &st, nil
}

func (s *Store) ClearState(ctx context.Context, userID int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// ----------------------
//    CALENDAR TOKENS
// ----------------------

func (s *Store) GetCalendarToken(ctx context.Context, userID int) (*domain.CalendarToken, error) {
	var (
		t   domain.CalendarToken
		exp sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, access_token, refresh_token, token_type, expires_at
		FROM calendar_tokens
		WHERE user_id = $1
	`, userID).Scan(&t.UserID, &t.AccessToken, &t.RefreshToken, &t.TokenType, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select calendar token: %w", err)
	}
	t.ExpiresAt = timePtr(exp)
	return &t, nil
}

func (s *Store) SaveCalendarToken(ctx context.Context, t domain.CalendarToken) error {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_tokens (user_id, access_token, refresh_token, token_type, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
	`, t.UserID, t.AccessToken, t.RefreshToken, tokenType, nullTime(t.ExpiresAt))
	if err != nil {
		return fmt.Errorf("save calendar token: %w", err)
	}
	return nil
}

// ----------------------
//       HELPERS
// ----------------------

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
