package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/context/ctxhttp"

	"reup-planner-backend/internal/domain"
)

const primaryCalendar = "primary"

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string // e.g. https://www.googleapis.com/calendar/v3
	Timeout      time.Duration
}

// Service talks to Google Calendar on behalf of a user. It is created once
// at startup and shared.
type Service struct {
	cfg    Config
	tokens TokenStore
	http   *http.Client
	now    func() time.Time
}

func New(cfg Config, tokens TokenStore) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// EventInput describes an event to create or patch.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

type Event struct {
	ID       string    `json:"id"`
	Summary  string    `json:"summary"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Status   string    `json:"status"`
	HTMLLink string    `json:"html_link,omitempty"`
	AllDay   bool      `json:"all_day,omitempty"`
}

// Result is the outcome of a write call. Writes never return an error;
// callers branch on Success.
type Result struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type gcalTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type gcalEvent struct {
	ID          string   `json:"id,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	HTMLLink    string   `json:"htmlLink,omitempty"`
	Start       gcalTime `json:"start"`
	End         gcalTime `json:"end"`
}

// BusyTimes queries free/busy for the primary calendar.
func (s *Service) BusyTimes(ctx context.Context, userID int, start, end time.Time) ([]domain.BusyPeriod, error) {
	reqBody := map[string]any{
		"timeMin": start.UTC().Format(time.RFC3339),
		"timeMax": end.UTC().Format(time.RFC3339),
		"items":   []map[string]string{{"id": primaryCalendar}},
	}

	var out struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"calendars"`
	}
	if err := s.call(ctx, userID, http.MethodPost, "/freeBusy", reqBody, &out); err != nil {
		return nil, err
	}

	cal, ok := out.Calendars[primaryCalendar]
	if !ok {
		return nil, fmt.Errorf("freebusy: calendar %q missing from response", primaryCalendar)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freebusy: %s", cal.Errors[0].Reason)
	}

	periods := make([]domain.BusyPeriod, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		bs, err1 := time.Parse(time.RFC3339, b.Start)
		be, err2 := time.Parse(time.RFC3339, b.End)
		if err1 != nil || err2 != nil || !be.After(bs) {
			continue
		}
		periods = append(periods, domain.BusyPeriod{Start: bs, End: be})
	}
	return periods, nil
}

func (s *Service) CreateEvent(ctx context.Context, userID int, in EventInput) Result {
	var out gcalEvent
	path := "/calendars/" + url.PathEscape(primaryCalendar) + "/events"
	if err := s.call(ctx, userID, http.MethodPost, path, buildEvent(in), &out); err != nil {
		log.Printf("[WARN] calendar create event failed user_id=%d: %v", userID, err)
		return Result{Error: err.Error()}
	}
	return Result{Success: true, EventID: out.ID}
}

func (s *Service) UpdateEvent(ctx context.Context, userID int, eventID string, in EventInput) Result {
	var out gcalEvent
	path := "/calendars/" + url.PathEscape(primaryCalendar) + "/events/" + url.PathEscape(eventID)
	if err := s.call(ctx, userID, http.MethodPatch, path, buildEvent(in), &out); err != nil {
		log.Printf("[WARN] calendar update event failed user_id=%d event=%s: %v", userID, eventID, err)
		return Result{EventID: eventID, Error: err.Error()}
	}
	return Result{Success: true, EventID: eventID}
}

func (s *Service) DeleteEvent(ctx context.Context, userID int, eventID string) Result {
	path := "/calendars/" + url.PathEscape(primaryCalendar) + "/events/" + url.PathEscape(eventID)
	if err := s.call(ctx, userID, http.MethodDelete, path, nil, nil); err != nil {
		log.Printf("[WARN] calendar delete event failed user_id=%d event=%s: %v", userID, eventID, err)
		return Result{EventID: eventID, Error: err.Error()}
	}
	return Result{Success: true, EventID: eventID}
}

// ListUpcomingEvents returns up to limit events starting from now.
func (s *Service) ListUpcomingEvents(ctx context.Context, userID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("timeMin", s.now().UTC().Format(time.RFC3339))
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")

	var out struct {
		Items []gcalEvent `json:"items"`
	}
	path := "/calendars/" + url.PathEscape(primaryCalendar) + "/events?" + params.Encode()
	if err := s.call(ctx, userID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(out.Items))
	for _, it := range out.Items {
		ev := Event{ID: it.ID, Summary: it.Summary, Status: it.Status, HTMLLink: it.HTMLLink}
		ev.Start, ev.AllDay = parseGCalTime(it.Start)
		ev.End, _ = parseGCalTime(it.End)
		events = append(events, ev)
	}
	return events, nil
}

func buildEvent(in EventInput) gcalEvent {
	tz := in.TimeZone
	if tz == "" {
		tz = in.Start.Location().String()
	}
	return gcalEvent{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       gcalTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: tz},
		End:         gcalTime{DateTime: in.End.Format(time.RFC3339), TimeZone: tz},
	}
}

func parseGCalTime(t gcalTime) (time.Time, bool) {
	if t.DateTime != "" {
		if v, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return v, false
		}
	}
	if t.Date != "" {
		if v, err := time.Parse("2006-01-02", t.Date); err == nil {
			return v, true
		}
	}
	return time.Time{}, false
}

// call performs an authenticated JSON request against the Calendar API.
func (s *Service) call(ctx context.Context, userID int, method, path string, in, out any) error {
	tok, err := s.validToken(ctx, userID)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, s.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+tok.AccessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ctxhttp.Do(ctx, s.http, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case method == http.MethodDelete && (resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusGone):
		return nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("calendar API error %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
