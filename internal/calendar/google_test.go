package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"reup-planner-backend/internal/domain"
)

type memTokens struct {
	mu     sync.Mutex
	tokens map[int]domain.CalendarToken
	saved  int
}

func newMemTokens(toks ...domain.CalendarToken) *memTokens {
	m := &memTokens{tokens: make(map[int]domain.CalendarToken)}
	for _, t := range toks {
		m.tokens[t.UserID] = t
	}
	return m
}

func (m *memTokens) GetCalendarToken(ctx context.Context, userID int) (*domain.CalendarToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[userID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memTokens) SaveCalendarToken(ctx context.Context, token domain.CalendarToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.UserID] = token
	m.saved++
	return nil
}

var testNow = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

func timep(t time.Time) *time.Time { return &t }

func newTestService(t *testing.T, api http.Handler, tokenHandler http.HandlerFunc, tokens *memTokens) *Service {
	t.Helper()
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	tokenURL := ""
	if tokenHandler != nil {
		tokenSrv := httptest.NewServer(tokenHandler)
		t.Cleanup(tokenSrv.Close)
		tokenURL = tokenSrv.URL
	}

	s := New(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     tokenURL,
		BaseURL:      apiSrv.URL + "/",
		Timeout:      2 * time.Second,
	}, tokens)
	s.now = func() time.Time { return testNow }
	return s
}

func freeBusyHandler(t *testing.T, wantToken string, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freeBusy" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+wantToken {
			t.Errorf("Authorization=%q, want Bearer %s", got, wantToken)
		}
		var req struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Items) != 1 || req.Items[0].ID != "primary" {
			t.Errorf("items=%v, want primary", req.Items)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestBusyTimes_ParsesFreeBusy(t *testing.T) {
	tokens := newMemTokens(domain.CalendarToken{UserID: 1, AccessToken: "tok", ExpiresAt: timep(testNow.Add(time.Hour))})
	body := `{"calendars":{"primary":{"busy":[
		{"start":"2026-10-12T10:00:00Z","end":"2026-10-12T11:00:00Z"},
		{"start":"bogus","end":"2026-10-12T12:00:00Z"},
		{"start":"2026-10-12T15:00:00+02:00","end":"2026-10-12T16:30:00+02:00"}
	]}}}`
	s := newTestService(t, freeBusyHandler(t, "tok", body), nil, tokens)

	busy, err := s.BusyTimes(context.Background(), 1, testNow, testNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("BusyTimes() err=%v", err)
	}
	if len(busy) != 2 {
		t.Fatalf("len(busy)=%d, want 2 (malformed entry skipped)", len(busy))
	}
	if !busy[1].Start.Equal(time.Date(2026, 10, 12, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("busy[1].Start=%v", busy[1].Start)
	}
	if tokens.saved != 0 {
		t.Fatalf("token refreshed unexpectedly")
	}
}

func TestBusyTimes_RefreshesExpiringToken(t *testing.T) {
	tokens := newMemTokens(domain.CalendarToken{
		UserID:       1,
		AccessToken:  "old",
		RefreshToken: "refresh",
		ExpiresAt:    timep(testNow.Add(4 * time.Minute)),
	})

	var refreshCalls int
	tokenHandler := func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":3600,"token_type":"Bearer"}`))
	}
	s := newTestService(t, freeBusyHandler(t, "new", `{"calendars":{"primary":{"busy":[]}}}`), tokenHandler, tokens)

	if _, err := s.BusyTimes(context.Background(), 1, testNow, testNow.Add(time.Hour)); err != nil {
		t.Fatalf("BusyTimes() err=%v", err)
	}
	if refreshCalls != 1 {
		t.Fatalf("refresh calls=%d, want 1", refreshCalls)
	}
	stored, _ := tokens.GetCalendarToken(context.Background(), 1)
	if stored.AccessToken != "new" || stored.RefreshToken != "refresh" {
		t.Fatalf("stored token=%+v", stored)
	}
	if !stored.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("ExpiresAt=%v", stored.ExpiresAt)
	}
}

func TestBusyTimes_NotConnected(t *testing.T) {
	s := newTestService(t, http.NotFoundHandler(), nil, newMemTokens())
	if _, err := s.BusyTimes(context.Background(), 7, testNow, testNow.Add(time.Hour)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err=%v, want ErrNotConnected", err)
	}
}

func TestBusyTimes_ExpiredWithoutRefreshToken(t *testing.T) {
	tokens := newMemTokens(domain.CalendarToken{UserID: 1, AccessToken: "tok", ExpiresAt: timep(testNow.Add(-time.Minute))})
	s := newTestService(t, http.NotFoundHandler(), nil, tokens)
	if _, err := s.BusyTimes(context.Background(), 1, testNow, testNow.Add(time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err=%v, want ErrTokenExpired", err)
	}
}

func TestBusyProvider_FailPolicy(t *testing.T) {
	tokens := newMemTokens(domain.CalendarToken{
		UserID:       1,
		AccessToken:  "old",
		RefreshToken: "refresh",
		ExpiresAt:    timep(testNow.Add(time.Minute)),
	})
	failingRefresh := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}
	s := newTestService(t, http.NotFoundHandler(), failingRefresh, tokens)

	open := NewBusyProvider(s, true)
	avail, err := open.BusyTimes(context.Background(), 1, testNow, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("fail-open err=%v, want nil", err)
	}
	if !avail.Degraded || len(avail.Busy) != 0 {
		t.Fatalf("fail-open avail=%+v, want degraded and empty", avail)
	}

	closed := NewBusyProvider(s, false)
	if _, err := closed.BusyTimes(context.Background(), 1, testNow, testNow.Add(time.Hour)); err == nil {
		t.Fatalf("fail-closed err=nil, want error")
	}
}

func TestBusyProvider_MalformedResponseDegrades(t *testing.T) {
	tokens := newMemTokens(domain.CalendarToken{UserID: 1, AccessToken: "tok"})
	s := newTestService(t, freeBusyHandler(t, "tok", `{"calendars":`), nil, tokens)

	avail, err := NewBusyProvider(s, true).BusyTimes(context.Background(), 1, testNow, testNow.Add(time.Hour))
	if err != nil || !avail.Degraded {
		t.Fatalf("avail=%+v err=%v, want degraded", avail, err)
	}
}

func TestEventWrites(t *testing.T) {
	tokens := newMemTokens(domain.CalendarToken{UserID: 1, AccessToken: "tok"})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		var ev gcalEvent
		_ = json.NewDecoder(r.Body).Decode(&ev)
		if ev.Summary != "Write report" || ev.Start.TimeZone != "Europe/Paris" {
			t.Errorf("unexpected body %+v", ev)
		}
		_, _ = w.Write([]byte(`{"id":"gcal-1","status":"confirmed"}`))
	})
	mux.HandleFunc("PATCH /calendars/primary/events/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("DELETE /calendars/primary/events/gcal-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s := newTestService(t, mux, nil, tokens)

	in := EventInput{
		Summary:  "Write report",
		Start:    testNow,
		End:      testNow.Add(time.Hour),
		TimeZone: "Europe/Paris",
	}
	if res := s.CreateEvent(context.Background(), 1, in); !res.Success || res.EventID != "gcal-1" {
		t.Fatalf("CreateEvent()=%+v", res)
	}
	if res := s.UpdateEvent(context.Background(), 1, "missing", in); res.Success || res.Error == "" {
		t.Fatalf("UpdateEvent()=%+v, want failure", res)
	}
	if res := s.DeleteEvent(context.Background(), 1, "gcal-1"); !res.Success {
		t.Fatalf("DeleteEvent()=%+v", res)
	}
	if res := s.CreateEvent(context.Background(), 99, in); res.Success {
		t.Fatalf("CreateEvent() for unconnected user succeeded")
	}
}

func TestListUpcomingEvents(t *testing.T) {
	tokens := newMemTokens(domain.CalendarToken{UserID: 1, AccessToken: "tok"})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("singleEvents") != "true" || r.URL.Query().Get("maxResults") != "5" {
			t.Errorf("query=%v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`{"items":[
			{"id":"a","summary":"Standup","start":{"dateTime":"2026-10-12T09:30:00Z"},"end":{"dateTime":"2026-10-12T09:45:00Z"}},
			{"id":"b","summary":"Holiday","start":{"date":"2026-10-13"},"end":{"date":"2026-10-14"}}
		]}`))
	})
	s := newTestService(t, mux, nil, tokens)

	events, err := s.ListUpcomingEvents(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("ListUpcomingEvents() err=%v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events)=%d, want 2", len(events))
	}
	if events[0].AllDay || !events[1].AllDay {
		t.Fatalf("AllDay flags wrong: %+v", events)
	}
	if events[0].End.Sub(events[0].Start) != 15*time.Minute {
		t.Fatalf("event[0] duration=%v", events[0].End.Sub(events[0].Start))
	}
}
