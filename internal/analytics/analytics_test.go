package analytics

import (
	"context"
	"database/sql"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeExec struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil, f.err
}

func TestRecorder_Log(t *testing.T) {
	db := &fakeExec{}
	rec := NewRecorder(db)

	rec.Log(context.Background(), Server(5), EventReminderSent, map[string]any{"task_id": 1}, "reminder:abc")

	if len(db.queries) != 1 {
		t.Fatalf("queries=%d, want 1", len(db.queries))
	}
	args := db.args[0]
	if args[0] != EventReminderSent || args[2] != 5 {
		t.Fatalf("unexpected args %v", args)
	}
	if key := args[7].(sql.NullString); !key.Valid || key.String != "reminder:abc" {
		t.Fatalf("source key=%v", key)
	}
	if props := args[8].(string); !strings.Contains(props, `"task_id":1`) {
		t.Fatalf("props=%s", props)
	}
}

func TestRecorder_UserFromContext(t *testing.T) {
	db := &fakeExec{}
	rec := NewRecorder(db)

	rec.Log(context.Background(), Envelope{}, EventTaskScheduled, nil, "")
	if len(db.queries) != 0 {
		t.Fatalf("logged without a user")
	}

	rec.Log(WithUserID(context.Background(), 9), Envelope{}, EventTaskScheduled, nil, "")
	if len(db.queries) != 1 || db.args[0][2] != 9 {
		t.Fatalf("user from context not used: %v", db.args)
	}
}

func TestRecorder_NilAndFailureAreSilent(t *testing.T) {
	var rec *Recorder
	rec.Log(context.Background(), Server(1), EventTaskScheduled, nil, "")

	failing := NewRecorder(&fakeExec{err: errors.New("db down")})
	failing.Log(context.Background(), Server(1), EventTaskScheduled, nil, "")
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Platform", "IOS")
	r.Header.Set("X-Device-Locale", "fr-FR")
	r.Header.Set("Idempotency-Key", " k1 ")

	env := FromRequest(r)
	if env.Platform != "ios" || env.DeviceLocale != "fr-FR" {
		t.Fatalf("FromRequest()=%+v", env)
	}
	if SourceEventKeyFromRequest(r) != "k1" {
		t.Fatalf("SourceEventKeyFromRequest()=%q", SourceEventKeyFromRequest(r))
	}

	r.Header.Set("X-Platform", "fridge")
	if FromRequest(r).Platform != "unknown" {
		t.Fatalf("unexpected platform accepted")
	}
}

func TestSlotPickedHandler(t *testing.T) {
	db := &fakeExec{}
	h := SlotPickedHandler(NewRecorder(db))

	r := httptest.NewRequest("POST", "/analytics/slot_picked", strings.NewReader(`{"task_id":3,"slot_index":1}`))
	w := httptest.NewRecorder()
	h(w, r)
	if w.Code != 401 {
		t.Fatalf("code=%d without user, want 401", w.Code)
	}

	r = httptest.NewRequest("POST", "/analytics/slot_picked", strings.NewReader(`{"task_id":3,"slot_index":1}`))
	r = r.WithContext(WithUserID(r.Context(), 2))
	w = httptest.NewRecorder()
	h(w, r)
	if w.Code != 200 || len(db.queries) != 1 || db.args[0][0] != "slot_picked" {
		t.Fatalf("code=%d queries=%d", w.Code, len(db.queries))
	}
}
