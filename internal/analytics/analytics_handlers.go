package analytics

import (
	"encoding/json"
	"net/http"
)

// slot_picked: the user chose one of the suggested slots
func SlotPickedHandler(rec *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			TaskID    int    `json:"task_id"`
			SlotIndex int    `json:"slot_index"` // 0..2
			IsMorning bool   `json:"is_morning"`
			Source    string `json:"source"` // suggest/snooze/unknown
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		env := FromRequest(r)
		env.UserID = uid

		props := map[string]any{
			"task_id":    body.TaskID,
			"slot_index": body.SlotIndex,
			"is_morning": body.IsMorning,
			"source":     body.Source,
		}

		rec.Log(r.Context(), env, "slot_picked", props, SourceEventKeyFromRequest(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

// reminder_opened: a calendar push was tapped
func ReminderOpenedHandler(rec *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			EventID string `json:"event_id"`
			TaskID  int    `json:"task_id"`
			Type    string `json:"type"` // calendar_start/calendar_post_check
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		env := FromRequest(r)
		env.UserID = uid

		props := map[string]any{
			"event_id": body.EventID,
			"task_id":  body.TaskID,
			"type":     body.Type,
		}

		rec.Log(r.Context(), env, "reminder_opened", props, SourceEventKeyFromRequest(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
