package conversation

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"reup-planner-backend/internal/auth"
	"reup-planner-backend/internal/planner"
)

// POST /conversation/reply
func ReplyHandler(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Text) == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}

		reply, err := h.HandleReply(r.Context(), uid, body.Text)
		switch {
		case errors.Is(err, ErrUnrecognized):
			http.Error(w, "reply not understood", http.StatusUnprocessableEntity)
			return
		case errors.Is(err, ErrNoPendingEvent):
			http.Error(w, "no pending event", http.StatusNotFound)
			return
		case errors.Is(err, planner.ErrAlreadyAnswered):
			http.Error(w, "event already answered", http.StatusConflict)
			return
		case err != nil:
			log.Printf("[ERROR] conversation reply user_id=%d: %v", uid, err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}
}
