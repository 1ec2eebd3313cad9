package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"reup-planner-backend/internal/analytics"
	"reup-planner-backend/internal/domain"
	"reup-planner-backend/internal/planner"
)

var (
	ErrNoPendingEvent = errors.New("no event awaiting a reply")
	ErrUnrecognized   = errors.New("reply not understood")
)

type Store interface {
	GetState(ctx context.Context, userID int) (*domain.ConversationState, error)
	ClearState(ctx context.Context, userID int) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.ScheduledTaskEvent, error)
	RecordResponse(ctx context.Context, id uuid.UUID, response domain.Response) (bool, error)
	MarkTaskCompleted(ctx context.Context, id int) error
}

type Snoozer interface {
	Snooze(ctx context.Context, userID int, eventID uuid.UUID, snoozeMinutes int) (domain.ScheduledTaskEvent, error)
}

type Handler struct {
	store   Store
	snoozer Snoozer
	rec     *analytics.Recorder
}

func NewHandler(store Store, snoozer Snoozer, rec *analytics.Recorder) *Handler {
	return &Handler{store: store, snoozer: snoozer, rec: rec}
}

type Reply struct {
	EventID     uuid.UUID                  `json:"event_id"`
	TaskID      int                        `json:"task_id"`
	Response    domain.Response            `json:"response"`
	Rescheduled *domain.ScheduledTaskEvent `json:"rescheduled,omitempty"`
}

var (
	notDonePhrases = []string{"pas fait", "pas fini", "pas terminé", "pas termine", "not done", "not yet", "pas encore"}
	snoozePhrases  = []string{"plus tard", "later", "snooze", "snoozed", "reporter", "reporte", "repousser", "décaler", "decaler"}
	doneWords      = []string{"done", "oui", "yes", "fait", "fini", "terminé", "termine", "ok", "yep", "ouais"}
	notDoneWords   = []string{"non", "no", "nope", "not_done"}
)

// ParseReply maps a free-text answer to a response. Negations are checked
// before the affirmative words they contain.
func ParseReply(text string) (domain.Response, bool) {
	norm := normalize(text)
	if norm == "" {
		return "", false
	}
	padded := " " + norm + " "

	for _, p := range notDonePhrases {
		if strings.Contains(padded, " "+p+" ") {
			return domain.ResponseNotDone, true
		}
	}
	for _, p := range snoozePhrases {
		if strings.Contains(padded, " "+p+" ") {
			return domain.ResponseSnoozed, true
		}
	}

	words := strings.Fields(norm)
	for _, w := range words {
		for _, nd := range notDoneWords {
			if w == nd {
				return domain.ResponseNotDone, true
			}
		}
	}
	for _, w := range words {
		for _, d := range doneWords {
			if w == d {
				return domain.ResponseDone, true
			}
		}
	}
	return "", false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// HandleReply correlates a free-text reply with the event the user was
// last asked about. The state is cleared once the answer is recorded.
func (h *Handler) HandleReply(ctx context.Context, userID int, text string) (Reply, error) {
	resp, ok := ParseReply(text)
	if !ok {
		return Reply{}, ErrUnrecognized
	}

	st, err := h.store.GetState(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("load state: %w", err)
	}
	if st == nil || st.State != domain.StateAwaitingTaskCompletion {
		return Reply{}, ErrNoPendingEvent
	}

	raw, _ := st.Data["eventId"].(string)
	eventID, err := uuid.Parse(raw)
	if err != nil {
		log.Printf("[WARN] conversation state without event id user_id=%d: %v", userID, err)
		_ = h.store.ClearState(ctx, userID)
		return Reply{}, ErrNoPendingEvent
	}

	ev, err := h.store.GetEvent(ctx, eventID)
	if err != nil {
		return Reply{}, fmt.Errorf("load event: %w", err)
	}

	if ev.Settled() {
		h.clear(ctx, userID)
		return Reply{}, planner.ErrAlreadyAnswered
	}

	out := Reply{EventID: ev.ID, TaskID: ev.TaskID, Response: resp}
	switch resp {
	case domain.ResponseSnoozed:
		next, err := h.snoozer.Snooze(ctx, userID, ev.ID, 0)
		switch {
		case err == nil:
			out.Rescheduled = &next
		case errors.Is(err, planner.ErrNoSlot):
			if err := h.record(ctx, userID, ev.ID, resp); err != nil {
				return Reply{}, err
			}
		case errors.Is(err, planner.ErrAlreadyAnswered):
			h.clear(ctx, userID)
			return Reply{}, err
		default:
			return Reply{}, fmt.Errorf("snooze: %w", err)
		}
	case domain.ResponseDone:
		if err := h.record(ctx, userID, ev.ID, resp); err != nil {
			return Reply{}, err
		}
		if err := h.store.MarkTaskCompleted(ctx, ev.TaskID); err != nil {
			return Reply{}, fmt.Errorf("complete task: %w", err)
		}
	default:
		if err := h.record(ctx, userID, ev.ID, resp); err != nil {
			return Reply{}, err
		}
	}

	h.clear(ctx, userID)
	h.rec.Log(ctx, analytics.Server(userID), analytics.EventResponseRecorded,
		map[string]any{"task_id": ev.TaskID, "event_id": ev.ID.String(), "response": string(resp)},
		"response:"+ev.ID.String())
	return out, nil
}

// record stores the response. An event answered through another path leaves
// the state stale, so it is dropped.
func (h *Handler) record(ctx context.Context, userID int, eventID uuid.UUID, resp domain.Response) error {
	recorded, err := h.store.RecordResponse(ctx, eventID, resp)
	if err != nil {
		return fmt.Errorf("record response: %w", err)
	}
	if !recorded {
		h.clear(ctx, userID)
		return planner.ErrAlreadyAnswered
	}
	return nil
}

func (h *Handler) clear(ctx context.Context, userID int) {
	if err := h.store.ClearState(ctx, userID); err != nil {
		log.Printf("[WARN] clear conversation state user_id=%d: %v", userID, err)
	}
}
