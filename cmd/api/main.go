package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/cors"

	"reup-planner-backend/internal/analytics"
	"reup-planner-backend/internal/auth"
	"reup-planner-backend/internal/calendar"
	"reup-planner-backend/internal/config"
	"reup-planner-backend/internal/conversation"
	"reup-planner-backend/internal/db"
	"reup-planner-backend/internal/lifecycle"
	"reup-planner-backend/internal/notify"
	"reup-planner-backend/internal/planner"
	"reup-planner-backend/internal/scheduling"
	"reup-planner-backend/internal/storage"
	"reup-planner-backend/internal/storage/memory"
	"reup-planner-backend/internal/storage/postgres"
	"reup-planner-backend/internal/tasks"
)

func main() {
	cfg := config.Load()

	var (
		store storage.Store
		rec   *analytics.Recorder
	)
	switch cfg.Storage {
	case "memory":
		store = memory.New()
		log.Println("[INFO] using in-memory storage")
	default:
		database, err := db.Connect(cfg.ConnString())
		if err != nil {
			log.Fatal("❌ Failed to connect DB:", err)
		}
		defer database.Close()

		if err := db.Migrate(context.Background(), database); err != nil {
			log.Fatal("❌ Failed to migrate DB:", err)
		}
		log.Println("✅ Connected to PostgreSQL!")

		store = postgres.New(database)
		rec = analytics.NewRecorder(database)
	}

	gcal := calendar.New(calendar.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		TokenURL:     cfg.GoogleTokenURL,
		BaseURL:      cfg.GoogleCalendarURL,
		Timeout:      cfg.CalendarTimeout,
	}, store)
	busy := calendar.NewBusyProvider(gcal, cfg.CalendarFailOpen)

	prefs := scheduling.NewPreferenceResolver(store)
	finder := scheduling.NewSlotFinder(prefs, busy)
	plan := planner.New(store, gcal, finder, prefs, rec)
	replies := conversation.NewHandler(store, plan, rec)

	var sender notify.Sender = notify.LogSender{}
	if cfg.PushGatewayURL != "" {
		sender = notify.NewGateway(cfg.PushGatewayURL, cfg.PushGatewayKey, cfg.CalendarTimeout)
	} else {
		log.Println("[WARN] PUSH_GATEWAY_URL not set, pushes are only logged")
	}

	tracker := lifecycle.New(store, sender, rec, lifecycle.Config{
		Interval:    cfg.SchedulerInterval,
		TickTimeout: cfg.SchedulerTickTimeout,
		ClaimLease:  cfg.ClaimLease,
	})

	authMW := auth.New(cfg.JWTSecret)
	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// ----- SCHEDULING API -----
	mux.HandleFunc("/tasks", authMW.Wrap(tasks.CreateTaskHandler(store)))
	mux.HandleFunc("/tasks/slots", authMW.Wrap(tasks.SuggestSlotsHandler(plan, finder)))
	mux.HandleFunc("/tasks/schedule", authMW.Wrap(tasks.ScheduleTaskHandler(plan)))
	mux.HandleFunc("/tasks/snooze", authMW.Wrap(tasks.SnoozeHandler(plan)))
	mux.HandleFunc("/calendar/events", authMW.Wrap(tasks.ListEventsHandler(store, gcal)))
	mux.HandleFunc("/calendar/token", authMW.Wrap(tasks.CalendarTokenHandler(store)))
	mux.HandleFunc("/settings/scheduling", authMW.Wrap(tasks.SchedulingPreferencesHandler(store)))
	mux.HandleFunc("/settings/notifications", authMW.Wrap(tasks.NotificationSettingsHandler(store)))
	mux.HandleFunc("/scheduler/status", authMW.Wrap(tasks.SchedulerStatusHandler(tracker)))
	mux.HandleFunc("/conversation/reply", authMW.Wrap(conversation.ReplyHandler(replies)))

	// ----- ANALYTICS -----
	mux.HandleFunc("/analytics/slot_picked", authMW.Wrap(analytics.SlotPickedHandler(rec)))
	mux.HandleFunc("/analytics/reminder_opened", authMW.Wrap(analytics.ReminderOpenedHandler(rec)))

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Platform", "X-App-Version", "X-Session-Id"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: c.Handler(mux),
	}

	tracker.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 API server is running on %s", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case sig := <-stop:
		log.Printf("[INFO] signal %s received, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] server error: %v", err)
		}
		tracker.Stop()
		return
	}

	tracker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[ERROR] shutdown error: %v", err)
	}
	log.Printf("[INFO] shut down gracefully")
}
