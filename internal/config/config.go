package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	Storage     string
	CORSOrigins []string
	JWTSecret   []byte

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleTokenURL     string
	GoogleCalendarURL  string
	CalendarFailOpen   bool
	CalendarTimeout    time.Duration

	PushGatewayURL string
	PushGatewayKey string

	SchedulerInterval    time.Duration
	SchedulerTickTimeout time.Duration
	ClaimLease           time.Duration
	ShutdownTimeout      time.Duration
}

func Load() *Config {

	// DB_PORT
	port, err := strconv.Atoi(os.Getenv("DB_PORT"))
	if err != nil {
		port = 5432 // fallback
	}

	return &Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Storage:     getenv("STORAGE", "postgres"),
		CORSOrigins: splitList(getenv("CORS_ORIGINS", "*")),
		JWTSecret:   []byte(getenv("JWT_SECRET", "SUPER_SECRET_KEY_CHANGE_ME")),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     port,
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleTokenURL:     getenv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		GoogleCalendarURL:  getenv("GOOGLE_CALENDAR_URL", "https://www.googleapis.com/calendar/v3"),
		CalendarFailOpen:   getbool("CALENDAR_FAIL_OPEN", true),
		CalendarTimeout:    getdur("CALENDAR_HTTP_TIMEOUT", 10*time.Second),

		PushGatewayURL: os.Getenv("PUSH_GATEWAY_URL"),
		PushGatewayKey: os.Getenv("PUSH_GATEWAY_KEY"),

		SchedulerInterval:    getdur("SCHEDULER_INTERVAL", 2*time.Minute),
		SchedulerTickTimeout: getdur("SCHEDULER_TICK_TIMEOUT", 90*time.Second),
		ClaimLease:           getdur("CLAIM_LEASE", 2*time.Minute),
		ShutdownTimeout:      getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getdur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getbool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
