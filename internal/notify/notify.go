package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/context/ctxhttp"
)

type Push struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// SendResult is what the gateway reports for one user. Success means at
// least one device accepted the message.
type SendResult struct {
	Success     bool `json:"success"`
	SentCount   int  `json:"sent_count"`
	FailedCount int  `json:"failed_count"`
}

type Sender interface {
	SendPush(ctx context.Context, userID int, p Push) (SendResult, error)
}

// Gateway posts pushes to an HTTP push service that fans out to the
// user's registered devices.
type Gateway struct {
	url  string
	key  string
	http *http.Client
}

func NewGateway(url, key string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		url:  strings.TrimRight(url, "/"),
		key:  key,
		http: &http.Client{Timeout: timeout},
	}
}

func (g *Gateway) SendPush(ctx context.Context, userID int, p Push) (SendResult, error) {
	b, err := json.Marshal(struct {
		UserID int `json:"user_id"`
		Push
	}{userID, p})
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal push: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, g.url+"/send", bytes.NewReader(b))
	if err != nil {
		return SendResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.key != "" {
		req.Header.Set("Authorization", "Bearer "+g.key)
	}

	resp, err := ctxhttp.Do(ctx, g.http, req)
	if err != nil {
		return SendResult{}, fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SendResult{}, fmt.Errorf("push gateway error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Sent   int `json:"sent"`
		Failed int `json:"failed"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return SendResult{}, fmt.Errorf("parse gateway response: %w", err)
	}
	return SendResult{
		Success:     out.Sent > 0,
		SentCount:   out.Sent,
		FailedCount: out.Failed,
	}, nil
}

// LogSender is used when no gateway is configured.
type LogSender struct{}

func (LogSender) SendPush(ctx context.Context, userID int, p Push) (SendResult, error) {
	log.Printf("[INFO] push (log only) user_id=%d title=%q data=%v", userID, p.Title, p.Data)
	return SendResult{Success: true, SentCount: 1}, nil
}
