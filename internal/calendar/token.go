package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/context/ctxhttp"

	"reup-planner-backend/internal/domain"
)

// Tokens are refreshed when they expire within this margin.
const refreshMargin = 5 * time.Minute

var (
	ErrNotConnected = errors.New("calendar not connected")
	ErrTokenExpired = errors.New("calendar token expired")
)

type TokenStore interface {
	GetCalendarToken(ctx context.Context, userID int) (*domain.CalendarToken, error)
	SaveCalendarToken(ctx context.Context, token domain.CalendarToken) error
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// validToken returns a usable credential for the user, exchanging the
// refresh token first when the access token is about to expire.
func (s *Service) validToken(ctx context.Context, userID int) (*domain.CalendarToken, error) {
	tok, err := s.tokens.GetCalendarToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrNotConnected
	}

	if tok.ExpiresAt == nil || tok.ExpiresAt.Sub(s.now()) > refreshMargin {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		if tok.ExpiresAt.After(s.now()) {
			return tok, nil
		}
		return nil, ErrTokenExpired
	}

	if err := s.refresh(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *Service) refresh(ctx context.Context, tok *domain.CalendarToken) error {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}
	req, err := http.NewRequest(http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ctxhttp.Do(ctx, s.http, req)
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh failed (HTTP %d): %s", resp.StatusCode, truncate(string(body), 300))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("parse refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return errors.New("refresh response without access_token")
	}

	tok.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		tok.RefreshToken = tr.RefreshToken // rotated
	}
	if tr.TokenType != "" {
		tok.TokenType = tr.TokenType
	}
	if tr.ExpiresIn > 0 {
		exp := s.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
		tok.ExpiresAt = &exp
	}

	if err := s.tokens.SaveCalendarToken(ctx, *tok); err != nil {
		// the fresh token is still usable for this call
		log.Printf("[WARN] store refreshed calendar token failed user_id=%d: %v", tok.UserID, err)
	}
	log.Printf("[INFO] calendar token refreshed user_id=%d", tok.UserID)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
