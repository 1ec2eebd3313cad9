package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"reup-planner-backend/internal/analytics"
)

var secret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken(secret, 42)
	if err != nil {
		t.Fatalf("GenerateToken() err=%v", err)
	}
	uid, err := ParseToken(secret, tok)
	if err != nil || uid != 42 {
		t.Fatalf("ParseToken()=%d, %v", uid, err)
	}
	if _, err := ParseToken([]byte("other"), tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret err=%v, want ErrInvalidToken", err)
	}
}

func TestParseToken_RejectsMissingUser(t *testing.T) {
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString(secret)
	if _, err := ParseToken(secret, tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err=%v, want ErrInvalidToken", err)
	}
}

func TestMiddleware(t *testing.T) {
	var gotUser, gotAnalytics int
	h := New(secret).Wrap(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserIDFromContext(r.Context())
		gotAnalytics, _ = analytics.UserIDFromContext(r.Context())
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no header code=%d, want 401", w.Code)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	h(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token code=%d, want 401", w.Code)
	}

	tok, _ := GenerateToken(secret, 7)
	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	h(w, r)
	if w.Code != http.StatusOK || gotUser != 7 || gotAnalytics != 7 {
		t.Fatalf("code=%d user=%d analytics=%d", w.Code, gotUser, gotAnalytics)
	}
}

func TestMiddleware_SchemeAndChallenge(t *testing.T) {
	tok, _ := GenerateToken(secret, 9)
	h := New(secret).Wrap(func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		header    string
		code      int
		challenge string
	}{
		{"bearer " + tok, http.StatusOK, ""},
		{"BEARER  " + tok, http.StatusOK, ""},
		{"Basic dXNlcjpwYXNz", http.StatusUnauthorized, `Bearer realm="api"`},
		{"Bearer ", http.StatusUnauthorized, `Bearer realm="api"`},
		{"Bearer nope", http.StatusUnauthorized, `Bearer realm="api", error="invalid_token"`},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", tt.header)
		w := httptest.NewRecorder()
		h(w, r)
		if w.Code != tt.code || w.Header().Get("WWW-Authenticate") != tt.challenge {
			t.Fatalf("%q: code=%d challenge=%q, want %d %q", tt.header, w.Code, w.Header().Get("WWW-Authenticate"), tt.code, tt.challenge)
		}
	}
}
