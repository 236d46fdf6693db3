package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewSessionID(t *testing.T) {
	sessionID1 := NewSessionID()
	sessionID2 := NewSessionID()

	if sessionID1 == "" {
		t.Error("Session ID should not be empty")
	}
	if sessionID1 == sessionID2 {
		t.Error("Session IDs should be unique")
	}
	if len(sessionID1) != 36 {
		t.Errorf("Expected a 36 character UUID, got %d characters", len(sessionID1))
	}
}

func TestConsoleTokenGeneration(t *testing.T) {
	sessionID := "test-session-123"

	token, err := GenerateConsoleToken(sessionID)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("Generated token should not be empty")
	}

	claims, err := ValidateConsoleToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.SessionID != sessionID {
		t.Errorf("Expected session ID %s, got %s", sessionID, claims.SessionID)
	}
	if claims.Issuer != "retrobasic" {
		t.Errorf("Expected issuer retrobasic, got %s", claims.Issuer)
	}
}

func TestConsoleTokenGeneratesSessionID(t *testing.T) {
	token, err := GenerateConsoleToken("")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	claims, err := ValidateConsoleToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.SessionID == "" {
		t.Error("Expected a generated session ID")
	}
}

func signClaims(t *testing.T, claims ConsoleClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestRejectedTokens(t *testing.T) {
	now := time.Now()
	valid := func(subject, sid string) ConsoleClaims {
		return ConsoleClaims{
			SessionID: sid,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now),
				Subject:   subject,
			},
		}
	}
	expired := valid("console", "s1")
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"invalid format", "invalid.token.here"},
		{"incomplete", "eyJ0eXAiOiJKV1QiLCJhbGciOiJIUzI1NiJ9"},
		{"expired", signClaims(t, expired, getJWTSecret())},
		{"wrong secret", signClaims(t, valid("console", "s1"), "some-other-secret")},
		{"wrong subject", signClaims(t, valid("guest", "s1"), getJWTSecret())},
		{"no session", signClaims(t, valid("console", ""), getJWTSecret())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateConsoleToken(tt.token); err == nil {
				t.Errorf("Token %q should be invalid", tt.token)
			}
		})
	}
}

func TestExtractTokenFromRequest(t *testing.T) {
	token, err := GenerateConsoleToken("test-session-extract")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		wantErr bool
	}{
		{"authorization header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, false},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookieName, Value: token}) }, false},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, false},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token "+token) }, true},
		{"nothing", func(r *http.Request) {}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/console", nil)
			tt.prepare(req)
			got, err := ExtractTokenFromRequest(req)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected an error, got token %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got != token {
				t.Errorf("Expected token %s, got %s", token, got)
			}
		})
	}
}

func TestRequireConsoleToken(t *testing.T) {
	token, err := GenerateConsoleToken("mw-session")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	var seen string
	handler := RequireConsoleToken(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaimsFromContext(r.Context())
		if !ok {
			t.Error("Expected claims in the request context")
			return
		}
		seen = claims.SessionID
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest("GET", "/console", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if seen != "mw-session" {
		t.Errorf("Expected session mw-session, got %q", seen)
	}

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/console?token=bogus", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestLoginHandler(t *testing.T) {
	token, err := GenerateConsoleToken("login-session")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	body, _ := json.Marshal(LoginRequest{Token: token})

	req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	HandleLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var response LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !response.Success || response.SessionID != "login-session" {
		t.Errorf("Expected success for login-session, got %+v", response)
	}

	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == TokenCookieName && c.Value == token {
			found = true
		}
	}
	if !found {
		t.Error("Login should set the console_token cookie")
	}
}

func TestLoginHandlerInvalidRequest(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		body         string
		expectedCode int
	}{
		{"wrong method", "GET", "", http.StatusMethodNotAllowed},
		{"malformed body", "POST", "{", http.StatusBadRequest},
		{"missing token", "POST", "{}", http.StatusBadRequest},
		{"invalid token", "POST", `{"token":"invalid.token.here"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/auth/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			HandleLogin(w, req)
			if w.Code != tt.expectedCode {
				t.Errorf("Expected status %d, got %d", tt.expectedCode, w.Code)
			}
		})
	}
}

func TestTokenValidationHandler(t *testing.T) {
	sessionID := "test-session-validate"
	token, err := GenerateConsoleToken(sessionID)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	tests := []struct {
		name         string
		header       string
		expectedCode int
	}{
		{"valid", fmt.Sprintf("Bearer %s", token), http.StatusOK},
		{"no token", "", http.StatusUnauthorized},
		{"invalid token", "Bearer invalid.token.here", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/auth/validate", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			HandleTokenValidation(w, req)

			if w.Code != tt.expectedCode {
				t.Fatalf("Expected status %d, got %d", tt.expectedCode, w.Code)
			}
			if tt.expectedCode != http.StatusOK {
				return
			}
			var response LoginResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if response.SessionID != sessionID {
				t.Errorf("Expected session ID %s, got %s", sessionID, response.SessionID)
			}
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HandleLogout(w, httptest.NewRequest("POST", "/api/auth/logout", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	found := false
	for _, cookie := range w.Header()["Set-Cookie"] {
		if strings.Contains(cookie, TokenCookieName) &&
			(strings.Contains(cookie, "Max-Age=-1") || strings.Contains(cookie, "Max-Age=0")) {
			found = true
		}
	}
	if !found {
		t.Error("Logout should clear the console_token cookie")
	}
}

func TestSessionIDFromContext(t *testing.T) {
	ctx := NewContextWithSessionID(context.Background(), "abc")
	if got := SessionIDFromContext(ctx); got != "abc" {
		t.Errorf("Expected abc, got %s", got)
	}
	if got := SessionIDFromContext(context.Background()); got == "" {
		t.Error("Expected a fresh session ID for an empty context")
	}
}

func BenchmarkTokenValidation(b *testing.B) {
	token, err := GenerateConsoleToken("benchmark-session")
	if err != nil {
		b.Fatalf("Failed to generate token: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ValidateConsoleToken(token); err != nil {
			b.Fatalf("Failed to validate token: %v", err)
		}
	}
}
