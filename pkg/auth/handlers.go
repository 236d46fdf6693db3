package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// LoginRequest carries a console token to exchange for a cookie.
type LoginRequest struct {
	Token string `json:"token"`
}

// LoginResponse is the JSON reply of all auth handlers.
type LoginResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	Message   string `json:"message"`
}

func setHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

// HandleLogin validates a console token posted in the body and stores it in
// the console_token cookie, so a browser can open the console without
// putting the token in the URL.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8192)).Decode(&req); err != nil || req.Token == "" {
		logger.AuthWarn("Malformed login request from %s", getClientIP(r))
		respondWithError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	claims, err := ValidateConsoleToken(req.Token)
	if err != nil {
		logger.AuthWarn("Login with invalid token from %s: %v", getClientIP(r), err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    req.Token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	logger.AuthInfo("Session %s logged in from %s", claims.SessionID, getClientIP(r))
	json.NewEncoder(w).Encode(LoginResponse{
		Success:   true,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Unix(),
		Message:   "Login successful",
	})
}

// HandleTokenValidation reports the session of the token in the request.
func HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "GET, POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	tokenString, err := ExtractTokenFromRequest(r)
	if err != nil {
		logger.AuthWarn("No token found in validation request: %v", err)
		respondWithError(w, "Token not found", http.StatusUnauthorized)
		return
	}
	claims, err := ValidateConsoleToken(tokenString)
	if err != nil {
		logger.AuthWarn("Token validation failed: %v", err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	logger.AuthDebug("Token validated for session: %s", claims.SessionID)
	json.NewEncoder(w).Encode(LoginResponse{
		Success:   true,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Unix(),
		Message:   "Token valid",
	})
}

// HandleLogout clears the token cookie.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	logger.AuthInfo("Token cookie cleared for %s", getClientIP(r))
	json.NewEncoder(w).Encode(LoginResponse{
		Success: true,
		Message: "Logout successful",
	})
}

// getClientIP prefers proxy headers over RemoteAddr.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(LoginResponse{
		Success: false,
		Message: message,
	})
}
