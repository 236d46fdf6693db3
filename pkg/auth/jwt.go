package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Defaults; actual values come from the [JWT] section.
	defaultJWTSecret       = "fallback_secret_change_in_production"
	defaultTokenExpiration = 24 * time.Hour

	tokenIssuer  = "retrobasic"
	tokenSubject = "console"

	// TokenCookieName is the cookie checked after the Authorization header.
	TokenCookieName = "console_token"
)

// getJWTSecret retrieves the signing secret from the environment or configuration.
func getJWTSecret() string {
	if envSecret := os.Getenv("RETROBASIC_JWT_SECRET"); envSecret != "" {
		return envSecret
	}

	secret := configuration.GetString("JWT", "secret_key", "")
	if secret == "" {
		logger.AuthWarn("Using fallback JWT secret - set RETROBASIC_JWT_SECRET for production!")
		return defaultJWTSecret
	}
	return secret
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "token_expiration_hours", 0)
	if hours <= 0 {
		return defaultTokenExpiration
	}
	return time.Duration(hours) * time.Hour
}

// ConsoleClaims are carried by a remote console token. The session ID names
// the interpreter session opened with the token.
type ConsoleClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// GenerateConsoleToken signs a console token for sessionID. An empty
// sessionID gets a new one.
func GenerateConsoleToken(sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	now := time.Now()
	claims := ConsoleClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   tokenSubject,
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("token could not be signed: %w", err)
	}
	logger.AuthInfo("Console token generated for session ID: %s", sessionID)
	return signedToken, nil
}

// ValidateConsoleToken checks signature, expiry and subject of a console token.
func ValidateConsoleToken(tokenString string) (*ConsoleClaims, error) {
	secretKey := getJWTSecret()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&ConsoleClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(secretKey), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*ConsoleClaims)
	if !ok {
		return nil, fmt.Errorf("could not extract token claims")
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, fmt.Errorf("token has expired")
	}
	if claims.Subject != tokenSubject {
		return nil, fmt.Errorf("token subject %q is not a console token", claims.Subject)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("token carries no session ID")
	}
	return claims, nil
}

// ExtractTokenFromRequest extracts the token from the Authorization header
// (Bearer), the console_token cookie or the token query parameter, in that
// order. Browsers cannot set headers on a WebSocket upgrade, hence the query.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return cookie.Value, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("no token found in request")
}

// RequireConsoleToken is middleware rejecting requests without a valid
// console token. The claims are added to the request context.
func RequireConsoleToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.AuthWarn("No token in request from %s: %v", getClientIP(r), err)
			http.Error(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}

		claims, err := ValidateConsoleToken(tokenString)
		if err != nil {
			logger.AuthWarn("Invalid token from %s: %v", getClientIP(r), err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(AddClaimsToContext(r.Context(), claims)))
	}
}
