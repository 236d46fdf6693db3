package auth

import (
	"context"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	claimsKey    contextKey = "jwt_claims"
)

// NewContextWithSessionID returns ctx carrying sessionID.
func NewContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionIDFromContext returns the session ID stored in ctx, if any.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionIDKey).(string)
	return sessionID, ok && sessionID != ""
}

// SessionIDFromContext returns the session ID stored in ctx or a fresh one
// for unauthenticated consoles.
func SessionIDFromContext(ctx context.Context) string {
	if sessionID, ok := GetSessionIDFromContext(ctx); ok {
		return sessionID
	}
	return NewSessionID()
}

// AddClaimsToContext stores claims and their session ID in ctx.
func AddClaimsToContext(ctx context.Context, claims *ConsoleClaims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	if claims != nil {
		ctx = NewContextWithSessionID(ctx, claims.SessionID)
	}
	return ctx
}

// GetClaimsFromContext returns the claims stored by AddClaimsToContext.
func GetClaimsFromContext(ctx context.Context) (*ConsoleClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*ConsoleClaims)
	return claims, ok && claims != nil
}
