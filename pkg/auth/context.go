package auth

import (
	"context"
)

// Context keys for authentication data
type contextKey string

// ContextKeyUserID is the context key for the authenticated wallet address
const ContextKeyUserID contextKey = "user_id"

// WithUserID adds the authenticated wallet address to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// UserIDFromContext retrieves the authenticated wallet address from the context
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyUserID).(string)
	return id, ok
}
