package middleware

import "context"

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
	requestIDKey
)

func valueString(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

// UserIDFromContext returns the authenticated user id set by Auth or SocketAuth.
func UserIDFromContext(ctx context.Context) string { return valueString(ctx, userIDKey) }

func RoleFromContext(ctx context.Context) string { return valueString(ctx, roleKey) }

func RequestIDFromContext(ctx context.Context) string { return valueString(ctx, requestIDKey) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDKey, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withValue(ctx, roleKey, role)
}
