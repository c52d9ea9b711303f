package shared

import "context"

type contextKey string

const (
	callerKey contextKey = "caller_account"
	adminKey  contextKey = "admin"
)

// ContextWithCaller stores the authenticated caller account on the context.
func ContextWithCaller(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, callerKey, account)
}

// CallerFromContext returns the authenticated caller account, if any.
func CallerFromContext(ctx context.Context) string {
	account, _ := ctx.Value(callerKey).(string)
	return account
}

// ContextWithAdmin marks the context as carrying administrator privileges.
func ContextWithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey, true)
}

// IsAdmin reports whether the context carries administrator privileges.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(adminKey).(bool)
	return admin
}
