package auth

import "context"

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	PrincipalContextKey = ContextKey("principal")
	workerContextKey    = ContextKey("workerContext")
)

// Principal is the authenticated caller attached to a request or CLI context.
type Principal struct {
	ID       string
	Username string
	IsAdmin  bool
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// PrincipalFrom extracts the principal, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(Principal)
	return p, ok
}

// IsAdmin reports whether ctx carries an admin principal.
func IsAdmin(ctx context.Context) bool {
	p, ok := PrincipalFrom(ctx)
	return ok && p.IsAdmin
}

// WithWorkerContext marks ctx as running inside the background job worker.
func WithWorkerContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerContextKey, true)
}

// IsWorkerContext reports whether ctx was marked by WithWorkerContext.
func IsWorkerContext(ctx context.Context) bool {
	v, _ := ctx.Value(workerContextKey).(bool)
	return v
}
