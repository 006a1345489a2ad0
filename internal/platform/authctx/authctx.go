// Package authctx carries the authenticated principal through a request context.
package authctx

import "context"

type contextKey struct{ name string }

var principalKey = contextKey{"principal"}

// Principal is the caller established by the auth middleware from a validated access token.
type Principal struct {
	UserID    string
	Email     string
	SessionID string
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal from ctx and true if one with a user id is set.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != ""
}
