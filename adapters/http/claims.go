package authhttp

import (
	"context"
)

// Claims is the authenticated principal attached by Required.
type Claims struct {
	UserID    string
	Email     string
	SessionID string
}

type claimsCtxKey struct{}

func setClaims(ctx context.Context, cl Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, cl)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	v := ctx.Value(claimsCtxKey{})
	if v == nil {
		return Claims{}, false
	}
	cl, ok := v.(Claims)
	return cl, ok
}

// WithClaims attaches claims to ctx. Hosts with their own session middleware
// use it instead of Required.
func WithClaims(ctx context.Context, cl Claims) context.Context { return setClaims(ctx, cl) }
