package principal

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Principal is an authenticated caller identity: an account or another program.
type Principal string

// String returns the principal's account identifier.
func (p Principal) String() string { return string(p) }

// IsZero reports whether p names no account.
func (p Principal) IsZero() bool { return strings.TrimSpace(string(p)) == "" }

// Parse normalizes raw into a Principal, rejecting empty identifiers.
func Parse(raw string) (Principal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("principal: empty identifier")
	}
	return Principal(trimmed), nil
}

// ErrNotAuthenticated signals that the current call carries no proof of
// authorization from the named principal.
var ErrNotAuthenticated = errors.New("principal: authorization missing")

// Authorizer verifies that the current call was authorized by p.
type Authorizer interface {
	RequireAuth(ctx context.Context, p Principal) error
}

type ctxKey struct{}

// WithAuth returns a context proving authorization from each of ps in
// addition to any principals ctx already carries.
func WithAuth(ctx context.Context, ps ...Principal) context.Context {
	prev, _ := ctx.Value(ctxKey{}).(map[Principal]struct{})
	next := make(map[Principal]struct{}, len(prev)+len(ps))
	for p := range prev {
		next[p] = struct{}{}
	}
	for _, p := range ps {
		if !p.IsZero() {
			next[p] = struct{}{}
		}
	}
	return context.WithValue(ctx, ctxKey{}, next)
}

// Authenticated reports whether ctx carries authorization from p.
func Authenticated(ctx context.Context, p Principal) bool {
	set, _ := ctx.Value(ctxKey{}).(map[Principal]struct{})
	_, ok := set[p]
	return ok
}

// ContextAuthorizer trusts the principals attached with WithAuth. The
// transport layer attaches them after verifying a bearer token.
type ContextAuthorizer struct{}

// RequireAuth implements Authorizer.
func (ContextAuthorizer) RequireAuth(ctx context.Context, p Principal) error {
	if p.IsZero() || !Authenticated(ctx, p) {
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, p)
	}
	return nil
}
