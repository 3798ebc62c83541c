package guard

import "context"

// IdentityFetcher resolves a persisted token into a live session. It is the
// single external round trip the guard is allowed to wait on.
type IdentityFetcher interface {
	CurrentUser(ctx context.Context, token string) (*Session, error)
}

// Rehydrator turns a persisted token into an evaluable State via one
// identity fetch.
type Rehydrator struct {
	Fetch IdentityFetcher
}

// Resolve performs the identity round trip. A missing, malformed, or rejected
// token resolves to the signed-out state; it never resolves to Pending.
func (r *Rehydrator) Resolve(ctx context.Context, token string) State {
	if token == "" || r == nil || r.Fetch == nil {
		return State{}
	}
	sess, err := r.Fetch.CurrentUser(ctx, token)
	if err != nil || sess == nil {
		return State{}
	}
	return State{Session: sess, TokenPresent: true}
}
