// Package guard decides whether the current actor may reach a role-restricted
// area. It is a pure predicate over session state: it never errors, never
// blocks, and never mutates the session it is handed.
package guard

import "encoding/json"

// Role is a classifier tag carried by an actor. One actor may hold several,
// e.g. a teacher who is also a class coordinator.
type Role string

const (
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
	RoleHOD       Role = "hod"
	RoleCC        Role = "cc"
	RoleInstitute Role = "institute"
)

// RoleSet is an unordered set of role tags.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// ParseRoles builds a set from raw strings, skipping empties.
func ParseRoles(raw []string) RoleSet {
	s := make(RoleSet, len(raw))
	for _, r := range raw {
		if r != "" {
			s[Role(r)] = struct{}{}
		}
	}
	return s
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Intersects reports whether the two sets share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	if len(s) > len(other) {
		s, other = other, s
	}
	for r := range s {
		if other.Has(r) {
			return true
		}
	}
	return false
}

// Strings returns the roles as plain strings for serialization.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	return out
}

// Session is the actor's identity as established by the authentication
// collaborator. An unauthenticated session never carries roles.
type Session struct {
	Authenticated bool
	Roles         RoleSet
	UserID        string
	// User is the profile blob, passed through unexamined.
	User json.RawMessage
}

// NewSession builds a session, enforcing that roles are only held when
// authenticated.
func NewSession(authenticated bool, roles RoleSet, userID string, user json.RawMessage) *Session {
	if !authenticated {
		return &Session{}
	}
	return &Session{Authenticated: true, Roles: roles, UserID: userID, User: user}
}

// State is what the guard evaluates: the live session if rehydrated, plus
// whether a persisted token exists that could still resolve into one.
type State struct {
	// Session is nil until the identity round trip has resolved.
	Session *Session
	// TokenPresent reports that a persisted opaque token exists.
	TokenPresent bool
}

// Decision is the guard's verdict for a protected area.
type Decision int

const (
	// Allow renders the requested area.
	Allow Decision = iota
	// Pending means a persisted token exists but identity has not resolved
	// yet; the caller shows a loading state for exactly one identity round
	// trip, never redirects.
	Pending
	// RedirectToSignIn sends the actor to authentication.
	RedirectToSignIn
	// RedirectToUnauthorized tells an authenticated actor the area is not
	// theirs.
	RedirectToUnauthorized
)

// String names the decision for logs.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Pending:
		return "pending"
	case RedirectToSignIn:
		return "redirect-sign-in"
	case RedirectToUnauthorized:
		return "redirect-unauthorized"
	}
	return "unknown"
}

// Evaluate decides access for one protected area.
//
// Public areas (requiresAuth false) always render, signed in or not. For
// protected areas: a live authenticated session passes when allowed is empty
// or intersects the actor's roles; a persisted token without a resolved
// session holds in Pending; anything else redirects to sign-in. Indeterminate
// input behaves like "no token".
func Evaluate(st State, requiresAuth bool, allowed RoleSet) Decision {
	if !requiresAuth {
		return Allow
	}
	if st.Session != nil {
		if !st.Session.Authenticated {
			return RedirectToSignIn
		}
		if len(allowed) == 0 || st.Session.Roles.Intersects(allowed) {
			return Allow
		}
		return RedirectToUnauthorized
	}
	if st.TokenPresent {
		return Pending
	}
	return RedirectToSignIn
}
