package auth

import (
	"context"

	"github.com/Clark-Hu/store-ratings/internal/domain"
)

// Session is the authenticated identity for one request. It is created by
// the authentication middleware from an active session row and its user.
type Session struct {
	ID   string
	User domain.User
}

// Role is a shortcut for s.User.Role.
func (s Session) Role() domain.Role {
	return s.User.Role
}

type sessionKey struct{}

// WithSession returns a child context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
