package pod

import (
	"time"

	"github.com/google/uuid"
)

// Session holds the authenticated identity used for pod access.
type Session struct {
	ID        string
	WebID     string
	Token     string
	ExpiresAt time.Time
}

// NewSession creates a session for the given identity. A zero expiry
// means the token does not expire client-side.
func NewSession(webID, token string, expiresAt time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		WebID:     webID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
}

// Valid reports whether the session can authenticate requests.
func (s *Session) Valid() bool {
	if s == nil || s.Token == "" || s.WebID == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}
