package auth

import (
	"context"
	"net/http"

	"github.com/sakif/roomchat/internal/model"
)

// SessionCookie is the name of the cookie that carries the signed session.
const SessionCookie = "session"

// contextKey is an unexported type so no other package can collide with our
// context values.
type contextKey string

const sessionKey contextKey = "session"

// SessionManager moves the session snapshot in and out of cookies.
type SessionManager struct {
	tokens *TokenService
	secure bool
}

// NewSessionManager creates a SessionManager. secure sets the cookie's
// Secure attribute and should be true behind HTTPS.
func NewSessionManager(tokens *TokenService, secure bool) *SessionManager {
	return &SessionManager{tokens: tokens, secure: secure}
}

// Issue signs user into a fresh session cookie on w.
func (m *SessionManager) Issue(w http.ResponseWriter, user model.SessionUser) error {
	token, err := m.tokens.Generate(user)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear deletes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the snapshot from r's session cookie.
// A missing, expired or tampered cookie is an error.
func (m *SessionManager) FromRequest(r *http.Request) (model.SessionUser, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return model.SessionUser{}, err
	}
	return m.tokens.Validate(cookie.Value)
}

// RequireSession guards routes that need a logged-in user.
//
// Anonymous callers (no cookie, or one that fails validation) are redirected
// to the entry page with 303 See Other. Otherwise the snapshot is stored in
// the request context for SessionFromContext.
func RequireSession(sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := sessions.FromRequest(r)
			if err != nil {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), user)))
		})
	}
}

// OptionalSession attaches the snapshot when a valid cookie is present and
// never blocks the request.
func OptionalSession(sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, err := sessions.FromRequest(r); err == nil {
				r = r.WithContext(WithSession(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a copy of ctx carrying user.
func WithSession(ctx context.Context, user model.SessionUser) context.Context {
	return context.WithValue(ctx, sessionKey, user)
}

// SessionFromContext returns the logged-in snapshot, or (zero, false) for an
// anonymous request.
func SessionFromContext(ctx context.Context) (model.SessionUser, bool) {
	user, ok := ctx.Value(sessionKey).(model.SessionUser)
	return user, ok && user.ID != 0
}
