package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

const (
	identityCookieName = "pixelwall-identity"
	identityKey        = "id"
)

// IdentityStore issues the anonymous editing identity of a browser. The
// identity is a random UUID kept in a signed cookie.
type IdentityStore struct {
	store *sessions.CookieStore
}

func NewIdentityStore(secret string, maxAge time.Duration, secure bool) *IdentityStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &IdentityStore{store: store}
}

// Ensure returns the visitor's identity, issuing a new one when the cookie is
// missing, fails signature verification, or does not hold a UUID.
func (s *IdentityStore) Ensure(c echo.Context) (string, error) {
	session, err := s.store.Get(c.Request(), identityCookieName)
	if err != nil {
		slog.Debug("Identity cookie rejected, issuing a new one", "error", err)
	}

	if id, ok := identityFrom(session); ok {
		return id, nil
	}

	id := uuid.NewString()
	session.Values[identityKey] = id
	if err := session.Save(c.Request(), c.Response()); err != nil {
		return "", fmt.Errorf("failed to save identity cookie: %w", err)
	}
	return id, nil
}

// Lookup returns the identity carried by r without issuing one.
func (s *IdentityStore) Lookup(r *http.Request) (string, bool) {
	session, err := s.store.Get(r, identityCookieName)
	if err != nil {
		return "", false
	}
	return identityFrom(session)
}

func identityFrom(session *sessions.Session) (string, bool) {
	id, ok := session.Values[identityKey].(string)
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}
