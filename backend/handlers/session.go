package handlers

import (
	"fmt"
	"net/http"
	"task-app/backend/config"

	"github.com/gorilla/sessions"
)

const sessionName = "session"

var Store *sessions.CookieStore

// InitSession configures the cookie session store from config. The secret
// must be set and at least 32 characters.
func InitSession() error {
	secret := config.C.Session.Secret
	if secret == "" {
		return fmt.Errorf("session secret is not configured (set SESSION_SECRET)")
	}
	if len(secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 characters")
	}

	Store = sessions.NewCookieStore([]byte(secret))
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(config.C.Session.Timeout.Seconds()),
		HttpOnly: true,
		Secure:   config.C.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	}
	return nil
}

// CurrentUserID returns the authenticated user ID from the session, if any.
// A pending-2FA session does not count as authenticated.
func CurrentUserID(r *http.Request) (uint, bool) {
	session, err := Store.Get(r, sessionName)
	if err != nil {
		return 0, false
	}
	id, ok := session.Values["user_id"].(uint)
	return id, ok
}
