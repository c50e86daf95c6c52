package middleware

import (
	"net/http"
	"task-app/backend/handlers"
)

// RequireAuth rejects requests without a fully authenticated session.
// A pending-2FA session has not finished logging in and is rejected too.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := handlers.CurrentUserID(r); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next(w, r)
	}
}
