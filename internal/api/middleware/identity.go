package middleware

import (
	"context"
	"net/http"

	"github.com/library-reservations/backend/internal/storage/models"
)

// UserHeader carries the username of the caller, set by the fronting auth layer.
const UserHeader = "X-User"

type userKey struct{}

// UserLookup resolves a username to its identity record, or nil when unknown.
type UserLookup func(ctx context.Context, username string) (*models.User, error)

// Identity resolves the caller from UserHeader and rejects anonymous or unknown callers.
func Identity(lookup UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := r.Header.Get(UserHeader)
			if username == "" {
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "Authentication required")
				return
			}

			user, err := lookup(r.Context(), username)
			if err != nil {
				WriteAppError(w, err)
				return
			}
			if user == nil {
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "Unknown user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireStaff wraps h so only staff users reach it.
func RequireStaff(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		if user == nil || !user.IsStaff {
			WriteError(w, http.StatusForbidden, ErrForbidden, "Staff only")
			return
		}
		h(w, r)
	}
}

// WithUser returns ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the caller stored by Identity, or nil.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey{}).(*models.User)
	return user
}
