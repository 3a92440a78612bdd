package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tecnokaijin/storefront/internal/models"
)

// SessionResolver maps a bearer token to a user ID
type SessionResolver interface {
	Resolve(token string) (int64, bool)
}

// UserFinder loads the account behind a session
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// AuthMiddleware attaches the user of a valid bearer token to the request
// context. Requests without a usable token continue anonymously; RequireUser
// and RequireAdmin reject them where a login is needed.
func AuthMiddleware(sessions SessionResolver, users UserFinder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, ok := sessions.Resolve(token)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			user, err := users.FindByID(r.Context(), id)
			if err != nil {
				if !errors.Is(err, models.ErrUserNotFound) {
					log.Printf("[AUTH] session lookup failed (request_id=%s): %v", RequestID(r.Context()), err)
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CurrentUser returns the authenticated user, or nil
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// SessionToken returns the token the request was authenticated with
func SessionToken(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// RequireUser rejects anonymous requests with 401
func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, models.ErrUnauthorized.Error())
			return
		}
		next(w, r)
	}
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return RequireUser(func(w http.ResponseWriter, r *http.Request) {
		if !CurrentUser(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, models.ErrForbidden.Error())
			return
		}
		next(w, r)
	})
}
