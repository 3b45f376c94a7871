package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/model"
)

type ctxKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user placed by RequireSession.
func UserFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*model.User)
	return u, ok && u != nil
}

// TokenFromRequest reads the session id from an "Authorization: Bearer"
// header, falling back to the session cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireSession rejects requests without a valid session and puts the
// session's user on the request context.
func (s *Service) RequireSession(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := s.Authenticate(r.Context(), TokenFromRequest(r, cookieName))
			if err != nil {
				writeError(w, s.logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireAdmin must run after RequireSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		if !ok {
			writeError(w, nil, apperror.Unauthorized("authentication required"))
			return
		}
		if !u.IsAdmin() {
			writeError(w, nil, apperror.Forbidden("admin privileges required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError answers with err's code. Internal errors are logged on logger,
// when set, and reach the client only as a generic message.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := apperror.CodeOf(err)
	msg := err.Error()
	if code == apperror.CodeInternal {
		if logger != nil {
			logger.Error("authentication failed", zap.Error(err))
		}
		msg = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperror.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(apperror.New(code, msg))
}
