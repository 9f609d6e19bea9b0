package middleware

import (
	"context"
	"net/http"

	"flashdeal-api/internal/model"
	"flashdeal-api/internal/service"
	"flashdeal-api/pkg/apierror"
)

// SessionKey is the context key for the authenticated session.
const SessionKey contextKey = "session"

// NewAuth creates an authentication middleware that resolves the current
// user from an X-Token session header. Dependencies are injected via
// closure; there is no global state.
func NewAuth(tokens *service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Token")
			if token == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use the X-Token header."))
				return
			}

			session, err := tokens.ValidateToken(r.Context(), token)
			if err != nil {
				writeError(w, apierror.Unauthorized("Invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// GetSession retrieves the authenticated session from request context.
func GetSession(ctx context.Context) *model.SessionData {
	if data, ok := ctx.Value(SessionKey).(*model.SessionData); ok {
		return data
	}
	return nil
}
