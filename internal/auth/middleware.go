package auth

import (
	"context"
	"net/http"

	"ms-checkin/internal/utils"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware rejects requests without a valid bearer token with 401 and
// stores the token subject in the request context.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			actorID, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), actorID)))
		})
	}
}

// WithUserID attaches an actor id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}
