package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
)

// Middleware validates the Authorization header and stores the caller's
// identity in the request context. Requests without a valid bearer token are
// rejected before reaching any handler.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.Error(w, errors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httputil.Error(w, errors.Unauthorized("invalid authorization header"))
				return
			}

			claims, err := verifier.Verify(parts[1])
			if err != nil {
				httputil.Error(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), httputil.UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, httputil.UserRoleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
