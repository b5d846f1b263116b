package auth

import (
	"net/http"
	"strings"

	apperrors "github.com/starkbridge/middleware/pkg/app/errors"
	apphttp "github.com/starkbridge/middleware/pkg/app/http"
)

// RequireAuth is a chi-compatible middleware that rejects requests without a
// valid bearer token and places the wallet address into the request context.
func RequireAuth(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				apphttp.DefaultErrorHandler(w,
					apperrors.UnAuthorizedError(nil, "missing bearer token"))
				return
			}

			address, err := issuer.ValidateToken(token)
			if err != nil {
				apphttp.DefaultErrorHandler(w,
					apperrors.UnAuthorizedError(err, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), address)))
		})
	}
}
