package middlewares

import (
	"crypto/subtle"
	"net/http"

	httperrors "github.com/dropDatabas3/fitledger/internal/http/errors"
)

// WithAdminKey exige el API key de operador en X-API-Key. La comparación es
// en tiempo constante.
func WithAdminKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("admin surface disabled"))
				return
			}
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
