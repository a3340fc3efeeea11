// Package admin guards operator-only routes such as the dev ledger faucet.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"seisreg/pkg/platform/httputil"
	request "seisreg/pkg/platform/middleware/request"
)

// Header carries the operator secret.
const Header = "X-Admin-Token"

// RequireAdminToken rejects requests whose Header value differs from secret.
// An empty secret locks the routes entirely.
func RequireAdminToken(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(Header))
			if len(want) > 0 && subtle.ConstantTimeCompare(got, want) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			logger.WarnContext(ctx, "operator route denied",
				"path", r.URL.Path,
				"request_id", request.GetRequestID(ctx),
			)
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
				Error:            "unauthorized",
				ErrorDescription: "admin token required",
			})
		})
	}
}
