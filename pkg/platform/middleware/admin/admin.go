// Package admin guards the internal order-granting routes.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	request "verigate/pkg/platform/middleware/request"
	"verigate/pkg/requestcontext"
)

// HeaderName carries the shared admin secret.
const HeaderName = "X-Admin-Token"

// RequireAdminToken rejects requests whose X-Admin-Token does not match
// expectedToken. An empty expectedToken rejects everything.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(expectedToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(HeaderName))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token rejected",
					"request_id", request.GetRequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
					"path", r.URL.Path,
					"token_present", len(got) > 0,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
