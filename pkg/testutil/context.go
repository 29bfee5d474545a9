package testutil

import (
	"net/http"
	"time"

	id "verigate/pkg/domain"
	"verigate/pkg/requestcontext"
)

// WithUserID attaches a user id the way the auth middleware does.
// Invalid UUIDs leave the request unauthenticated.
func WithUserID(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
