package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xceleratortech/communitiesx/pkg/contextkeys"
)

// RequestIDHeader is the header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns a UUID to each request that arrives
// without one and echoes it on the response. The ID is stored in the
// request context for logging.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID assigned by RequestIDMiddleware,
// or an empty string when none was set.
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(contextkeys.RequestIDKey).(string)
	return id
}
