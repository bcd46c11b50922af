package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// requestIDHeader carries the request ID between client and gateway.
const requestIDHeader = "X-Request-ID"

// requestIDKey is the context key under which the request ID is stored.
type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored by the RequestID
// middleware, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID ensures every request carries an ID: the client's X-Request-ID
// header when present, a fresh UUID otherwise. The ID is stored in the
// request context, echoed back in the response header, and attached to the
// request log.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)

		// Set the response header before the handler runs so it survives
		// panic recovery.
		w.Header().Set(requestIDHeader, requestID)
		SetLogAttrs(ctx, slog.String("request_id", requestID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
