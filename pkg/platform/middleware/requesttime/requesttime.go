// Package requesttime captures one "now" per HTTP request so every timestamp
// written while serving it (claim creation, audit events) agrees.
package requesttime

import (
	"net/http"
	"time"

	"coverline/pkg/requestcontext"
)

// Middleware stores the request start time in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
