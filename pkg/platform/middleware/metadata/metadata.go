package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"coverline/pkg/requestcontext"
)

// Client channels recorded on audit events.
const (
	ChannelWeb    = "web"
	ChannelMobile = "mobile"
	ChannelAPI    = "api"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them, with the derived channel, to the context.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, Channel(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Channel classifies a User-Agent string. Bots, scripts and empty agents are
// treated as direct API callers.
func Channel(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ChannelAPI
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return ChannelAPI
	}
	if parsed.Mobile() {
		return ChannelMobile
	}
	if name, _ := parsed.Browser(); name == "" || parsed.OS() == "" {
		return ChannelAPI
	}
	return ChannelWeb
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can carry a chain; the first entry is the original client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port"
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
