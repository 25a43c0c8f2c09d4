package http

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const clientInfoContextKey contextKey = "client_info"

// MaxUserAgentLength bounds the user agent kept for audit entries.
const MaxUserAgentLength = 512

// ClientInfo is where a request came from, as recorded in audit entries.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// ExtractClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For header first (for proxied requests), then X-Real-IP, finally RemoteAddr.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list (comma-separated)
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ExtractUserAgent returns the request's User-Agent, truncated to MaxUserAgentLength bytes.
func ExtractUserAgent(r *http.Request) string {
	ua := r.UserAgent()
	if len(ua) > MaxUserAgentLength {
		ua = ua[:MaxUserAgentLength]
	}
	return ua
}

// ClientInfoFromContext returns the client info stored by ClientInfoMiddleware.
func ClientInfoFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoContextKey).(ClientInfo)
	return info
}

// ClientIPFromContext extracts the client IP from the request context.
func ClientIPFromContext(ctx context.Context) string {
	return ClientInfoFromContext(ctx).IPAddress
}

// ClientInfoMiddleware stores the client IP and user agent in the request context
// so transfer audit entries can record them.
func ClientInfoMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := ClientInfo{
				IPAddress: ExtractClientIP(r),
				UserAgent: ExtractUserAgent(r),
			}
			ctx := context.WithValue(r.Context(), clientInfoContextKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
