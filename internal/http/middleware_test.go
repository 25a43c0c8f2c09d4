package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{name: "forwarded single", headers: map[string]string{"X-Forwarded-For": "192.168.1.1"}, expected: "192.168.1.1"},
		{name: "forwarded chain uses first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.1,198.51.100.1"}, expected: "203.0.113.1"},
		{name: "forwarded chain is trimmed", headers: map[string]string{"X-Forwarded-For": " 203.0.113.1  ,  198.51.100.1"}, expected: "203.0.113.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "192.168.1.100"}, expected: "192.168.1.100"},
		{
			name:     "forwarded wins over real ip",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "192.168.1.100"},
			expected: "203.0.113.1",
		},
		{name: "remote ipv4", remoteAddr: "192.168.1.1:54321", expected: "192.168.1.1"},
		{name: "remote ipv6", remoteAddr: "[2001:db8::1]:54321", expected: "2001:db8::1"},
		{name: "remote without port", remoteAddr: "192.168.1.1", expected: "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestExtractUserAgent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "orgdir-cli/1.0")
	require.Equal(t, "orgdir-cli/1.0", ExtractUserAgent(r))

	r.Header.Set("User-Agent", strings.Repeat("a", MaxUserAgentLength+10))
	require.Len(t, ExtractUserAgent(r), MaxUserAgentLength)
}

func TestClientInfoMiddleware(t *testing.T) {
	middleware := ClientInfoMiddleware()

	var captured ClientInfo
	var capturedIP string
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ClientInfoFromContext(r.Context())
		capturedIP = ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")
	r.Header.Set("User-Agent", "orgdir-test")

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "203.0.113.1", capturedIP)
	require.Equal(t, ClientInfo{IPAddress: "203.0.113.1", UserAgent: "orgdir-test"}, captured)
}

func TestClientIPFromContext_missing(t *testing.T) {
	ctx := context.Background()

	ip := ClientIPFromContext(ctx)
	require.Empty(t, ip)
	require.Equal(t, ClientInfo{}, ClientInfoFromContext(ctx))
}
