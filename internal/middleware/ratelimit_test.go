package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitEnforcesWindow(t *testing.T) {
	t.Parallel()
	handler := RateLimit(2, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/assets/generate", nil)
		req.RemoteAddr = "203.0.113.1:4000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestRateLimitIsolatesClients(t *testing.T) {
	t.Parallel()
	handler := RateLimit(1, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodPost, "/", nil)
	first.RemoteAddr = "203.0.113.1:4000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, first)
	if rr.Code != http.StatusOK {
		t.Fatalf("first client blocked: %d", rr.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/", nil)
	second.RemoteAddr = "203.0.113.2:4000"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, second)
	if rr.Code != http.StatusOK {
		t.Fatalf("second client blocked: %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{name: "forwarded ip wins", header: "203.0.113.1", remoteAddr: "198.51.100.10:1234", want: "203.0.113.1"},
		{name: "first forwarded entry", header: " 203.0.113.1 , 198.51.100.2 ", remoteAddr: "198.51.100.10:1234", want: "203.0.113.1"},
		{name: "invalid forwarded falls back", header: "invalid", remoteAddr: "198.51.100.10:1234", want: "198.51.100.10"},
		{name: "ipv6 remote fallback", header: "", remoteAddr: net.JoinHostPort("2001:db8::2", "443"), want: "2001:db8::2"},
		{name: "remote without port", header: "", remoteAddr: "203.0.113.1", want: "203.0.113.1"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				req.Header.Set("X-Forwarded-For", tc.header)
			}
			if got := clientIP(req); got != tc.want {
				t.Fatalf("clientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
