package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// RateLimiter is the minimal interface required to guard public endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(scope + ":" + clientIP(r))
}

func rejectRateLimited(ctx context.Context, w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
}

// clientIP prefers the first proxy-reported address; the site is served behind
// a CDN that sets X-Forwarded-For or X-Real-IP.
func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
