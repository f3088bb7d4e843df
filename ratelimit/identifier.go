package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP derives the caller address from, in order, the first
// X-Forwarded-For value, X-Real-IP, and the connection remote address.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// EmailIdentifier returns an IdentifierFunc reading the normalized email
// from the given form or query field.
func EmailIdentifier(field string) IdentifierFunc {
	return func(r *http.Request) string {
		if r == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(r.FormValue(field)))
	}
}
