package daemon

import (
	"net"
	"net/http"
	"strings"
)

// callerKey identifies the client for rate limiting: the first
// X-Forwarded-For entry, then X-Real-IP, then the peer host. Proxy headers
// are honoured only when trustProxy is set.
func callerKey(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
