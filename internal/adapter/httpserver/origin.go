package httpserver

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// newCheckOrigin returns the websocket upgrader's origin policy. Requests
// without an Origin header (non-browser clients) and same-host origins are
// allowed. In development, localhost origins are allowed as well.
func newCheckOrigin(isDevelopment bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err == nil && u.Host != "" {
			if strings.EqualFold(u.Host, r.Host) {
				return true
			}
			if isDevelopment && isLocalhost(u.Hostname()) {
				return true
			}
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "host", r.Host, "remote_addr", r.RemoteAddr)
		return false
	}
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
