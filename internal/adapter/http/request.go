package http

import (
	"net/http"
	"strings"

	"ratelimitfilter/internal/core"
)

// newRequest converts an incoming HTTP request into a core request
func newRequest(id string, r *http.Request) core.Request {
	headers := make(map[string][]string, len(r.Header)+1)
	for k, v := range r.Header {
		headers[k] = v
	}

	return core.NewRequest(r.Context(), core.RequestInfo{
		ID:         id,
		Method:     r.Method,
		Path:       r.URL.Path,
		URL:        r.URL.RequestURI(),
		Authority:  r.Host,
		Scheme:     schemeOf(r),
		RemoteAddr: r.RemoteAddr,
		Headers:    headers,
		Body:       r.Body,
	})
}

// schemeOf prefers the connection's own TLS state over what a proxy claims
func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return "http"
}
