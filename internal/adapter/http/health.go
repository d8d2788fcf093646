package http

import "net/http"

// HealthHandler handles health check requests
type HealthHandler interface {
	Health(w http.ResponseWriter, r *http.Request)
	Ready(w http.ResponseWriter, r *http.Request)
	Live(w http.ResponseWriter, r *http.Request)
}

// serveHealth answers the health paths and reports whether r was one
func (a *Adapter) serveHealth(w http.ResponseWriter, r *http.Request) bool {
	if a.healthHandler == nil || !a.health.Enabled {
		return false
	}
	switch r.URL.Path {
	case a.health.HealthPath:
		a.healthHandler.Health(w, r)
	case a.health.ReadyPath:
		a.healthHandler.Ready(w, r)
	case a.health.LivePath:
		a.healthHandler.Live(w, r)
	default:
		return false
	}
	return true
}
