package health

import (
	"encoding/json"
	"net/http"
)

// Probe endpoint paths on the HTTP socket.
const (
	LivenessPath  = "/health"
	ReadinessPath = "/ready"
)

// LivenessHandler answers the liveness probe. version is echoed in the body
// when non-empty.
func (c *Checker) LivenessHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowedMethod(w, r) {
			return
		}
		status := c.CheckLiveness(r.Context())
		status.Version = version
		writeStatus(w, r, http.StatusOK, status)
	}
}

// ReadinessHandler answers the readiness probe: 200 while every probe
// passes, 503 otherwise.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowedMethod(w, r) {
			return
		}
		status := c.CheckReadiness(r.Context())
		code := http.StatusOK
		if !status.Ready() {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, r, code, status)
	}
}

// Register mounts both probes on mux.
func Register(mux *http.ServeMux, checker *Checker, version string) {
	mux.HandleFunc(LivenessPath, checker.LivenessHandler(version))
	mux.HandleFunc(ReadinessPath, checker.ReadinessHandler())
}

func allowedMethod(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(status)
	}
}
