package httpx

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	healthResponse       = `{"status":"ok"}`
	defaultReadyzTimeout = 2 * time.Second
)

// ReadinessCheck probes one dependency the service cannot work without.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// readinessHandler runs every check concurrently and answers 503 when one fails.
func readinessHandler(checks []ReadinessCheck, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultReadyzTimeout
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		type result struct {
			name string
			err  error
		}
		results := make(chan result, len(checks))
		for _, c := range checks {
			go func() { results <- result{name: c.Name, err: c.Ping(ctx)} }()
		}

		resp := readinessResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		for range checks {
			res := <-results
			if res.err != nil {
				resp.Status = "unavailable"
				resp.Checks[res.name] = res.err.Error()
				continue
			}
			resp.Checks[res.name] = "ok"
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		WriteJSON(w, code, resp)
	}
}

// checkNames lists check names in a stable order for logging.
func checkNames(checks []ReadinessCheck) []string {
	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}
