package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type Checker func(ctx context.Context) error

// Check is one named readiness dependency (record db, mirror bucket, topic).
type Check struct {
	Name  string
	Check Checker
}

type mux interface {
	Handle(pattern string, handler http.Handler)
}

// Register adds /healthz (liveness) and /readyz (readiness) endpoints.
// /readyz reports the failing checks by name.
func Register(mux mux, checks ...Check) {
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := Run(ctx, checks...)
		if len(failed) > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "not ready", "failed": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
}

// Run executes every check and returns name -> error text for the failures.
func Run(ctx context.Context, checks ...Check) map[string]string {
	failed := map[string]string{}
	for _, c := range checks {
		if c.Check == nil {
			continue
		}
		if err := c.Check(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	return failed
}
