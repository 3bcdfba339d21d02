package httptransport

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Check reports whether one backend is reachable for /healthz.
type Check func(ctx context.Context) error

func Health(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		body := map[string]any{"ok": true}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				body[name] = "down"
				body["ok"] = false
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "up"
		}
		writeJSON(w, status, body)
	}
}
