package httpapi

import (
	"context"
	"net/http"
)

// DBPinger checks connectivity to the relational store.
type DBPinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health reports "ok" once the database is reachable, and a 503 with the
// failure reason otherwise.
func Health(db DBPinger, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{
					"status": "unavailable", "version": version, "error": err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version})
	}
}
